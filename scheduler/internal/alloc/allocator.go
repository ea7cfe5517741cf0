// Package alloc Mock 服务的节点、端口与域名分配
package alloc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"yqhp/common/logger"
	"yqhp/common/utils"
	"yqhp/scheduler/internal/auth"
	"yqhp/scheduler/internal/config"
	"yqhp/scheduler/internal/dns"
	"yqhp/scheduler/internal/gateway"
	"yqhp/scheduler/internal/metrics"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/quota"
	"yqhp/scheduler/internal/repo"
	"yqhp/scheduler/internal/types"

	"go.uber.org/zap"
)

// QuotaSource 租户配额读取
type QuotaSource interface {
	TenantQuota(ctx context.Context, tenantID int64) (*model.TTenantQuota, error)
}

// ProvisionRequest 创建 Mock 服务请求
type ProvisionRequest struct {
	Name string `json:"name"`
	// NodeID 为 0 时自动选择节点
	NodeID int64 `json:"node_id"`
	// Port 为 0 时分配区间内最小空闲端口
	Port      int    `json:"port"`
	Domain    string `json:"domain"`
	AuthFlag  bool   `json:"auth_flag"`
	AutoStart bool   `json:"auto_start"`
}

// UpdateRequest 更新 Mock 服务请求，nil 字段不修改
type UpdateRequest struct {
	Name     *string `json:"name"`
	AuthFlag *bool   `json:"auth_flag"`
	Domain   *string `json:"domain"`
}

// TeardownResult 单个服务的删除结果
type TeardownResult struct {
	ID  int64 `json:"id"`
	Err error `json:"-"`
}

// Allocator Mock 服务分配器
type Allocator struct {
	cfg      *config.Config
	services *repo.MockServiceRepo
	nodes    *repo.NodeRepo
	quotas   QuotaSource
	dns      dns.Provider
	gateway  gateway.Gateway
	authz    *auth.Authorizer
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New 创建分配器
func New(cfg *config.Config, services *repo.MockServiceRepo, nodes *repo.NodeRepo, quotas QuotaSource,
	provider dns.Provider, gw gateway.Gateway, authz *auth.Authorizer, m *metrics.Metrics) *Allocator {
	return &Allocator{
		cfg:      cfg,
		services: services,
		nodes:    nodes,
		quotas:   quotas,
		dns:      provider,
		gateway:  gw,
		authz:    authz,
		metrics:  m,
		now:      time.Now,
	}
}

// WithClock 替换时钟
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// Provision 选择节点和端口、检查容量与配额、预留域名后持久化服务，远程调用在持久化之后
func (a *Allocator) Provision(ctx context.Context, actor types.Actor, req ProvisionRequest) (svc *model.TMockService, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = string(types.GetErrorCode(err))
		}
		a.metrics.ObserveAllocation(result)
	}()

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, types.NewAppError(types.ErrCodeInvalidParameter, "服务名称不能为空")
	}
	if req.Port < 0 || req.Port > 65535 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter, "端口无效", fmt.Sprintf("port=%d", req.Port))
	}

	node, err := a.resolveNode(ctx, actor, req.NodeID)
	if err != nil {
		return nil, err
	}
	port, err := a.pickPort(ctx, node.ID, req.Port)
	if err != nil {
		return nil, err
	}
	if err := a.checkCapacity(ctx, node); err != nil {
		return nil, err
	}
	if err := a.checkTenant(ctx, actor.TenantID); err != nil {
		return nil, err
	}

	now := a.now()
	svc = &model.TMockService{
		TenantID:    actor.TenantID,
		Name:        req.Name,
		NodeID:      node.ID,
		NodeIP:      node.IP,
		ServicePort: port,
		AuthFlag:    req.AuthFlag,
		Status:      model.MockServiceStatusNotStarted,
		CreatedBy:   actor.UserID,
		ModifiedBy:  actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var reservation *model.TMockServiceDns
	if req.Domain != "" {
		domain, record, err := a.reserveDomain(ctx, node, req.Domain)
		if err != nil {
			return nil, err
		}
		svc.ServiceDomain = &domain
		if record != nil {
			reservation = record
			svc.ServiceDnsID = &record.ID
		}
	}

	if err := a.services.Create(ctx, svc); err != nil {
		if reservation != nil {
			a.releaseDomain(ctx, reservation)
		}
		return nil, err
	}

	if err := a.authz.GrantCreator(ctx, actor, model.ResourceTypeMockService, svc.ID); err != nil {
		logger.Error("记录创建者授权失败", zap.Int64("service_id", svc.ID), zap.Stringer("actor", actor), zap.Error(err))
	}

	logger.Info("Mock 服务已分配",
		zap.Int64("service_id", svc.ID),
		zap.Int64("node_id", node.ID),
		zap.Int("port", port),
		zap.Stringer("actor", actor))

	if req.AutoStart {
		if err := a.start(ctx, svc, node); err != nil {
			return svc, err
		}
	}
	return svc, nil
}

// resolveNode 指定节点时校验归属与可用性，否则在可用节点中选活跃服务最少且 Agent 可达的节点
func (a *Allocator) resolveNode(ctx context.Context, actor types.Actor, nodeID int64) (*model.TNode, error) {
	if nodeID > 0 {
		node, err := a.nodes.Get(ctx, nodeID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return nil, types.NewAppErrorWithDetails(types.ErrCodeNodeUnavailable, "节点不可用", fmt.Sprintf("节点 %d 不存在", nodeID))
			}
			return nil, err
		}
		if !node.Enabled || node.Role != model.NodeRoleMockService || (node.TenantID != 0 && node.TenantID != actor.TenantID) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeNodeUnavailable, "节点不可用", fmt.Sprintf("节点 %d 未启用或不属于当前租户", nodeID))
		}
		if err := a.gateway.Ping(ctx, gateway.TargetOf(node)); err != nil {
			return nil, err
		}
		return node, nil
	}

	nodes, err := a.nodes.EligibleNodes(ctx, actor.TenantID, model.NodeRoleMockService)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, types.NewAppError(types.ErrCodeNodeUnavailable, "没有可用的 Mock 节点")
	}

	active := make(map[int64]int64, len(nodes))
	for _, n := range nodes {
		cnt, err := a.services.CountActiveOnNode(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		active[n.ID] = cnt
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return active[nodes[i].ID] < active[nodes[j].ID]
	})

	var lastErr error
	full := 0
	for _, n := range nodes {
		capacity := quota.NodeCapacity(n.MemoryMB, a.cfg.Node.MemoryQuantumMB, a.cfg.Node.MinCapacity)
		if err := quota.CheckNodeCapacity(n.ID, active[n.ID], capacity); err != nil {
			full++
			lastErr = err
			continue
		}
		if err := a.gateway.Ping(ctx, gateway.TargetOf(n)); err != nil {
			logger.Warn("Mock 节点不可达", zap.Int64("node_id", n.ID), zap.Error(err))
			lastErr = err
			continue
		}
		return n, nil
	}
	if full == len(nodes) {
		return nil, lastErr
	}
	return nil, types.NewAppErrorWithCause(types.ErrCodeNodeUnavailable, "没有可用的 Mock 节点", lastErr)
}

// pickPort 指定端口必须空闲，否则取区间内最小空闲端口
func (a *Allocator) pickPort(ctx context.Context, nodeID int64, requested int) (int, error) {
	used, err := a.services.UsedPorts(ctx, nodeID)
	if err != nil {
		return 0, err
	}
	if requested > 0 {
		if utils.SliceContains(used, requested) {
			return 0, types.NewAppErrorWithDetails(types.ErrCodePortConflict, "端口已被占用",
				fmt.Sprintf("节点 %d 端口 %d 已被占用", nodeID, requested))
		}
		return requested, nil
	}

	taken := make(map[int]struct{}, len(used))
	for _, p := range used {
		taken[p] = struct{}{}
	}
	for p := a.cfg.Node.PortMin; p <= a.cfg.Node.PortMax; p++ {
		if _, ok := taken[p]; !ok {
			return p, nil
		}
	}
	return 0, types.NewAppErrorWithDetails(types.ErrCodePortConflict, "端口已耗尽",
		fmt.Sprintf("节点 %d 在 %d-%d 内没有空闲端口", nodeID, a.cfg.Node.PortMin, a.cfg.Node.PortMax))
}

func (a *Allocator) checkCapacity(ctx context.Context, node *model.TNode) error {
	active, err := a.services.CountActiveOnNode(ctx, node.ID)
	if err != nil {
		return err
	}
	capacity := quota.NodeCapacity(node.MemoryMB, a.cfg.Node.MemoryQuantumMB, a.cfg.Node.MinCapacity)
	return quota.CheckNodeCapacity(node.ID, active, capacity)
}

func (a *Allocator) checkTenant(ctx context.Context, tenantID int64) error {
	q, err := a.quotas.TenantQuota(ctx, tenantID)
	if err != nil {
		return err
	}
	total, err := a.services.CountTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	return quota.CheckTenantServices(total, quota.TenantLimits(q, a.cfg.Quota).MaxMockServices)
}

// reserveDomain 云部署先写占用记录再调用解析服务商；私有部署只保存域名
func (a *Allocator) reserveDomain(ctx context.Context, node *model.TNode, domain string) (string, *model.TMockServiceDns, error) {
	fqdn := dns.FQDN(domain, a.cfg.Dns.Suffix)
	if fqdn == "" {
		return "", nil, types.NewAppError(types.ErrCodeInvalidParameter, "域名无效")
	}
	if !a.cfg.Deploy.IsCloud() {
		return fqdn, nil, nil
	}

	record := &model.TMockServiceDns{
		Domain:    fqdn,
		NodeID:    node.ID,
		IP:        node.IP,
		CreatedAt: a.now(),
	}
	if err := a.services.CreateDns(ctx, record); err != nil {
		return "", nil, err
	}
	recordID, err := a.dns.Reserve(ctx, fqdn, node.IP)
	if err != nil {
		if delErr := a.services.DeleteDns(ctx, record.ID); delErr != nil {
			logger.Warn("回滚域名占用失败", zap.String("domain", fqdn), zap.Error(delErr))
		}
		return "", nil, types.NewAppErrorWithCause(types.ErrCodeRemoteCallFailed, "域名解析失败", err)
	}
	if err := a.services.UpdateDnsRecord(ctx, record.ID, recordID); err != nil {
		logger.Warn("保存解析记录 ID 失败", zap.String("domain", fqdn), zap.Error(err))
	}
	record.RecordID = recordID
	return fqdn, record, nil
}

// releaseDomain 尽力回滚解析记录和占用行
func (a *Allocator) releaseDomain(ctx context.Context, record *model.TMockServiceDns) {
	if err := a.dns.Release(ctx, record.Domain, record.IP); err != nil {
		logger.Warn("回滚域名解析失败", zap.String("domain", record.Domain), zap.Error(err))
	}
	if err := a.services.DeleteDns(ctx, record.ID); err != nil {
		logger.Warn("回滚域名占用失败", zap.String("domain", record.Domain), zap.Error(err))
	}
}

// Start 在服务所在节点启动运行体
func (a *Allocator) Start(ctx context.Context, actor types.Actor, id int64) error {
	if err := a.authz.Check(ctx, actor, model.ResourceTypeMockService, id, model.PermissionRun); err != nil {
		return err
	}
	svc, err := a.services.Get(ctx, id)
	if err != nil {
		return err
	}
	node, err := a.nodes.Get(ctx, svc.NodeID)
	if err != nil {
		return types.NewAppErrorWithCause(types.ErrCodeNodeUnavailable, "服务所在节点不可用", err)
	}
	return a.start(ctx, svc, node)
}

func (a *Allocator) start(ctx context.Context, svc *model.TMockService, node *model.TNode) error {
	req := gateway.StartRequest{
		Kind:        gateway.KindMockService,
		ServiceID:   svc.ID,
		ServicePort: svc.ServicePort,
		AuthFlag:    svc.AuthFlag,
		NodeTotal:   1,
	}
	if svc.ServiceDomain != nil {
		req.ServiceDomain = *svc.ServiceDomain
	}

	_, startErr := a.gateway.Start(ctx, []gateway.Target{gateway.TargetOf(node)}, req)
	fields := map[string]interface{}{
		"status":     model.MockServiceStatusRunning,
		"message":    "",
		"updated_at": a.now(),
	}
	if startErr != nil {
		fields["status"] = model.MockServiceStatusStartFailed
		fields["message"] = startErr.Error()
	}
	if err := a.services.UpdateFields(ctx, svc.ID, fields); err != nil {
		return err
	}
	svc.Status = fields["status"].(model.MockServiceStatus)
	svc.Message = fields["message"].(string)
	if startErr != nil {
		logger.Warn("Mock 服务启动失败", zap.Int64("service_id", svc.ID), zap.Error(startErr))
	}
	return startErr
}

// Stop 停止服务运行体
func (a *Allocator) Stop(ctx context.Context, actor types.Actor, id int64) error {
	if err := a.authz.Check(ctx, actor, model.ResourceTypeMockService, id, model.PermissionRun); err != nil {
		return err
	}
	svc, err := a.services.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := a.stopRemote(ctx, svc); err != nil {
		return err
	}
	return a.services.UpdateFields(ctx, id, map[string]interface{}{
		"status":     model.MockServiceStatusStopped,
		"updated_at": a.now(),
	})
}

func (a *Allocator) stopRemote(ctx context.Context, svc *model.TMockService) error {
	node, err := a.nodes.Get(ctx, svc.NodeID)
	if err != nil {
		return types.NewAppErrorWithCause(types.ErrCodeNodeUnavailable, "服务所在节点不可用", err)
	}
	_, err = a.gateway.Stop(ctx, []gateway.Target{gateway.TargetOf(node)}, gateway.StopRequest{
		Kind:      gateway.KindMockService,
		ServiceID: svc.ID,
	})
	return err
}

// Update 修改名称和鉴权开关；原先没有域名时可新增域名
func (a *Allocator) Update(ctx context.Context, actor types.Actor, id int64, req UpdateRequest) (*model.TMockService, error) {
	if err := a.authz.CheckModifyAuth(ctx, actor, model.ResourceTypeMockService, id); err != nil {
		return nil, err
	}
	svc, err := a.services.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"modified_by": actor.UserID,
		"updated_at":  a.now(),
	}
	var reservation *model.TMockServiceDns
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, types.NewAppError(types.ErrCodeInvalidParameter, "服务名称不能为空")
		}
		fields["name"] = name
	}
	if req.AuthFlag != nil {
		fields["auth_flag"] = *req.AuthFlag
	}
	if req.Domain != nil && strings.TrimSpace(*req.Domain) != "" {
		if svc.ServiceDomain != nil && *svc.ServiceDomain != "" {
			if dns.FQDN(*req.Domain, a.cfg.Dns.Suffix) != *svc.ServiceDomain {
				return nil, types.NewAppError(types.ErrCodeInvalidParameter, "已有域名不支持修改")
			}
		} else {
			node, err := a.nodes.Get(ctx, svc.NodeID)
			if err != nil {
				return nil, types.NewAppErrorWithCause(types.ErrCodeNodeUnavailable, "服务所在节点不可用", err)
			}
			domain, record, err := a.reserveDomain(ctx, node, *req.Domain)
			if err != nil {
				return nil, err
			}
			fields["service_domain"] = domain
			if record != nil {
				reservation = record
				fields["service_dns_id"] = record.ID
			}
		}
	}

	if err := a.services.UpdateFields(ctx, id, fields); err != nil {
		if reservation != nil {
			a.releaseDomain(ctx, reservation)
		}
		return nil, err
	}
	return a.services.Get(ctx, id)
}

// Teardown 逐个停止远程运行体、释放域名、删除依赖数据，最后删除服务。
// force 为 false 时任一步失败即放弃该服务；为 true 时记录错误并继续删除。
func (a *Allocator) Teardown(ctx context.Context, actor types.Actor, ids []int64, force bool) []TeardownResult {
	ids = utils.SliceUnique(ids)
	results := make([]TeardownResult, 0, len(ids))

	allowed, err := a.authz.BatchCheckPermission(ctx, actor, model.ResourceTypeMockService, ids, model.PermissionDelete)
	if err != nil {
		for _, id := range ids {
			results = append(results, TeardownResult{ID: id, Err: err})
		}
		return results
	}

	for _, id := range ids {
		if !allowed[id] {
			results = append(results, TeardownResult{ID: id, Err: types.NewAppErrorWithDetails(types.ErrCodeForbidden, "没有操作权限",
				fmt.Sprintf("%s 缺少 Mock 服务 %d 的删除权限", actor, id))})
			continue
		}
		results = append(results, TeardownResult{ID: id, Err: a.teardownOne(ctx, id, force)})
	}
	return results
}

func (a *Allocator) teardownOne(ctx context.Context, id int64, force bool) error {
	log := logger.L().With(zap.Int64("service_id", id), zap.Bool("force", force))
	svc, err := a.services.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := a.stopRemote(ctx, svc); err != nil {
		if !force {
			return err
		}
		log.Warn("停止远程运行体失败，强制删除继续", zap.Error(err))
	}

	if svc.ServiceDnsID != nil {
		if err := a.releaseDns(ctx, *svc.ServiceDnsID, force); err != nil {
			if !force {
				return err
			}
			log.Warn("释放域名占用失败，强制删除继续", zap.Int64("dns_id", *svc.ServiceDnsID), zap.Error(err))
		}
	}

	if err := a.services.DeleteWithDependents(ctx, id); err != nil {
		return err
	}
	log.Info("Mock 服务已删除")
	return nil
}

func (a *Allocator) releaseDns(ctx context.Context, dnsID int64, force bool) error {
	record, err := a.services.GetDns(ctx, dnsID)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	if a.cfg.Deploy.IsCloud() {
		if err := a.dns.Release(ctx, record.Domain, record.IP); err != nil {
			if !force {
				return types.NewAppErrorWithCause(types.ErrCodeRemoteCallFailed, "释放域名解析失败", err)
			}
			logger.Warn("释放域名解析失败，强制删除继续", zap.String("domain", record.Domain), zap.Error(err))
		}
	}
	return a.services.DeleteDns(ctx, dnsID)
}
