package job

import (
	"context"
	"fmt"
	"sort"

	"yqhp/common/logger"
	"yqhp/common/utils"
	"yqhp/scheduler/internal/gateway"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/quota"
	"yqhp/scheduler/internal/repo"

	"go.uber.org/zap"
)

const msgNoNode = "没有可用的执行节点"

// Admission 准入派发：按优先级认领 pending 执行，检查租户并发配额，选择节点并远程启动
type Admission struct {
	*Deps
}

// NewAdmission 创建准入派发任务
func NewAdmission(d *Deps) *Admission {
	return &Admission{Deps: d}
}

func (a *Admission) Name() string {
	return NameAdmission
}

// Run 先处理排队和派发超时，再派发一批 pending 执行
func (a *Admission) Run(ctx context.Context) (BatchReport, error) {
	report := newReport(NameAdmission)

	hk, err := a.housekeeping(ctx)
	if err != nil {
		return report, err
	}
	report.Merge(hk)

	rows, err := a.Executions.FindBatch(ctx, repo.ExecutionFilter{
		Statuses:   []model.ExecutionStatus{model.ExecutionStatusPending},
		ByPriority: true,
	}, JobSettings(a.Config, NameAdmission).BatchSize)
	if err != nil {
		return report, err
	}
	report.Merge(forEachRow(ctx, NameAdmission, rows, executionID, a.admit))

	a.Metrics.AddRows(NameAdmission, report.OK, report.Skipped, report.Failed)
	logReport(report)
	return report, nil
}

// housekeeping 排队超过最长时长的 pending 判失败；停留 scheduling 超过派发宽限的判失败并尽力停止远程
func (a *Admission) housekeeping(ctx context.Context) (BatchReport, error) {
	report := newReport(NameAdmission)
	now := a.now()
	batch := JobSettings(a.Config, NameAdmission).BatchSize
	maxDuration := a.Config.Scheduler.MaxDuration.D()

	queuedBefore := now.Add(-maxDuration)
	stale, err := a.Executions.FindBatch(ctx, repo.ExecutionFilter{
		Statuses:      []model.ExecutionStatus{model.ExecutionStatusPending},
		CreatedBefore: &queuedBefore,
	}, batch)
	if err != nil {
		return report, err
	}
	report.Merge(forEachRow(ctx, NameAdmission, stale, executionID, func(ctx context.Context, e *model.TExecution) RowResult {
		msg := fmt.Sprintf("排队超过 %d 秒仍未开始执行", int64(maxDuration.Seconds()))
		return a.fail(ctx, e, model.ExecutionStatusPending, msg)
	}))

	dispatchBefore := now.Add(-a.Config.Scheduler.DispatchGrace.D())
	stuck, err := a.Executions.FindBatch(ctx, repo.ExecutionFilter{
		Statuses:      []model.ExecutionStatus{model.ExecutionStatusScheduling},
		UpdatedBefore: &dispatchBefore,
	}, batch)
	if err != nil {
		return report, err
	}
	report.Merge(forEachRow(ctx, NameAdmission, stuck, executionID, func(ctx context.Context, e *model.TExecution) RowResult {
		a.StopRemote(ctx, e)
		return a.fail(ctx, e, model.ExecutionStatusScheduling, "派发中断，执行未能启动")
	}))
	return report, nil
}

func (a *Admission) fail(ctx context.Context, e *model.TExecution, from model.ExecutionStatus, msg string) RowResult {
	now := a.now()
	ok, err := a.Executions.TransitionStatus(ctx, e.ID, []model.ExecutionStatus{from}, model.ExecutionStatusFailed, map[string]interface{}{
		"message":    msg,
		"end_at":     now,
		"updated_at": now,
	})
	if err != nil {
		return rowFailed(err)
	}
	if !ok {
		return rowSkipped("状态已变更")
	}
	a.Finish(ctx, e, model.EventExecutionFailed, msg)
	return rowOK()
}

func (a *Admission) admit(ctx context.Context, e *model.TExecution) RowResult {
	actor := actorOf(e)
	log := logger.Named(NameAdmission).With(zap.Int64("execution_id", e.ID), zap.Stringer("actor", actor))

	q, err := a.Executions.TenantQuota(ctx, e.TenantID)
	if err != nil {
		return rowFailed(err)
	}
	limits := quota.TenantLimits(q, a.Config.Quota)
	active, err := a.Executions.CountTenantActive(ctx, e.TenantID)
	if err != nil {
		return rowFailed(err)
	}
	if err := quota.CheckTenantConcurrency(active, limits.MaxConcurrentExecutions); err != nil {
		return rowSkipped(err.Error())
	}

	claimed, err := a.Executions.TransitionStatus(ctx, e.ID,
		[]model.ExecutionStatus{model.ExecutionStatusPending}, model.ExecutionStatusScheduling,
		map[string]interface{}{"updated_at": a.now()})
	if err != nil {
		return rowFailed(err)
	}
	if !claimed {
		return rowSkipped("已被其他操作处理")
	}

	nodes, err := a.pickNodes(ctx, e)
	if err != nil {
		a.requeue(ctx, e, err.Error(), nil)
		return rowFailed(err)
	}
	if len(nodes) == 0 {
		a.requeue(ctx, e, msgNoNode, nil)
		return rowSkipped(msgNoNode)
	}

	nodeIDs := utils.SliceMap(nodes, func(_ int, n *model.TNode) int64 { return n.ID })
	targets := utils.SliceMap(nodes, func(_ int, n *model.TNode) gateway.Target { return gateway.TargetOf(n) })
	assocs, err := a.Nodes.CreateAssociations(ctx, e.ID, nodeIDs, a.now())
	if err != nil {
		a.requeue(ctx, e, err.Error(), nil)
		return rowFailed(err)
	}
	assocIDs := utils.SliceMap(assocs, func(_ int, as *model.TExecutionNode) int64 { return as.ID })

	if _, err := a.Gateway.Start(ctx, targets, gateway.StartRequest{
		Kind:           gateway.KindExecution,
		ExecutionID:    e.ID,
		ScriptID:       e.ScriptID,
		NodeTotal:      len(targets),
		ReportInterval: e.ReportInterval,
	}); err != nil {
		log.Warn("远程启动失败，退回等待队列", zap.Error(err))
		a.stopTargets(ctx, e, targets)
		a.requeue(ctx, e, err.Error(), assocIDs)
		return rowFailed(err)
	}

	started, err := a.Executions.MarkRunning(ctx, e.ID, a.now())
	if err != nil {
		return rowFailed(err)
	}
	if !started {
		// 关联可能已被停止操作删除，按本次派发的节点回收
		log.Info("派发期间执行状态已变更，停止远程运行体")
		a.stopTargets(ctx, e, targets)
		if _, err := a.Nodes.DeleteAssociations(ctx, assocIDs); err != nil {
			log.Warn("删除节点关联失败", zap.Error(err))
		}
		return rowSkipped("派发期间状态已变更")
	}
	log.Info("执行已启动", zap.Int64s("node_ids", nodeIDs))
	return rowOK()
}

// pickNodes 选择关联执行数最少的 node_count 个节点，数量不足时返回空
func (a *Admission) pickNodes(ctx context.Context, e *model.TExecution) ([]*model.TNode, error) {
	want := e.NodeCount
	if want <= 0 {
		want = 1
	}
	nodes, err := a.Nodes.EligibleNodes(ctx, e.TenantID, model.NodeRoleExecution)
	if err != nil {
		return nil, err
	}
	if len(nodes) < want {
		return nil, nil
	}
	counts, err := a.Nodes.AssociationCounts(ctx, utils.SliceMap(nodes, func(_ int, n *model.TNode) int64 { return n.ID }))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return counts[nodes[i].ID] < counts[nodes[j].ID]
	})
	return nodes[:want], nil
}

// requeue scheduling → pending，删除本次尝试创建的关联
func (a *Admission) requeue(ctx context.Context, e *model.TExecution, msg string, assocIDs []int64) {
	log := logger.Named(NameAdmission).With(zap.Int64("execution_id", e.ID))
	if _, err := a.Nodes.DeleteAssociations(ctx, assocIDs); err != nil {
		log.Warn("删除节点关联失败，留待回收任务处理", zap.Error(err))
	}
	ok, err := a.Executions.TransitionStatus(ctx, e.ID,
		[]model.ExecutionStatus{model.ExecutionStatusScheduling}, model.ExecutionStatusPending,
		map[string]interface{}{"message": msg, "updated_at": a.now()})
	if err != nil {
		log.Error("退回等待队列失败", zap.Error(err))
		return
	}
	if !ok {
		log.Info("退回等待队列时状态已变更")
	}
}

