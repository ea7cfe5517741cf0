package logic

import (
	"context"

	"yqhp/common/utils"
	"yqhp/scheduler/internal/alloc"
	"yqhp/scheduler/internal/ctxutil"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/svc"
	"yqhp/scheduler/internal/types"
)

// MockServiceLogic Mock 服务逻辑
type MockServiceLogic struct {
	ctx   context.Context
	actor types.Actor
}

// NewMockServiceLogic 创建 Mock 服务逻辑
func NewMockServiceLogic(ctx context.Context) *MockServiceLogic {
	actor, _ := ctxutil.GetActor(ctx)
	return &MockServiceLogic{ctx: ctx, actor: actor}
}

// TeardownItem 单个服务删除结果
type TeardownItem struct {
	ID      int64  `json:"id"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Provision 创建 Mock 服务
func (l *MockServiceLogic) Provision(req *alloc.ProvisionRequest) (*model.TMockService, error) {
	return svc.Ctx.Allocator.Provision(l.ctx, l.actor, *req)
}

// GetByID 获取 Mock 服务
func (l *MockServiceLogic) GetByID(id int64) (*model.TMockService, error) {
	if err := svc.Ctx.Authz.Check(l.ctx, l.actor, model.ResourceTypeMockService, id, model.PermissionView); err != nil {
		return nil, err
	}
	return svc.Ctx.MockServices.Get(l.ctx, id)
}

// Update 修改名称、鉴权开关或补充域名
func (l *MockServiceLogic) Update(id int64, req *alloc.UpdateRequest) (*model.TMockService, error) {
	return svc.Ctx.Allocator.Update(l.ctx, l.actor, id, *req)
}

// Start 启动 Mock 服务
func (l *MockServiceLogic) Start(id int64) (*model.TMockService, error) {
	if err := svc.Ctx.Allocator.Start(l.ctx, l.actor, id); err != nil {
		return nil, err
	}
	return svc.Ctx.MockServices.Get(l.ctx, id)
}

// Stop 停止 Mock 服务
func (l *MockServiceLogic) Stop(id int64) (*model.TMockService, error) {
	if err := svc.Ctx.Allocator.Stop(l.ctx, l.actor, id); err != nil {
		return nil, err
	}
	return svc.Ctx.MockServices.Get(l.ctx, id)
}

// Teardown 批量删除，逐个返回结果
func (l *MockServiceLogic) Teardown(ids []int64, force bool) ([]TeardownItem, error) {
	if len(ids) == 0 {
		return nil, types.NewAppError(types.ErrCodeInvalidParameter, "请选择要删除的服务")
	}
	results := svc.Ctx.Allocator.Teardown(l.ctx, l.actor, ids, force)
	return utils.SliceMap(results, func(_ int, r alloc.TeardownResult) TeardownItem {
		item := TeardownItem{ID: r.ID, Success: r.Err == nil}
		if r.Err != nil {
			item.Code = string(types.GetErrorCode(r.Err))
			item.Message = r.Err.Error()
		}
		return item
	}), nil
}
