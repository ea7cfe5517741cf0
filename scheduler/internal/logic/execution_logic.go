package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"yqhp/common/logger"
	"yqhp/scheduler/internal/ctxutil"
	"yqhp/scheduler/internal/job"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/svc"
	"yqhp/scheduler/internal/types"

	"go.uber.org/zap"
)

// ExecutionLogic 执行逻辑
type ExecutionLogic struct {
	ctx   context.Context
	actor types.Actor
}

// NewExecutionLogic 创建执行逻辑，操作主体取自 ctx
func NewExecutionLogic(ctx context.Context) *ExecutionLogic {
	actor, _ := ctxutil.GetActor(ctx)
	return &ExecutionLogic{ctx: ctx, actor: actor}
}

// CreateExecutionReq 创建执行请求
type CreateExecutionReq struct {
	Name           string `json:"name"`
	ScriptID       int64  `json:"script_id"`
	Priority       int    `json:"priority"`
	NodeCount      int    `json:"node_count"`
	ReportInterval int    `json:"report_interval"` // 秒
}

// ReportSampleReq 节点上报采样请求
type ReportSampleReq struct {
	NodeID        int64     `json:"node_id"`
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	TotalRequests int64     `json:"total_requests"`
	ErrorRequests int64     `json:"error_requests"`
}

// FinishReq 执行结束回调请求
type FinishReq struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	ConsoleLines []string `json:"console_lines"`
}

const (
	defaultReportInterval = 5
	msgUserStopped        = "用户手动停止"
)

func (l *ExecutionLogic) now() time.Time {
	if svc.Ctx.Now != nil {
		return svc.Ctx.Now()
	}
	return time.Now()
}

func (l *ExecutionLogic) deps() *job.Deps {
	return svc.Ctx.JobDeps()
}

// Create 创建执行，等待准入任务派发
func (l *ExecutionLogic) Create(req *CreateExecutionReq) (*model.TExecution, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, types.NewAppError(types.ErrCodeInvalidParameter, "执行名称不能为空")
	}
	if req.NodeCount < 0 || req.ReportInterval < 0 {
		return nil, types.NewAppError(types.ErrCodeInvalidParameter, "节点数和上报间隔不能为负数")
	}
	nodeCount := req.NodeCount
	if nodeCount == 0 {
		nodeCount = 1
	}
	interval := req.ReportInterval
	if interval == 0 {
		interval = defaultReportInterval
	}

	now := l.now()
	e := &model.TExecution{
		TenantID:       l.actor.TenantID,
		Name:           name,
		ScriptID:       req.ScriptID,
		Status:         model.ExecutionStatusPending,
		Priority:       req.Priority,
		NodeCount:      nodeCount,
		ReportInterval: interval,
		CreatedBy:      l.actor.UserID,
		ModifiedBy:     l.actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := svc.Ctx.Executions.Create(l.ctx, e); err != nil {
		return nil, fmt.Errorf("创建执行失败: %w", err)
	}
	if err := svc.Ctx.Authz.GrantCreator(l.ctx, l.actor, model.ResourceTypeExecution, e.ID); err != nil {
		logger.Warn("记录执行创建者权限失败", zap.Int64("execution_id", e.ID), zap.Error(err))
	}
	return e, nil
}

// GetByID 获取执行详情
func (l *ExecutionLogic) GetByID(id int64) (*model.TExecution, error) {
	if err := svc.Ctx.Authz.Check(l.ctx, l.actor, model.ResourceTypeExecution, id, model.PermissionView); err != nil {
		return nil, err
	}
	return svc.Ctx.Executions.Get(l.ctx, id)
}

// Stop 强制停止未结束的执行
func (l *ExecutionLogic) Stop(id int64) (*model.TExecution, error) {
	if err := svc.Ctx.Authz.Check(l.ctx, l.actor, model.ResourceTypeExecution, id, model.PermissionRun); err != nil {
		return nil, err
	}
	e, err := svc.Ctx.Executions.Get(l.ctx, id)
	if err != nil {
		return nil, err
	}

	now := l.now()
	applied, err := svc.Ctx.Executions.TransitionStatus(l.ctx, id,
		[]model.ExecutionStatus{model.ExecutionStatusPending, model.ExecutionStatusScheduling, model.ExecutionStatusRunning},
		model.ExecutionStatusStopped,
		map[string]interface{}{
			"message":     msgUserStopped,
			"end_at":      now,
			"modified_by": l.actor.UserID,
			"updated_at":  now,
		})
	if err != nil {
		return nil, fmt.Errorf("停止执行失败: %w", err)
	}
	if !applied {
		return nil, staleExecution(l.ctx, id)
	}

	// 派发中的执行由准入任务发现状态变化后自行停止节点
	d := l.deps()
	if e.Status == model.ExecutionStatusRunning {
		d.StopRemote(l.ctx, e)
	}
	e.ModifiedBy = l.actor.UserID
	d.Finish(l.ctx, e, model.EventExecutionStopped, msgUserStopped)
	logger.Info("执行已停止", zap.Int64("execution_id", id), zap.Stringer("actor", l.actor))

	return svc.Ctx.Executions.Get(l.ctx, id)
}

// ReportSample 记录节点采样，仅接受运行中的执行
func (l *ExecutionLogic) ReportSample(id int64, req *ReportSampleReq) error {
	e, err := svc.Ctx.Executions.Get(l.ctx, id)
	if err != nil {
		return err
	}
	if e.Status != model.ExecutionStatusRunning {
		return types.NewAppErrorWithDetails(types.ErrCodeStaleState, "执行未在运行",
			fmt.Sprintf("执行 %d 当前状态为 %s", id, e.Status))
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}
	return svc.Ctx.Executions.AppendSample(l.ctx, &model.TExecutionSample{
		ExecutionID:   id,
		NodeID:        req.NodeID,
		Timestamp:     ts,
		Status:        req.Status,
		Message:       req.Message,
		TotalRequests: req.TotalRequests,
		ErrorRequests: req.ErrorRequests,
	})
}

// Finish 执行节点回调，running → completed 或 failed
func (l *ExecutionLogic) Finish(id int64, req *FinishReq) (*model.TExecution, error) {
	e, err := svc.Ctx.Executions.Get(l.ctx, id)
	if err != nil {
		return nil, err
	}

	to, code := model.ExecutionStatusCompleted, model.EventExecutionCompleted
	message := req.Message
	if !req.Success {
		to, code = model.ExecutionStatusFailed, model.EventExecutionFailed
		if len(req.ConsoleLines) > 0 {
			message = strings.TrimSpace(message + "\n" + strings.Join(req.ConsoleLines, "\n"))
		}
	}

	now := l.now()
	applied, err := svc.Ctx.Executions.TransitionStatus(l.ctx, id,
		[]model.ExecutionStatus{model.ExecutionStatusRunning}, to,
		map[string]interface{}{
			"message":    message,
			"end_at":     now,
			"updated_at": now,
		})
	if err != nil {
		return nil, fmt.Errorf("更新执行状态失败: %w", err)
	}
	if !applied {
		return nil, staleExecution(l.ctx, id)
	}

	l.deps().Finish(l.ctx, e, code, message)
	logger.Info("执行已结束",
		zap.Int64("execution_id", id),
		zap.String("status", string(to)),
	)
	return svc.Ctx.Executions.Get(l.ctx, id)
}

// staleExecution 状态已被其他流程改变
func staleExecution(ctx context.Context, id int64) error {
	current := "unknown"
	if e, err := svc.Ctx.Executions.Get(ctx, id); err == nil {
		current = string(e.Status)
	} else if errors.Is(err, types.ErrNotFound) {
		return err
	}
	return types.NewAppErrorWithDetails(types.ErrCodeStaleState, "执行状态已变更",
		fmt.Sprintf("执行 %d 当前状态为 %s", id, current))
}
