// Package job 执行生命周期的周期任务：准入派发、超时监控、结果同步、节点回收和通知投递
package job

import (
	"context"
	"time"

	"yqhp/common/logger"
	"yqhp/scheduler/internal/config"
	"yqhp/scheduler/internal/gateway"
	"yqhp/scheduler/internal/metrics"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/notify"
	"yqhp/scheduler/internal/repo"
	"yqhp/scheduler/internal/types"

	"go.uber.org/zap"
)

// 任务名，同时作为分布式锁名
const (
	NameAdmission  = "admission"
	NameTimeout    = "timeout"
	NameResultSync = "result_sync"
	NameReclaim    = "reclaim"
	NameNotify     = "notify"
)

// Job 周期任务，Run 执行一个周期
type Job interface {
	Name() string
	Run(ctx context.Context) (BatchReport, error)
}

// Deps 周期任务依赖
type Deps struct {
	Config     *config.Config
	Executions *repo.ExecutionRepo
	Nodes      *repo.NodeRepo
	Gateway    gateway.Gateway
	Sink       notify.Sink
	Metrics    *metrics.Metrics
	// Now 时钟，为空时取 time.Now
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// JobSettings 任务对应的轮询配置
func JobSettings(cfg *config.Config, name string) config.JobConfig {
	jobs := cfg.Scheduler.Jobs
	switch name {
	case NameAdmission:
		return jobs.Admission
	case NameTimeout:
		return jobs.Timeout
	case NameResultSync:
		return jobs.ResultSync
	case NameReclaim:
		return jobs.Reclaim
	default:
		return jobs.Notify
	}
}

// StopRemote 尽力停止执行在各节点上的运行体，错误只记录
func (d *Deps) StopRemote(ctx context.Context, e *model.TExecution) {
	nodes, err := d.Nodes.NodesOf(ctx, e.ID)
	if err != nil {
		logger.Warn("查询执行节点失败", zap.Int64("execution_id", e.ID), zap.Error(err))
		return
	}
	if len(nodes) == 0 {
		return
	}
	targets := make([]gateway.Target, 0, len(nodes))
	for _, n := range nodes {
		targets = append(targets, gateway.TargetOf(n))
	}
	d.stopTargets(ctx, e, targets)
}

// stopTargets 停止指定节点上的运行体，不依赖节点关联，错误只记录
func (d *Deps) stopTargets(ctx context.Context, e *model.TExecution, targets []gateway.Target) {
	if len(targets) == 0 {
		return
	}
	if _, err := d.Gateway.Stop(ctx, targets, gateway.StopRequest{Kind: gateway.KindExecution, ExecutionID: e.ID}); err != nil {
		logger.Warn("停止远程执行失败", zap.Int64("execution_id", e.ID), zap.Error(err))
	}
}

// Finish 状态迁移成功后的收尾：删除节点关联并发送事件，两者失败都不回滚迁移
func (d *Deps) Finish(ctx context.Context, e *model.TExecution, code, message string) {
	if _, err := d.Nodes.DeleteAssociationsByExecution(ctx, e.ID); err != nil {
		logger.Warn("删除执行节点关联失败，留待回收任务处理", zap.Int64("execution_id", e.ID), zap.Error(err))
	}
	d.emit(ctx, e, code, message)
}

func (d *Deps) emit(ctx context.Context, e *model.TExecution, code, message string) {
	if d.Sink == nil {
		return
	}
	d.Sink.Emit(ctx, notify.Event{
		Code:       code,
		TargetType: string(model.ResourceTypeExecution),
		TargetID:   e.ID,
		Message:    message,
		Recipients: notify.Recipients(e.CreatedBy, e.ModifiedBy),
		TenantID:   e.TenantID,
		CreatedAt:  d.now(),
	})
}

// actorOf 周期任务以系统身份代表执行所属租户
func actorOf(e *model.TExecution) types.Actor {
	return types.SystemActor(e.TenantID)
}

func executionID(e *model.TExecution) int64 {
	return e.ID
}

func logReport(r BatchReport, fields ...zap.Field) {
	fields = append(fields,
		zap.Int("total", r.Total),
		zap.Int("ok", r.OK),
		zap.Int("skipped", r.Skipped),
		zap.Int("failed", r.Failed),
	)
	if r.Total == 0 {
		logger.Named(r.Job).Debug("周期完成", fields...)
		return
	}
	logger.Named(r.Job).Info("周期完成", fields...)
}
