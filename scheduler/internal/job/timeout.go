package job

import (
	"context"
	"fmt"
	"time"

	"yqhp/common/logger"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/repo"

	"go.uber.org/zap"
)

// Policy 超时判定参数
type Policy struct {
	MaxDuration     time.Duration
	StallMultiplier int
	WarmUp          time.Duration
}

// Verdict 超时判定结果
type Verdict struct {
	TimedOut bool
	// Ceiling 为 true 表示触达执行硬上限，否则为心跳停滞
	Ceiling bool
	Message string
}

// StallWindow 停滞窗口 = report_interval × multiplier
func (p Policy) StallWindow(reportInterval int) time.Duration {
	return time.Duration(reportInterval) * time.Duration(p.StallMultiplier) * time.Second
}

// Evaluate 判定运行中的执行是否超时。
// 硬上限：now ≥ start + MaxDuration。
// 停滞：启动满 max(WarmUp, window) 后，有采样时最新采样距今 ≥ window，无采样时启动距今 ≥ window。
func (p Policy) Evaluate(start time.Time, reportInterval int, lastSample *time.Time, now time.Time) Verdict {
	elapsed := now.Sub(start)
	if p.MaxDuration > 0 && elapsed >= p.MaxDuration {
		return Verdict{
			TimedOut: true,
			Ceiling:  true,
			Message:  fmt.Sprintf("执行时长超过上限 %d 秒", int64(p.MaxDuration.Seconds())),
		}
	}

	window := p.StallWindow(reportInterval)
	if window <= 0 {
		return Verdict{}
	}
	warmUp := p.WarmUp
	if warmUp < window {
		warmUp = window
	}
	if elapsed < warmUp {
		return Verdict{}
	}

	silent := elapsed
	if lastSample != nil {
		silent = now.Sub(*lastSample)
	}
	if silent >= window {
		return Verdict{
			TimedOut: true,
			Message:  fmt.Sprintf("超过 %d 秒未收到采样上报", int64(window.Seconds())),
		}
	}
	return Verdict{}
}

// Timeout 超时监控：停止硬上限或心跳停滞的运行中执行
type Timeout struct {
	*Deps
}

// NewTimeout 创建超时监控任务
func NewTimeout(d *Deps) *Timeout {
	return &Timeout{Deps: d}
}

func (t *Timeout) Name() string {
	return NameTimeout
}

func (t *Timeout) policy() Policy {
	s := t.Config.Scheduler
	return Policy{
		MaxDuration:     s.MaxDuration.D(),
		StallMultiplier: s.StallMultiplier,
		WarmUp:          s.WarmUp.D(),
	}
}

// Run 按 id 分页检查全部 running 执行
func (t *Timeout) Run(ctx context.Context) (BatchReport, error) {
	report := newReport(NameTimeout)
	batch := JobSettings(t.Config, NameTimeout).BatchSize
	policy := t.policy()

	var cursor int64
	for {
		rows, err := t.Executions.FindBatch(ctx, repo.ExecutionFilter{
			Statuses: []model.ExecutionStatus{model.ExecutionStatusRunning},
			IDAfter:  cursor,
		}, batch)
		if err != nil {
			return report, err
		}
		if len(rows) == 0 {
			break
		}
		report.Merge(forEachRow(ctx, NameTimeout, rows, executionID, func(ctx context.Context, e *model.TExecution) RowResult {
			return t.check(ctx, e, policy)
		}))
		cursor = rows[len(rows)-1].ID
		if len(rows) < batch || batch <= 0 || ctx.Err() != nil {
			break
		}
	}

	t.Metrics.AddRows(NameTimeout, report.OK, report.Skipped, report.Failed)
	logReport(report)
	return report, nil
}

func (t *Timeout) check(ctx context.Context, e *model.TExecution, policy Policy) RowResult {
	start := e.CreatedAt
	if e.ActualStartAt != nil {
		start = *e.ActualStartAt
	}
	sample, err := t.Executions.LatestSample(ctx, e.ID)
	if err != nil {
		return rowFailed(err)
	}
	var last *time.Time
	if sample != nil {
		last = &sample.Timestamp
	}

	now := t.now()
	v := policy.Evaluate(start, e.ReportInterval, last, now)
	if !v.TimedOut {
		return rowSkipped("")
	}

	log := logger.Named(NameTimeout).With(zap.Int64("execution_id", e.ID), zap.Stringer("actor", actorOf(e)))
	t.StopRemote(ctx, e)

	ok, err := t.Executions.TransitionStatus(ctx, e.ID,
		[]model.ExecutionStatus{model.ExecutionStatusRunning}, model.ExecutionStatusTimeout,
		map[string]interface{}{
			"message":    v.Message,
			"end_at":     now,
			"updated_at": now,
		})
	if err != nil {
		return rowFailed(err)
	}
	if !ok {
		return rowSkipped("状态已变更")
	}
	log.Info("执行已超时", zap.Bool("ceiling", v.Ceiling), zap.String("message", v.Message))
	t.Finish(ctx, e, model.EventExecutionTimeout, v.Message)
	return rowOK()
}
