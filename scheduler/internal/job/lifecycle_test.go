package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Property 1: 最新采样在停滞窗口内且未触达硬上限时不判超时
func TestPolicy_RecentSampleNeverStalls(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := Policy{
			MaxDuration:     24 * time.Hour,
			StallMultiplier: rapid.IntRange(1, 10).Draw(t, "multiplier"),
			WarmUp:          time.Duration(rapid.IntRange(0, 600).Draw(t, "warmUp")) * time.Second,
		}
		interval := rapid.IntRange(1, 60).Draw(t, "interval")
		window := p.StallWindow(interval)

		elapsed := time.Duration(rapid.Int64Range(0, int64(p.MaxDuration)-1).Draw(t, "elapsed"))
		start := t0
		now := start.Add(elapsed)
		age := time.Duration(rapid.Int64Range(0, int64(window)-1).Draw(t, "age"))
		sample := now.Add(-age)

		v := p.Evaluate(start, interval, &sample, now)
		if v.TimedOut {
			t.Fatalf("sample %s old within window %s judged timed out", age, window)
		}
	})
}

// Property 2: 触达硬上限必定超时
func TestPolicy_CeilingAlwaysTimesOut(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := Policy{MaxDuration: 24 * time.Hour, StallMultiplier: 6}
		over := time.Duration(rapid.Int64Range(0, int64(time.Hour)).Draw(t, "over"))
		now := t0.Add(p.MaxDuration + over)
		sample := now

		v := p.Evaluate(t0, 5, &sample, now)
		if !v.TimedOut || !v.Ceiling {
			t.Fatalf("expected ceiling timeout, got %+v", v)
		}
	})
}

func TestPolicy_Evaluate(t *testing.T) {
	p := Policy{MaxDuration: time.Hour, StallMultiplier: 6, WarmUp: 5 * time.Minute}
	tests := []struct {
		name     string
		elapsed  time.Duration
		sinceLog *time.Duration
		timedOut bool
		contains string
	}{
		{name: "warm-up 未结束", elapsed: 4 * time.Minute},
		{name: "无采样超过窗口", elapsed: 5 * time.Minute, timedOut: true, contains: "180"},
		{name: "采样新鲜", elapsed: 10 * time.Minute, sinceLog: durationPtr(179 * time.Second)},
		{name: "采样停滞", elapsed: 10 * time.Minute, sinceLog: durationPtr(180 * time.Second), timedOut: true, contains: "180"},
		{name: "硬上限", elapsed: time.Hour, sinceLog: durationPtr(0), timedOut: true, contains: "3600"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := t0.Add(tt.elapsed)
			var last *time.Time
			if tt.sinceLog != nil {
				ts := now.Add(-*tt.sinceLog)
				last = &ts
			}
			v := p.Evaluate(t0, 30, last, now)
			assert.Equal(t, tt.timedOut, v.TimedOut)
			if tt.contains != "" {
				assert.Contains(t, v.Message, tt.contains)
			}
		})
	}
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}

func TestTimeout_SampleKeepsExecutionAlive(t *testing.T) {
	f := newFixture(t)
	node := f.addNode(t, 0)
	start := t0
	e := f.addExecution(t, func(e *model.TExecution) {
		e.Status = model.ExecutionStatusRunning
		e.ActualStartAt = &start
	})
	_, err := f.deps.Nodes.CreateAssociations(f.ctx, e.ID, []int64{node.ID}, t0)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.deps.Executions.AppendSample(f.ctx, &model.TExecutionSample{
		ExecutionID: e.ID, NodeID: node.ID, Timestamp: f.clock.Now().Add(-time.Minute), TotalRequests: 10,
	}))

	report, err := NewTimeout(f.deps).Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.OK)
	assert.Equal(t, model.ExecutionStatusRunning, f.reload(t, e.ID).Status)
	assert.Zero(t, f.gateway.StopCount())

	f.clock.Advance(2 * time.Minute)
	_, err = NewTimeout(f.deps).Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusTimeout, f.reload(t, e.ID).Status)
	assert.Empty(t, f.associations(t, e.ID))
}

func TestTimeout_StopFailureStillTimesOut(t *testing.T) {
	f := newFixture(t)
	node := f.addNode(t, 0)
	start := t0
	e := f.addExecution(t, func(e *model.TExecution) {
		e.Status = model.ExecutionStatusRunning
		e.ActualStartAt = &start
	})
	_, err := f.deps.Nodes.CreateAssociations(f.ctx, e.ID, []int64{node.ID}, t0)
	require.NoError(t, err)
	f.gateway.FailStop[node.ID] = []string{"agent: process not found"}

	f.clock.Advance(25 * time.Hour)
	report, err := NewTimeout(f.deps).Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OK)
	assert.Equal(t, 1, f.gateway.StopCount())

	got := f.reload(t, e.ID)
	assert.Equal(t, model.ExecutionStatusTimeout, got.Status)
	assert.Contains(t, got.Message, "86400")
	assert.Empty(t, f.associations(t, e.ID))
	events := f.queue.Pending()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventExecutionTimeout, events[0].Code)
	assert.Equal(t, e.ID, events[0].TargetID)
}

func TestTimeout_PagesThroughAllRunning(t *testing.T) {
	f := newFixture(t)
	f.deps.Config.Scheduler.Jobs.Timeout.BatchSize = 2
	start := t0
	var ids []int64
	for i := 0; i < 5; i++ {
		e := f.addExecution(t, func(e *model.TExecution) {
			e.Status = model.ExecutionStatusRunning
			e.ActualStartAt = &start
		})
		ids = append(ids, e.ID)
	}

	f.clock.Advance(25 * time.Hour)
	report, err := NewTimeout(f.deps).Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, report.OK)
	for _, id := range ids {
		got := f.reload(t, id)
		assert.Equal(t, model.ExecutionStatusTimeout, got.Status)
		assert.Contains(t, got.Message, "86400")
	}
}

func TestTimeout_StoppedConcurrentlyIsNotOverwritten(t *testing.T) {
	f := newFixture(t)
	start := t0
	e := f.addExecution(t, func(e *model.TExecution) {
		e.Status = model.ExecutionStatusRunning
		e.ActualStartAt = &start
	})
	f.clock.Advance(time.Hour)

	_, err := f.deps.Executions.TransitionStatus(f.ctx, e.ID,
		[]model.ExecutionStatus{model.ExecutionStatusRunning}, model.ExecutionStatusStopped,
		map[string]interface{}{"updated_at": f.clock.Now()})
	require.NoError(t, err)

	_, err = NewTimeout(f.deps).Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusStopped, f.reload(t, e.ID).Status)
	assert.Empty(t, f.queue.Pending())
}

type aggregatorFunc func(ctx context.Context, e *model.TExecution) error

func (fn aggregatorFunc) Materialize(ctx context.Context, e *model.TExecution) error {
	return fn(ctx, e)
}

func TestResultSync_AlwaysMarksAttempted(t *testing.T) {
	f := newFixture(t)
	okRow := f.addExecution(t, func(e *model.TExecution) { e.Status = model.ExecutionStatusCompleted })
	errRow := f.addExecution(t, func(e *model.TExecution) { e.Status = model.ExecutionStatusFailed })
	panicRow := f.addExecution(t, func(e *model.TExecution) { e.Status = model.ExecutionStatusTimeout })
	running := f.addExecution(t, func(e *model.TExecution) { e.Status = model.ExecutionStatusRunning })

	calls := map[int64]int{}
	agg := aggregatorFunc(func(_ context.Context, e *model.TExecution) error {
		calls[e.ID]++
		switch e.ID {
		case errRow.ID:
			return errors.New("指标存储不可用")
		case panicRow.ID:
			panic("unexpected")
		}
		return nil
	})

	sync := NewResultSync(f.deps, agg)
	report, err := sync.Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OK)
	assert.Equal(t, 2, report.Failed)

	for _, id := range []int64{okRow.ID, errRow.ID, panicRow.ID} {
		got := f.reload(t, id)
		assert.True(t, got.ResultSyncAttempted, "execution %d", id)
		require.NotNil(t, got.ResultSyncStartedAt)
	}
	assert.Contains(t, f.reload(t, errRow.ID).ResultSyncMessage, "指标存储不可用")
	assert.Contains(t, f.reload(t, panicRow.ID).ResultSyncMessage, "panic")
	assert.False(t, f.reload(t, running.ID).ResultSyncAttempted)

	_, err = sync.Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{okRow.ID: 1, errRow.ID: 1, panicRow.ID: 1}, calls, "每个执行只尝试一次")

	var codes []string
	for _, e := range f.queue.Pending() {
		codes = append(codes, e.Code)
	}
	assert.Equal(t, []string{model.EventResultSyncFailed, model.EventResultSyncFailed}, codes)
}

func TestResultSync_DetectsStuckRows(t *testing.T) {
	f := newFixture(t)
	startedAt := t0
	stuck := f.addExecution(t, func(e *model.TExecution) {
		e.Status = model.ExecutionStatusCompleted
		e.ResultSyncStartedAt = &startedAt
	})
	f.clock.Advance(31 * time.Minute)

	calls := 0
	sync := NewResultSync(f.deps, aggregatorFunc(func(context.Context, *model.TExecution) error {
		calls++
		return nil
	}))
	_, err := sync.Run(f.ctx)
	require.NoError(t, err)

	assert.Zero(t, calls, "已开始的同步不重试")
	assert.False(t, f.reload(t, stuck.ID).ResultSyncAttempted)
	assert.Equal(t, 1.0, gaugeValue(t, f, "yqhp_scheduler_result_sync_stuck"))
}

func gaugeValue(t *testing.T, f *fixture, name string) float64 {
	t.Helper()
	families, err := f.metrics.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestSampleSummaryAggregator(t *testing.T) {
	f := newFixture(t)
	e := f.addExecution(t, func(e *model.TExecution) { e.Status = model.ExecutionStatusCompleted })
	for i := 0; i < 3; i++ {
		require.NoError(t, f.deps.Executions.AppendSample(f.ctx, &model.TExecutionSample{
			ExecutionID:   e.ID,
			NodeID:        1,
			Timestamp:     t0.Add(time.Duration(i) * 30 * time.Second),
			TotalRequests: 100,
			ErrorRequests: int64(i),
		}))
	}

	agg := NewSampleSummaryAggregator(f.db)
	require.NoError(t, agg.Materialize(f.ctx, e))
	require.NoError(t, agg.Materialize(f.ctx, e))

	var results []model.TExecutionResult
	require.NoError(t, f.db.Where("execution_id = ?", e.ID).Find(&results).Error)
	require.Len(t, results, 1)
	assert.Equal(t, int64(3), results[0].SampleCount)
	assert.Equal(t, int64(300), results[0].TotalRequests)
	assert.Equal(t, int64(3), results[0].ErrorRequests)
	require.NotNil(t, results[0].LastSampleAt)
	assert.True(t, results[0].LastSampleAt.Equal(t0.Add(time.Minute)))
}

func TestReclaim_FinishedAndOrphans(t *testing.T) {
	f := newFixture(t)
	node := f.addNode(t, 0)
	gone := f.addNode(t, 0)
	done := f.addExecution(t, func(e *model.TExecution) { e.Status = model.ExecutionStatusCompleted })
	live := f.addExecution(t, func(e *model.TExecution) { e.Status = model.ExecutionStatusRunning })
	onGone := f.addExecution(t, func(e *model.TExecution) { e.Status = model.ExecutionStatusRunning })

	for _, a := range []struct {
		exec int64
		node int64
	}{{done.ID, node.ID}, {live.ID, node.ID}, {onGone.ID, gone.ID}, {12345, node.ID}} {
		_, err := f.deps.Nodes.CreateAssociations(f.ctx, a.exec, []int64{a.node}, t0)
		require.NoError(t, err)
	}
	require.NoError(t, f.db.Delete(&model.TNode{}, gone.ID).Error)

	report, err := NewReclaim(f.deps).Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.OK)

	assert.Empty(t, f.associations(t, done.ID))
	assert.Len(t, f.associations(t, live.ID), 1)
	assert.Empty(t, f.associations(t, onGone.ID))
	assert.Empty(t, f.associations(t, 12345))
}

func TestNotify_DeliversAndRequeues(t *testing.T) {
	f := newFixture(t)
	store := notify.NewNoticeStore(f.db)
	f.queue.Emit(f.ctx, notify.Event{Code: model.EventExecutionTimeout, TargetType: "execution", TargetID: 1, Recipients: []int64{11, 12}})
	f.queue.Emit(f.ctx, notify.Event{Code: model.EventExecutionFailed, TargetType: "execution", TargetID: 2})

	report, err := NewNotify(f.deps, f.queue, store).Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OK)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, f.queue.Pending())

	list, err := store.ListByRecipient(f.ctx, 12, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.EventExecutionTimeout, list[0].Code)

	require.NoError(t, f.db.Migrator().DropTable(&model.TNotice{}))
	f.queue.Emit(f.ctx, notify.Event{Code: model.EventExecutionStopped, TargetID: 3, Recipients: []int64{11}})
	report, err = NewNotify(f.deps, f.queue, store).Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	pending := f.queue.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, model.EventExecutionStopped, pending[0].Code)
}
