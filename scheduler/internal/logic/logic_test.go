package logic

import (
	"context"
	"errors"
	"testing"
	"time"

	"yqhp/scheduler/internal/alloc"
	"yqhp/scheduler/internal/config"
	"yqhp/scheduler/internal/ctxutil"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/svc"
	"yqhp/scheduler/internal/testutil"
	"yqhp/scheduler/internal/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	sc      *svc.ServiceContext
	clock   *testutil.Clock
	gateway *testutil.FakeGateway
	owner   context.Context
	other   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		clock:   testutil.NewClock(t0),
		gateway: testutil.NewFakeGateway(),
	}
	f.sc = svc.Init(config.Default(), testutil.NewDB(t), rdb, svc.Options{
		Gateway: f.gateway,
		Now:     f.clock.Now,
	})
	f.owner = ctxutil.WithActor(context.Background(), types.UserActor(7, 1))
	f.other = ctxutil.WithActor(context.Background(), types.UserActor(8, 1))
	return f
}

func (f *fixture) addNode(t *testing.T, role model.NodeRole) *model.TNode {
	t.Helper()
	n := &model.TNode{
		TenantID:  0,
		Name:      "shared",
		IP:        "10.0.0.9",
		AgentPort: 8088,
		Role:      role,
		MemoryMB:  4096,
		Enabled:   true,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	require.NoError(t, f.sc.DB.Create(n).Error)
	return n
}

func (f *fixture) events(t *testing.T) []string {
	t.Helper()
	events, err := f.sc.Events.Pop(context.Background(), 100)
	require.NoError(t, err)
	codes := make([]string, 0, len(events))
	for _, e := range events {
		codes = append(codes, e.Code)
	}
	return codes
}

func TestExecutionLogic_CreateAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	l := NewExecutionLogic(f.owner)

	e, err := l.Create(&CreateExecutionReq{Name: "  压测  ", ScriptID: 3})
	require.NoError(t, err)
	assert.Equal(t, "压测", e.Name)
	assert.Equal(t, model.ExecutionStatusPending, e.Status)
	assert.Equal(t, 1, e.NodeCount)
	assert.Equal(t, defaultReportInterval, e.ReportInterval)
	assert.EqualValues(t, 1, e.TenantID)
	assert.EqualValues(t, 7, e.CreatedBy)

	got, err := l.GetByID(e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	_, err = NewExecutionLogic(f.other).GetByID(e.ID)
	assert.True(t, errors.Is(err, types.ErrForbidden))

	_, err = l.Create(&CreateExecutionReq{Name: " "})
	assert.Equal(t, types.ErrCodeInvalidParameter, types.GetErrorCode(err))
}

func TestExecutionLogic_StopRunningExecution(t *testing.T) {
	f := newFixture(t)
	l := NewExecutionLogic(f.owner)
	node := f.addNode(t, model.NodeRoleExecution)

	e, err := l.Create(&CreateExecutionReq{Name: "压测"})
	require.NoError(t, err)
	_, err = f.sc.Nodes.CreateAssociations(context.Background(), e.ID, []int64{node.ID}, t0)
	require.NoError(t, err)
	require.NoError(t, f.sc.Executions.UpdateFields(context.Background(), e.ID, map[string]interface{}{
		"status": model.ExecutionStatusRunning,
	}))

	_, err = NewExecutionLogic(f.other).Stop(e.ID)
	assert.True(t, errors.Is(err, types.ErrForbidden))

	f.clock.Advance(time.Minute)
	stopped, err := l.Stop(e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusStopped, stopped.Status)
	assert.Equal(t, msgUserStopped, stopped.Message)
	require.NotNil(t, stopped.EndAt)
	assert.True(t, stopped.EndAt.Equal(t0.Add(time.Minute)))
	assert.Equal(t, 1, f.gateway.StopCount())

	left, err := f.sc.Nodes.ListAssociations(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Equal(t, []string{model.EventExecutionStopped}, f.events(t))

	_, err = l.Stop(e.ID)
	assert.True(t, errors.Is(err, types.ErrStaleState), "已结束的执行不能再次停止")
}

func TestExecutionLogic_StopPendingSkipsRemote(t *testing.T) {
	f := newFixture(t)
	l := NewExecutionLogic(f.owner)
	e, err := l.Create(&CreateExecutionReq{Name: "排队中"})
	require.NoError(t, err)

	stopped, err := l.Stop(e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusStopped, stopped.Status)
	assert.Zero(t, f.gateway.StopCount())
}

func TestExecutionLogic_SampleAndFinish(t *testing.T) {
	f := newFixture(t)
	l := NewExecutionLogic(f.owner)
	e, err := l.Create(&CreateExecutionReq{Name: "压测"})
	require.NoError(t, err)

	err = l.ReportSample(e.ID, &ReportSampleReq{TotalRequests: 10})
	assert.True(t, errors.Is(err, types.ErrStaleState), "未运行的执行不接受采样")

	require.NoError(t, f.sc.Executions.UpdateFields(context.Background(), e.ID, map[string]interface{}{
		"status": model.ExecutionStatusRunning,
	}))
	f.clock.Advance(5 * time.Second)
	require.NoError(t, l.ReportSample(e.ID, &ReportSampleReq{NodeID: 1, TotalRequests: 10, ErrorRequests: 1}))
	latest, err := f.sc.Executions.LatestSample(context.Background(), e.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Timestamp.Equal(t0.Add(5*time.Second)))

	done, err := l.Finish(e.ID, &FinishReq{Success: false, Message: "脚本异常", ConsoleLines: []string{"line1", "line2"}})
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusFailed, done.Status)
	assert.Equal(t, "脚本异常\nline1\nline2", done.Message)
	assert.Equal(t, []string{model.EventExecutionFailed}, f.events(t))

	_, err = l.Finish(e.ID, &FinishReq{Success: true})
	assert.True(t, errors.Is(err, types.ErrStaleState))

	_, err = l.Finish(999, &FinishReq{Success: true})
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestMockServiceLogic_ProvisionAndTeardown(t *testing.T) {
	f := newFixture(t)
	f.addNode(t, model.NodeRoleMockService)
	l := NewMockServiceLogic(f.owner)

	created, err := l.Provision(&alloc.ProvisionRequest{Name: "订单", AutoStart: true})
	require.NoError(t, err)
	assert.Equal(t, f.sc.Config.Node.PortMin, created.ServicePort)

	got, err := l.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MockServiceStatusRunning, got.Status)

	items, err := NewMockServiceLogic(f.other).Teardown([]int64{created.ID}, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Success)
	assert.Equal(t, string(types.ErrCodeForbidden), items[0].Code)

	items, err = l.Teardown([]int64{created.ID}, false)
	require.NoError(t, err)
	assert.Equal(t, []TeardownItem{{ID: created.ID, Success: true}}, items)

	_, err = l.Teardown(nil, false)
	assert.Equal(t, types.ErrCodeInvalidParameter, types.GetErrorCode(err))
}
