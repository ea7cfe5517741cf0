package testutil

import (
	"context"
	"errors"
	"sync"

	"yqhp/scheduler/internal/gateway"
	"yqhp/scheduler/internal/types"
)

// FakeGateway 记录调用的 Agent 网关，可按节点配置失败
type FakeGateway struct {
	mu sync.Mutex

	// FailStart 启动失败的节点及其控制台输出
	FailStart map[int64][]string
	// FailStop 停止失败的节点
	FailStop map[int64][]string
	// StartErr 非空时整次启动返回该错误
	StartErr error
	// Unreachable Ping 失败的节点
	Unreachable map[int64]bool
	// OnStart 启动时回调
	OnStart func(targets []gateway.Target, req gateway.StartRequest)

	Starts []gateway.StartRequest
	Stops  []gateway.StopRequest
	Pings  []int64
}

// NewFakeGateway 全部调用成功的网关
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		FailStart:   make(map[int64][]string),
		FailStop:    make(map[int64][]string),
		Unreachable: make(map[int64]bool),
	}
}

func (g *FakeGateway) Start(_ context.Context, targets []gateway.Target, req gateway.StartRequest) ([]gateway.StartResult, error) {
	g.mu.Lock()
	g.Starts = append(g.Starts, req)
	onStart := g.OnStart
	g.mu.Unlock()
	if onStart != nil {
		onStart(targets, req)
	}
	if g.StartErr != nil {
		return nil, g.StartErr
	}

	results := make([]gateway.StartResult, 0, len(targets))
	for _, t := range targets {
		g.mu.Lock()
		lines, fail := g.FailStart[t.NodeID]
		g.mu.Unlock()
		if fail {
			results = append(results, gateway.StartResult{NodeID: t.NodeID, ExitCode: 1, ConsoleLines: lines})
		} else {
			results = append(results, gateway.StartResult{NodeID: t.NodeID, Success: true})
		}
	}
	return results, gateway.ResultsError(results)
}

func (g *FakeGateway) Stop(_ context.Context, targets []gateway.Target, req gateway.StopRequest) ([]gateway.StopResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Stops = append(g.Stops, req)

	results := make([]gateway.StopResult, 0, len(targets))
	for _, t := range targets {
		if lines, fail := g.FailStop[t.NodeID]; fail {
			results = append(results, gateway.StopResult{NodeID: t.NodeID, ExitCode: 1, ConsoleLines: lines})
		} else {
			results = append(results, gateway.StopResult{NodeID: t.NodeID, Success: true})
		}
	}
	return results, gateway.ResultsError(results)
}

func (g *FakeGateway) Ping(_ context.Context, target gateway.Target) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Pings = append(g.Pings, target.NodeID)
	if g.Unreachable[target.NodeID] {
		return types.NewAppErrorWithCause(types.ErrCodeNodeUnavailable, "节点 Agent 不可达", errors.New("connection refused"))
	}
	return nil
}

// StartCount 启动调用次数
func (g *FakeGateway) StartCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Starts)
}

// StopCount 停止调用次数
func (g *FakeGateway) StopCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Stops)
}
