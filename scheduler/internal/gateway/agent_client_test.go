package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent 模拟节点 Agent
func fakeAgent(t *testing.T, handler func(path string, body map[string]any) (int, any)) Target {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}
		status, resp := handler(r.URL.Path, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return Target{NodeID: 1, Address: strings.TrimPrefix(srv.URL, "http://")}
}

func TestAgentClient_StartSuccess(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	target := fakeAgent(t, func(path string, body map[string]any) (int, any) {
		gotPath, gotBody = path, body
		return http.StatusOK, NodeResult{Success: true, ExitCode: 0, ConsoleLines: []string{"started"}}
	})

	c := NewAgentClient(2 * time.Second)
	results, err := c.Start(context.Background(), []Target{target}, StartRequest{Kind: KindExecution, ExecutionID: 11, ReportInterval: 30})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, int64(1), results[0].NodeID)
	assert.Equal(t, "/api/v1/runner/start", gotPath)
	assert.Equal(t, float64(11), gotBody["execution_id"])
	assert.Equal(t, float64(1), gotBody["node_total"])
}

func TestAgentClient_StartFailureJoinsConsole(t *testing.T) {
	ok := fakeAgent(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, NodeResult{Success: true}
	})
	bad := fakeAgent(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, NodeResult{Success: false, ExitCode: 2, ConsoleLines: []string{"script not found", "exit"}}
	})
	bad.NodeID = 2

	c := NewAgentClient(2 * time.Second)
	results, err := c.Start(context.Background(), []Target{ok, bad}, StartRequest{Kind: KindExecution, ExecutionID: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRemoteCallFailed))
	assert.Contains(t, err.Error(), "节点 2 (exit 2)")
	assert.Contains(t, err.Error(), "script not found\nexit")
	assert.NotContains(t, err.Error(), "节点 1 ")
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
}

func TestAgentClient_HTTPErrorAndUnreachable(t *testing.T) {
	broken := fakeAgent(t, func(string, map[string]any) (int, any) {
		return http.StatusInternalServerError, map[string]string{"message": "agent busy"}
	})
	c := NewAgentClient(500 * time.Millisecond)

	results, err := c.Stop(context.Background(), []Target{broken}, StopRequest{Kind: KindMockService, ServiceID: 3})
	require.Error(t, err)
	assert.Equal(t, -1, results[0].ExitCode)
	assert.Contains(t, err.Error(), "API 错误 (500): agent busy")

	unreachable := Target{NodeID: 9, Address: "127.0.0.1:1"}
	err = c.Ping(context.Background(), unreachable)
	assert.True(t, errors.Is(err, types.ErrNodeUnavailable))
}

func TestAgentClient_Ping(t *testing.T) {
	target := fakeAgent(t, func(path string, _ map[string]any) (int, any) {
		assert.Equal(t, "/api/v1/ping", path)
		return http.StatusOK, map[string]string{"status": "ok"}
	})
	assert.NoError(t, NewAgentClient(time.Second).Ping(context.Background(), target))
}

func TestResultsError(t *testing.T) {
	assert.NoError(t, ResultsError(nil))
	assert.NoError(t, ResultsError([]NodeResult{{NodeID: 1, Success: true}}))
}

func TestTargetOf(t *testing.T) {
	target := TargetOf(&model.TNode{ID: 5, IP: "10.1.2.3", AgentPort: 8088})
	assert.Equal(t, Target{NodeID: 5, Address: "10.1.2.3:8088"}, target)
}
