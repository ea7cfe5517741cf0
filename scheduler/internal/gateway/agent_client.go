// Package gateway 节点 Agent 的远程调用
package gateway

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"yqhp/common/utils"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/types"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"
)

// 运行体类型
const (
	KindExecution   = "execution"
	KindMockService = "mock_service"
)

// Target 远程节点
type Target struct {
	NodeID  int64  `json:"node_id"`
	Address string `json:"address"` // host:port
}

// TargetOf 节点对应的 Agent 地址
func TargetOf(n *model.TNode) Target {
	return Target{
		NodeID:  n.ID,
		Address: net.JoinHostPort(n.IP, strconv.Itoa(n.AgentPort)),
	}
}

// StartRequest 启动请求
type StartRequest struct {
	Kind        string `json:"kind"`
	ExecutionID int64  `json:"execution_id,omitempty"`
	ScriptID    int64  `json:"script_id,omitempty"`
	NodeIndex   int    `json:"node_index"`
	NodeTotal   int    `json:"node_total"`
	// ReportInterval 采样上报间隔（秒）
	ReportInterval int    `json:"report_interval,omitempty"`
	ServiceID      int64  `json:"service_id,omitempty"`
	ServicePort    int    `json:"service_port,omitempty"`
	ServiceDomain  string `json:"service_domain,omitempty"`
	AuthFlag       bool   `json:"auth_flag,omitempty"`
}

// StopRequest 停止请求
type StopRequest struct {
	Kind        string `json:"kind"`
	ExecutionID int64  `json:"execution_id,omitempty"`
	ServiceID   int64  `json:"service_id,omitempty"`
}

// NodeResult 单个节点的执行结果
type NodeResult struct {
	NodeID       int64    `json:"node_id"`
	Success      bool     `json:"success"`
	ExitCode     int      `json:"exit_code"`
	ConsoleLines []string `json:"console_lines"`
}

// StartResult 启动结果
type StartResult = NodeResult

// StopResult 停止结果
type StopResult = NodeResult

// Gateway 节点 Agent 调用
type Gateway interface {
	Start(ctx context.Context, targets []Target, req StartRequest) ([]StartResult, error)
	Stop(ctx context.Context, targets []Target, req StopRequest) ([]StopResult, error)
	Ping(ctx context.Context, target Target) error
}

// ResultsError 有节点失败时返回 REMOTE_CALL_FAILED，详情为各失败节点的控制台输出
func ResultsError(results []NodeResult) error {
	var failed []string
	for _, r := range results {
		if r.Success {
			continue
		}
		failed = append(failed, fmt.Sprintf("节点 %d (exit %d): %s", r.NodeID, r.ExitCode, strings.Join(r.ConsoleLines, "\n")))
	}
	if len(failed) == 0 {
		return nil
	}
	return types.NewAppErrorWithDetails(types.ErrCodeRemoteCallFailed, "节点执行失败", strings.Join(failed, "\n"))
}

// AgentClient 基于 fasthttp 的 Agent 客户端
type AgentClient struct {
	client  *fasthttp.Client
	timeout time.Duration
}

// NewAgentClient 创建 Agent 客户端，timeout 应远小于任务锁租约
func NewAgentClient(timeout time.Duration) *AgentClient {
	return &AgentClient{
		client: &fasthttp.Client{
			Name:                "yqhp-scheduler",
			MaxConnsPerHost:     64,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
		},
		timeout: timeout,
	}
}

// Start 并发向各节点发起启动，单个节点的网络错误记为该节点失败
func (c *AgentClient) Start(ctx context.Context, targets []Target, req StartRequest) ([]StartResult, error) {
	results := make([]StartResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		i, t := i, t
		nodeReq := req
		nodeReq.NodeIndex = i
		nodeReq.NodeTotal = len(targets)
		g.Go(func() error {
			results[i] = c.call(gctx, t, "/api/v1/runner/start", nodeReq)
			return nil
		})
	}
	_ = g.Wait()
	return results, ResultsError(results)
}

// Stop 并发向各节点发起停止
func (c *AgentClient) Stop(ctx context.Context, targets []Target, req StopRequest) ([]StopResult, error) {
	results := make([]StopResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			results[i] = c.call(gctx, t, "/api/v1/runner/stop", req)
			return nil
		})
	}
	_ = g.Wait()
	return results, ResultsError(results)
}

// Ping 检查节点 Agent 是否可用
func (c *AgentClient) Ping(ctx context.Context, target Target) error {
	if _, err := c.doRequest(ctx, target, fasthttp.MethodGet, "/api/v1/ping", nil); err != nil {
		return types.NewAppErrorWithCause(types.ErrCodeNodeUnavailable,
			fmt.Sprintf("节点 %d Agent 不可达", target.NodeID), err)
	}
	return nil
}

// call 单节点调用，结果中的 NodeID 以调用方为准
func (c *AgentClient) call(ctx context.Context, target Target, path string, body any) NodeResult {
	raw, err := c.doRequest(ctx, target, fasthttp.MethodPost, path, body)
	if err != nil {
		return NodeResult{NodeID: target.NodeID, ExitCode: -1, ConsoleLines: []string{err.Error()}}
	}
	var res NodeResult
	if err := utils.Unmarshal(raw, &res); err != nil {
		return NodeResult{NodeID: target.NodeID, ExitCode: -1, ConsoleLines: []string{fmt.Sprintf("解析响应失败: %v", err)}}
	}
	res.NodeID = target.NodeID
	return res
}

// doRequest 执行 HTTP 请求
func (c *AgentClient) doRequest(ctx context.Context, target Target, method, path string, body any) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://" + target.Address + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	req.Header.Set("X-Node-ID", strconv.FormatInt(target.NodeID, 10))
	if body != nil {
		data, err := utils.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		req.SetBodyRaw(data)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		if err == fasthttp.ErrTimeout {
			return nil, fmt.Errorf("请求超时（超时时间: %s）", c.timeout)
		}
		return nil, fmt.Errorf("请求失败: %w", err)
	}

	respBody := append([]byte(nil), resp.Body()...)
	if resp.StatusCode() >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		if err := utils.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return nil, fmt.Errorf("API 错误 (%d): %s", resp.StatusCode(), errResp.Message)
		}
		return nil, fmt.Errorf("API 错误 (%d): %s", resp.StatusCode(), string(respBody))
	}
	return respBody, nil
}
