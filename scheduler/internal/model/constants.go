package model

// ExecutionStatus 执行状态
type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "pending"    // 等待中
	ExecutionStatusScheduling ExecutionStatus = "scheduling" // 调度中，已被准入任务认领
	ExecutionStatusRunning    ExecutionStatus = "running"    // 运行中
	ExecutionStatusCompleted  ExecutionStatus = "completed"  // 已完成
	ExecutionStatusFailed     ExecutionStatus = "failed"     // 已失败
	ExecutionStatusTimeout    ExecutionStatus = "timeout"    // 已超时
	ExecutionStatusStopped    ExecutionStatus = "stopped"    // 已停止
)

// IsTerminal 判断是否是终态
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusTimeout, ExecutionStatusStopped:
		return true
	default:
		return false
	}
}

// IsActive 占用节点和并发配额的状态
func (s ExecutionStatus) IsActive() bool {
	return s == ExecutionStatusScheduling || s == ExecutionStatusRunning
}

// IsValid 验证状态是否有效
func (s ExecutionStatus) IsValid() bool {
	return s == ExecutionStatusPending || s.IsActive() || s.IsTerminal()
}

// TerminalStatuses 所有终态
func TerminalStatuses() []ExecutionStatus {
	return []ExecutionStatus{
		ExecutionStatusCompleted,
		ExecutionStatusFailed,
		ExecutionStatusTimeout,
		ExecutionStatusStopped,
	}
}

// ActiveStatuses 占用节点的状态
func ActiveStatuses() []ExecutionStatus {
	return []ExecutionStatus{ExecutionStatusScheduling, ExecutionStatusRunning}
}

// MockServiceStatus Mock 服务状态
type MockServiceStatus string

const (
	MockServiceStatusNotStarted  MockServiceStatus = "not_started"
	MockServiceStatusRunning     MockServiceStatus = "running"
	MockServiceStatusStopped     MockServiceStatus = "stopped"
	MockServiceStatusStartFailed MockServiceStatus = "start_failed"
)

// NodeRole 节点角色
type NodeRole string

const (
	NodeRoleExecution   NodeRole = "execution"    // 执行节点
	NodeRoleMockService NodeRole = "mock_service" // Mock 服务节点
)

// ResourceType 授权资源类型
type ResourceType string

const (
	ResourceTypeExecution   ResourceType = "execution"
	ResourceTypeMockService ResourceType = "mock_service"
)

// Permission 资源权限
type Permission string

const (
	PermissionView   Permission = "view"
	PermissionModify Permission = "modify"
	PermissionDelete Permission = "delete"
	PermissionGrant  Permission = "grant"
	PermissionRun    Permission = "run"
)

// CreatorPermissions 创建者默认拥有的权限
func CreatorPermissions() []Permission {
	return []Permission{PermissionView, PermissionModify, PermissionDelete, PermissionGrant, PermissionRun}
}

// 通知事件编码
const (
	EventExecutionCompleted = "EXECUTION_COMPLETED"
	EventExecutionFailed    = "EXECUTION_FAILED"
	EventExecutionTimeout   = "EXECUTION_TIMEOUT"
	EventExecutionStopped   = "EXECUTION_STOPPED"
	EventResultSyncFailed   = "RESULT_SYNC_FAILED"
)
