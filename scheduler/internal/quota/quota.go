// Package quota 资源配额判定，只依赖传入的计数，不读写状态
package quota

import (
	"fmt"

	"yqhp/scheduler/internal/config"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/types"
)

// Limits 租户配额上限
type Limits struct {
	MaxConcurrentExecutions int64
	MaxMockServices         int64
}

// TenantLimits 租户配额，未单独配置的项取默认值
func TenantLimits(q *model.TTenantQuota, defaults config.QuotaConfig) Limits {
	limits := Limits{
		MaxConcurrentExecutions: int64(defaults.DefaultConcurrentExecutions),
		MaxMockServices:         int64(defaults.DefaultMockServices),
	}
	if q == nil {
		return limits
	}
	if q.MaxConcurrentExecutions > 0 {
		limits.MaxConcurrentExecutions = int64(q.MaxConcurrentExecutions)
	}
	if q.MaxMockServices > 0 {
		limits.MaxMockServices = int64(q.MaxMockServices)
	}
	return limits
}

// CheckTenantConcurrency 当前 scheduling+running 数已达上限时拒绝准入
func CheckTenantConcurrency(current, ceiling int64) error {
	if current >= ceiling {
		return types.NewAppErrorWithDetails(types.ErrCodeQuotaExceeded, "超出租户并发执行配额",
			fmt.Sprintf("当前 %d，上限 %d", current, ceiling))
	}
	return nil
}

// CheckTenantServices 租户 Mock 服务总数配额
func CheckTenantServices(current, ceiling int64) error {
	if current >= ceiling {
		return types.NewAppErrorWithDetails(types.ErrCodeQuotaExceeded, "超出租户 Mock 服务配额",
			fmt.Sprintf("当前 %d，上限 %d", current, ceiling))
	}
	return nil
}

// NodeCapacity 节点可承载的服务数：每 quantumMB 内存一个，不少于 minCapacity
func NodeCapacity(memoryMB, quantumMB int64, minCapacity int) int64 {
	capacity := int64(0)
	if quantumMB > 0 && memoryMB > 0 {
		capacity = memoryMB / quantumMB
	}
	if capacity < int64(minCapacity) {
		capacity = int64(minCapacity)
	}
	return capacity
}

// CheckNodeCapacity 节点上活跃服务数已达容量时拒绝，该错误不可重试
func CheckNodeCapacity(nodeID, active, capacity int64) error {
	if active >= capacity {
		return types.NewAppErrorWithDetails(types.ErrCodeNodeCapacityExceeded, "节点容量已满",
			fmt.Sprintf("节点 %d 已运行 %d 个服务，容量 %d", nodeID, active, capacity))
	}
	return nil
}

// IsRetryable 配额类错误可稍后重试，节点容量类错误需人工介入
func IsRetryable(err error) bool {
	return types.IsRetryable(err)
}
