package types

import "fmt"

// Actor 操作主体，显式传递给调度和分配调用
type Actor struct {
	UserID   int64 `json:"user_id"`
	TenantID int64 `json:"tenant_id"`
	System   bool  `json:"system"`
}

// SystemActor 周期任务以系统身份代表租户执行
func SystemActor(tenantID int64) Actor {
	return Actor{TenantID: tenantID, System: true}
}

// UserActor 用户发起的操作
func UserActor(userID, tenantID int64) Actor {
	return Actor{UserID: userID, TenantID: tenantID}
}

func (a Actor) String() string {
	if a.System {
		return fmt.Sprintf("system@tenant:%d", a.TenantID)
	}
	return fmt.Sprintf("user:%d@tenant:%d", a.UserID, a.TenantID)
}
