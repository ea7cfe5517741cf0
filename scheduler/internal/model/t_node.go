package model

import "time"

const TableNameTNode = "t_node"

// TNode 执行/Mock 节点，TenantID 为 0 表示共享节点
type TNode struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID  int64     `gorm:"column:tenant_id;not null;default:0;index:idx_node_tenant_role" json:"tenant_id"`
	Name      string    `gorm:"column:name;type:varchar(128);not null" json:"name"`
	IP        string    `gorm:"column:ip;type:varchar(64);not null" json:"ip"`
	AgentPort int       `gorm:"column:agent_port;not null;default:8088" json:"agent_port"`
	Role      NodeRole  `gorm:"column:role;type:varchar(20);not null;index:idx_node_tenant_role" json:"role"`
	MemoryMB  int64     `gorm:"column:memory_mb;not null;default:0" json:"memory_mb"`
	Enabled   bool      `gorm:"column:enabled;not null;default:true" json:"enabled"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (*TNode) TableName() string {
	return TableNameTNode
}

const TableNameTTenantQuota = "t_tenant_quota"

// TTenantQuota 租户配额，缺省时使用配置默认值
type TTenantQuota struct {
	TenantID                int64 `gorm:"column:tenant_id;primaryKey;autoIncrement:false" json:"tenant_id"`
	MaxConcurrentExecutions int   `gorm:"column:max_concurrent_executions;not null;default:0" json:"max_concurrent_executions"`
	MaxMockServices         int   `gorm:"column:max_mock_services;not null;default:0" json:"max_mock_services"`
}

func (*TTenantQuota) TableName() string {
	return TableNameTTenantQuota
}
