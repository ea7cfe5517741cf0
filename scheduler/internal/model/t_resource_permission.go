package model

import (
	"strings"
	"time"
)

const TableNameTResourcePermission = "t_resource_permission"

// TResourcePermission 资源授权，Permissions 为逗号分隔的权限列表
type TResourcePermission struct {
	ID           int64        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ResourceType ResourceType `gorm:"column:resource_type;type:varchar(32);not null;uniqueIndex:uk_resource_permission" json:"resource_type"`
	ResourceID   int64        `gorm:"column:resource_id;not null;uniqueIndex:uk_resource_permission" json:"resource_id"`
	UserID       int64        `gorm:"column:user_id;not null;uniqueIndex:uk_resource_permission" json:"user_id"`
	Permissions  string       `gorm:"column:permissions;type:varchar(255);not null" json:"permissions"`
	Creator      bool         `gorm:"column:creator;not null;default:false" json:"creator"`
	CreatedAt    time.Time    `gorm:"column:created_at;not null" json:"created_at"`
}

func (*TResourcePermission) TableName() string {
	return TableNameTResourcePermission
}

// Has 是否包含指定权限
func (p *TResourcePermission) Has(perm Permission) bool {
	if p.Creator {
		return true
	}
	for _, s := range strings.Split(p.Permissions, ",") {
		if Permission(strings.TrimSpace(s)) == perm {
			return true
		}
	}
	return false
}

// JoinPermissions 权限列表序列化为逗号分隔
func JoinPermissions(perms []Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

const TableNameTNotice = "t_notice"

// TNotice 已投递的通知，每个接收人一条
type TNotice struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EventID     string    `gorm:"column:event_id;type:varchar(64);not null;uniqueIndex:uk_notice_event_recipient" json:"event_id"`
	Code        string    `gorm:"column:code;type:varchar(64);not null" json:"code"`
	TargetType  string    `gorm:"column:target_type;type:varchar(32);not null" json:"target_type"`
	TargetID    int64     `gorm:"column:target_id;not null" json:"target_id"`
	Message     string    `gorm:"column:message;type:text" json:"message"`
	RecipientID int64     `gorm:"column:recipient_id;not null;uniqueIndex:uk_notice_event_recipient;index:idx_notice_recipient" json:"recipient_id"`
	TenantID    int64     `gorm:"column:tenant_id;not null;default:0" json:"tenant_id"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (*TNotice) TableName() string {
	return TableNameTNotice
}

// AllModels 所有表模型，用于自动迁移
func AllModels() []any {
	return []any{
		&TExecution{},
		&TExecutionNode{},
		&TExecutionSample{},
		&TExecutionResult{},
		&TNode{},
		&TTenantQuota{},
		&TMockService{},
		&TMockServiceDns{},
		&TMockApi{},
		&TMockApiResponse{},
		&TMockApiLog{},
		&TResourcePermission{},
		&TNotice{},
	}
}
