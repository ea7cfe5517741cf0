package model

import "time"

const TableNameTExecution = "t_execution"

// TExecution 执行记录表
type TExecution struct {
	ID                  int64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID            int64           `gorm:"column:tenant_id;not null;index:idx_execution_tenant_status" json:"tenant_id"`
	Name                string          `gorm:"column:name;type:varchar(255);not null" json:"name"`
	ScriptID            int64           `gorm:"column:script_id;not null;default:0" json:"script_id"`
	Status              ExecutionStatus `gorm:"column:status;type:varchar(20);not null;index:idx_execution_tenant_status;index:idx_execution_status_priority" json:"status"`
	Priority            int             `gorm:"column:priority;not null;default:0;index:idx_execution_status_priority" json:"priority"`
	NodeCount           int             `gorm:"column:node_count;not null;default:1" json:"node_count"`
	ReportInterval      int             `gorm:"column:report_interval;not null;default:5" json:"report_interval"` // 秒
	ActualStartAt       *time.Time      `gorm:"column:actual_start_at" json:"actual_start_at"`
	EndAt               *time.Time      `gorm:"column:end_at" json:"end_at"`
	MeterStatus         string          `gorm:"column:meter_status;type:varchar(32);default:''" json:"meter_status"`
	MeterMessage        string          `gorm:"column:meter_message;type:text" json:"meter_message"`
	Message             string          `gorm:"column:message;type:text" json:"message"`
	ResultSyncAttempted bool            `gorm:"column:result_sync_attempted;not null;default:false" json:"result_sync_attempted"`
	ResultSyncStartedAt *time.Time      `gorm:"column:result_sync_started_at" json:"result_sync_started_at"`
	ResultSyncMessage   string          `gorm:"column:result_sync_message;type:text" json:"result_sync_message"`
	CreatedBy           int64           `gorm:"column:created_by;not null;default:0" json:"created_by"`
	ModifiedBy          int64           `gorm:"column:modified_by;not null;default:0" json:"modified_by"`
	CreatedAt           time.Time       `gorm:"column:created_at;not null;index:idx_execution_status_priority" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (*TExecution) TableName() string {
	return TableNameTExecution
}

const TableNameTExecutionNode = "t_execution_node"

// TExecutionNode 执行与节点的关联，随执行结束删除
type TExecutionNode struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ExecutionID int64     `gorm:"column:execution_id;not null;index:idx_execution_node_execution" json:"execution_id"`
	NodeID      int64     `gorm:"column:node_id;not null;index:idx_execution_node_node" json:"node_id"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (*TExecutionNode) TableName() string {
	return TableNameTExecutionNode
}

const TableNameTExecutionSample = "t_execution_sample"

// TExecutionSample 执行节点上报的采样，只追加
type TExecutionSample struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ExecutionID   int64     `gorm:"column:execution_id;not null;index:idx_sample_execution_ts" json:"execution_id"`
	NodeID        int64     `gorm:"column:node_id;not null;default:0" json:"node_id"`
	Timestamp     time.Time `gorm:"column:timestamp;not null;index:idx_sample_execution_ts" json:"timestamp"`
	Status        string    `gorm:"column:status;type:varchar(32);default:''" json:"status"`
	Message       string    `gorm:"column:message;type:text" json:"message"`
	TotalRequests int64     `gorm:"column:total_requests;not null;default:0" json:"total_requests"`
	ErrorRequests int64     `gorm:"column:error_requests;not null;default:0" json:"error_requests"`
}

func (*TExecutionSample) TableName() string {
	return TableNameTExecutionSample
}

const TableNameTExecutionResult = "t_execution_result"

// TExecutionResult 执行结果汇总
type TExecutionResult struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ExecutionID   int64      `gorm:"column:execution_id;not null;uniqueIndex:uk_execution_result" json:"execution_id"`
	SampleCount   int64      `gorm:"column:sample_count;not null;default:0" json:"sample_count"`
	TotalRequests int64      `gorm:"column:total_requests;not null;default:0" json:"total_requests"`
	ErrorRequests int64      `gorm:"column:error_requests;not null;default:0" json:"error_requests"`
	FirstSampleAt *time.Time `gorm:"column:first_sample_at" json:"first_sample_at"`
	LastSampleAt  *time.Time `gorm:"column:last_sample_at" json:"last_sample_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null" json:"created_at"`
}

func (*TExecutionResult) TableName() string {
	return TableNameTExecutionResult
}
