package model

import "time"

const TableNameTMockService = "t_mock_service"

// TMockService Mock 服务，(node_id, service_port) 唯一
type TMockService struct {
	ID            int64             `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID      int64             `gorm:"column:tenant_id;not null;index:idx_mock_service_tenant" json:"tenant_id"`
	Name          string            `gorm:"column:name;type:varchar(128);not null" json:"name"`
	NodeID        int64             `gorm:"column:node_id;not null;uniqueIndex:uk_mock_service_node_port" json:"node_id"`
	NodeIP        string            `gorm:"column:node_ip;type:varchar(64);not null" json:"node_ip"`
	ServicePort   int               `gorm:"column:service_port;not null;uniqueIndex:uk_mock_service_node_port" json:"service_port"`
	ServiceDomain *string           `gorm:"column:service_domain;type:varchar(255)" json:"service_domain"`
	ServiceDnsID  *int64            `gorm:"column:service_dns_id" json:"service_dns_id"`
	AuthFlag      bool              `gorm:"column:auth_flag;not null;default:false" json:"auth_flag"`
	Status        MockServiceStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
	Message       string            `gorm:"column:message;type:text" json:"message"`
	CreatedBy     int64             `gorm:"column:created_by;not null;default:0" json:"created_by"`
	ModifiedBy    int64             `gorm:"column:modified_by;not null;default:0" json:"modified_by"`
	CreatedAt     time.Time         `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (*TMockService) TableName() string {
	return TableNameTMockService
}

const TableNameTMockServiceDns = "t_mock_service_dns"

// TMockServiceDns 域名解析占用，(domain, node_id) 唯一
type TMockServiceDns struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Domain    string    `gorm:"column:domain;type:varchar(255);not null;uniqueIndex:uk_mock_service_dns" json:"domain"`
	NodeID    int64     `gorm:"column:node_id;not null;uniqueIndex:uk_mock_service_dns" json:"node_id"`
	IP        string    `gorm:"column:ip;type:varchar(64);not null" json:"ip"`
	RecordID  string    `gorm:"column:record_id;type:varchar(255);default:''" json:"record_id"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (*TMockServiceDns) TableName() string {
	return TableNameTMockServiceDns
}

const TableNameTMockApi = "t_mock_api"

// TMockApi Mock 接口定义
type TMockApi struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MockServiceID int64     `gorm:"column:mock_service_id;not null;index:idx_mock_api_service" json:"mock_service_id"`
	Method        string    `gorm:"column:method;type:varchar(16);not null" json:"method"`
	Path          string    `gorm:"column:path;type:varchar(512);not null" json:"path"`
	CreatedAt     time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (*TMockApi) TableName() string {
	return TableNameTMockApi
}

const TableNameTMockApiResponse = "t_mock_api_response"

// TMockApiResponse Mock 接口响应规则
type TMockApiResponse struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MockServiceID int64  `gorm:"column:mock_service_id;not null;index:idx_mock_api_response_service" json:"mock_service_id"`
	MockApiID     int64  `gorm:"column:mock_api_id;not null" json:"mock_api_id"`
	StatusCode    int    `gorm:"column:status_code;not null;default:200" json:"status_code"`
	Body          string `gorm:"column:body;type:text" json:"body"`
}

func (*TMockApiResponse) TableName() string {
	return TableNameTMockApiResponse
}

const TableNameTMockApiLog = "t_mock_api_log"

// TMockApiLog Mock 接口调用日志
type TMockApiLog struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MockServiceID int64     `gorm:"column:mock_service_id;not null;index:idx_mock_api_log_service" json:"mock_service_id"`
	MockApiID     int64     `gorm:"column:mock_api_id;not null" json:"mock_api_id"`
	Request       string    `gorm:"column:request;type:text" json:"request"`
	CreatedAt     time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (*TMockApiLog) TableName() string {
	return TableNameTMockApiLog
}
