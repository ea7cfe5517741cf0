package repo

import (
	"context"
	"errors"
	"fmt"

	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/types"

	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// MockServiceRepo Mock 服务及其域名占用仓储
type MockServiceRepo struct {
	db *gorm.DB
}

// NewMockServiceRepo 创建 Mock 服务仓储
func NewMockServiceRepo(db *gorm.DB) *MockServiceRepo {
	return &MockServiceRepo{db: db}
}

// Create 持久化服务，(node_id, service_port) 冲突返回 PortConflict
func (r *MockServiceRepo) Create(ctx context.Context, svc *model.TMockService) error {
	err := r.db.WithContext(ctx).Create(svc).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return types.NewAppErrorWithCause(types.ErrCodePortConflict,
			fmt.Sprintf("节点 %d 端口 %d 已被占用", svc.NodeID, svc.ServicePort), err)
	}
	return err
}

// Get 按 ID 读取服务
func (r *MockServiceRepo) Get(ctx context.Context, id int64) (*model.TMockService, error) {
	var svc model.TMockService
	err := r.db.WithContext(ctx).Clauses(dbresolver.Write).First(&svc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewAppError(types.ErrCodeNotFound, "Mock 服务不存在")
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// UsedPorts 节点上已占用的端口
func (r *MockServiceRepo) UsedPorts(ctx context.Context, nodeID int64) ([]int, error) {
	var ports []int
	err := r.db.WithContext(ctx).Clauses(dbresolver.Write).Model(&model.TMockService{}).
		Where("node_id = ?", nodeID).
		Order("service_port ASC").
		Pluck("service_port", &ports).Error
	return ports, err
}

// CountActiveOnNode 节点上未停止的服务数
func (r *MockServiceRepo) CountActiveOnNode(ctx context.Context, nodeID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Clauses(dbresolver.Write).Model(&model.TMockService{}).
		Where("node_id = ? AND status <> ?", nodeID, model.MockServiceStatusStopped).
		Count(&n).Error
	return n, err
}

// CountTenant 租户服务总数
func (r *MockServiceRepo) CountTenant(ctx context.Context, tenantID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Clauses(dbresolver.Write).Model(&model.TMockService{}).
		Where("tenant_id = ?", tenantID).
		Count(&n).Error
	return n, err
}

// UpdateFields 更新服务字段
func (r *MockServiceRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.TMockService{}).Where("id = ?", id).Updates(fields).Error
}

// CreateDns 记录域名占用，(domain, node_id) 冲突返回 DnsConflict
func (r *MockServiceRepo) CreateDns(ctx context.Context, d *model.TMockServiceDns) error {
	err := r.db.WithContext(ctx).Create(d).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return types.NewAppErrorWithCause(types.ErrCodeDnsConflict,
			fmt.Sprintf("域名 %s 在节点 %d 上已被占用", d.Domain, d.NodeID), err)
	}
	return err
}

// GetDns 按 ID 读取域名占用
func (r *MockServiceRepo) GetDns(ctx context.Context, id int64) (*model.TMockServiceDns, error) {
	var d model.TMockServiceDns
	err := r.db.WithContext(ctx).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDnsRecord 回写解析服务商的记录 ID
func (r *MockServiceRepo) UpdateDnsRecord(ctx context.Context, id int64, recordID string) error {
	return r.db.WithContext(ctx).Model(&model.TMockServiceDns{}).Where("id = ?", id).
		Update("record_id", recordID).Error
}

// DeleteDns 删除域名占用
func (r *MockServiceRepo) DeleteDns(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.TMockServiceDns{}, id).Error
}

// DeleteWithDependents 删除接口、日志、响应和授权后最后删除服务本身
func (r *MockServiceRepo) DeleteWithDependents(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("mock_service_id = ?", id).Delete(&model.TMockApiResponse{}).Error; err != nil {
			return fmt.Errorf("删除接口响应失败: %w", err)
		}
		if err := tx.Where("mock_service_id = ?", id).Delete(&model.TMockApiLog{}).Error; err != nil {
			return fmt.Errorf("删除接口日志失败: %w", err)
		}
		if err := tx.Where("mock_service_id = ?", id).Delete(&model.TMockApi{}).Error; err != nil {
			return fmt.Errorf("删除接口失败: %w", err)
		}
		if err := tx.Where("resource_type = ? AND resource_id = ?", model.ResourceTypeMockService, id).
			Delete(&model.TResourcePermission{}).Error; err != nil {
			return fmt.Errorf("删除授权失败: %w", err)
		}
		if err := tx.Delete(&model.TMockService{}, id).Error; err != nil {
			return fmt.Errorf("删除 Mock 服务失败: %w", err)
		}
		return nil
	})
}
