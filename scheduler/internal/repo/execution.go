// Package repo 执行、节点与 Mock 服务的持久化访问
package repo

import (
	"context"
	"errors"
	"time"

	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/types"

	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// ExecutionFilter 批量查询条件，零值字段不参与过滤
type ExecutionFilter struct {
	Statuses                []model.ExecutionStatus
	TenantID                int64
	CreatedBefore           *time.Time
	UpdatedBefore           *time.Time
	ResultSyncAttempted     *bool
	ResultSyncStartedBefore *time.Time
	// ResultSyncNotStarted 仅取未开始结果同步的行
	ResultSyncNotStarted bool
	// IDAfter 按 id 翻页的游标
	IDAfter int64
	// ByPriority 按 priority DESC, created_at ASC, id ASC 排序，否则按 id
	ByPriority bool
}

// ExecutionRepo 执行记录仓储
type ExecutionRepo struct {
	db *gorm.DB
}

// NewExecutionRepo 创建执行记录仓储
func NewExecutionRepo(db *gorm.DB) *ExecutionRepo {
	return &ExecutionRepo{db: db}
}

// DB 底层连接
func (r *ExecutionRepo) DB() *gorm.DB {
	return r.db
}

// Create 创建执行记录
func (r *ExecutionRepo) Create(ctx context.Context, e *model.TExecution) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// Get 按 ID 读取，走主库避免读到副本延迟的状态
func (r *ExecutionRepo) Get(ctx context.Context, id int64) (*model.TExecution, error) {
	var e model.TExecution
	err := r.db.WithContext(ctx).Clauses(dbresolver.Write).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewAppError(types.ErrCodeNotFound, "执行记录不存在")
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (f ExecutionFilter) apply(q *gorm.DB) *gorm.DB {
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.TenantID > 0 {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.CreatedBefore != nil {
		q = q.Where("created_at < ?", *f.CreatedBefore)
	}
	if f.UpdatedBefore != nil {
		q = q.Where("updated_at < ?", *f.UpdatedBefore)
	}
	if f.ResultSyncAttempted != nil {
		q = q.Where("result_sync_attempted = ?", *f.ResultSyncAttempted)
	}
	if f.ResultSyncStartedBefore != nil {
		q = q.Where("result_sync_started_at IS NOT NULL AND result_sync_started_at < ?", *f.ResultSyncStartedBefore)
	}
	if f.ResultSyncNotStarted {
		q = q.Where("result_sync_started_at IS NULL")
	}
	if f.IDAfter > 0 {
		q = q.Where("id > ?", f.IDAfter)
	}
	return q
}

// FindBatch 按条件批量查询
func (r *ExecutionRepo) FindBatch(ctx context.Context, f ExecutionFilter, limit int) ([]*model.TExecution, error) {
	q := f.apply(r.db.WithContext(ctx).Model(&model.TExecution{}))
	if f.ByPriority {
		q = q.Order("priority DESC").Order("created_at ASC").Order("id ASC")
	} else {
		q = q.Order("id ASC")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var list []*model.TExecution
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Count 按条件计数
func (r *ExecutionRepo) Count(ctx context.Context, f ExecutionFilter) (int64, error) {
	var n int64
	err := f.apply(r.db.WithContext(ctx).Model(&model.TExecution{})).Count(&n).Error
	return n, err
}

// TransitionStatus 仅当当前状态属于 from 时迁移到 to，返回是否有行被更新
func (r *ExecutionRepo) TransitionStatus(ctx context.Context, id int64, from []model.ExecutionStatus, to model.ExecutionStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status": to,
	}
	for k, v := range fields {
		updates[k] = v
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}

	res := r.db.WithContext(ctx).Model(&model.TExecution{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkRunning scheduling → running，actual_start_at 只写一次
func (r *ExecutionRepo) MarkRunning(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.TExecution{}).
		Where("id = ? AND status = ? AND actual_start_at IS NULL", id, model.ExecutionStatusScheduling).
		Updates(map[string]interface{}{
			"status":          model.ExecutionStatusRunning,
			"actual_start_at": now,
			"message":         "",
			"updated_at":      now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateFields 更新非状态字段
func (r *ExecutionRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.TExecution{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// CountTenantActive 租户 scheduling+running 执行数，走主库
func (r *ExecutionRepo) CountTenantActive(ctx context.Context, tenantID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Clauses(dbresolver.Write).Model(&model.TExecution{}).
		Where("tenant_id = ? AND status IN ?", tenantID, model.ActiveStatuses()).
		Count(&n).Error
	return n, err
}

// TenantQuota 租户配额，未配置时返回 nil
func (r *ExecutionRepo) TenantQuota(ctx context.Context, tenantID int64) (*model.TTenantQuota, error) {
	var q model.TTenantQuota
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Take(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// AppendSample 追加采样
func (r *ExecutionRepo) AppendSample(ctx context.Context, s *model.TExecutionSample) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// LatestSample 最新一条采样，没有时返回 nil
func (r *ExecutionRepo) LatestSample(ctx context.Context, executionID int64) (*model.TExecutionSample, error) {
	var s model.TExecutionSample
	err := r.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("timestamp DESC").Order("id DESC").
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindSamples 按时间顺序返回执行的全部采样
func (r *ExecutionRepo) FindSamples(ctx context.Context, executionID int64) ([]*model.TExecutionSample, error) {
	var list []*model.TExecutionSample
	err := r.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("timestamp ASC").Order("id ASC").
		Find(&list).Error
	return list, err
}
