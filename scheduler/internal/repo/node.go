package repo

import (
	"context"
	"errors"
	"time"

	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/types"

	"gorm.io/gorm"
)

// NodeRepo 节点与执行节点关联仓储
type NodeRepo struct {
	db *gorm.DB
}

// NewNodeRepo 创建节点仓储
func NewNodeRepo(db *gorm.DB) *NodeRepo {
	return &NodeRepo{db: db}
}

// Get 按 ID 读取节点
func (r *NodeRepo) Get(ctx context.Context, id int64) (*model.TNode, error) {
	var n model.TNode
	err := r.db.WithContext(ctx).First(&n, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewAppError(types.ErrCodeNotFound, "节点不存在")
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// EligibleNodes 租户可用的已启用节点，租户自有节点在前，其次共享节点
func (r *NodeRepo) EligibleNodes(ctx context.Context, tenantID int64, role model.NodeRole) ([]*model.TNode, error) {
	var list []*model.TNode
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND role = ? AND tenant_id IN ?", true, role, []int64{0, tenantID}).
		Order("tenant_id DESC").Order("id ASC").
		Find(&list).Error
	return list, err
}

// AssociationCounts 各节点当前关联的执行数
func (r *NodeRepo) AssociationCounts(ctx context.Context, nodeIDs []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		NodeID int64
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&model.TExecutionNode{}).
		Select("node_id, COUNT(*) AS total").
		Where("node_id IN ?", nodeIDs).
		Group("node_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.NodeID] = row.Total
	}
	return counts, nil
}

// CreateAssociations 为执行记录关联节点，返回新建关联
func (r *NodeRepo) CreateAssociations(ctx context.Context, executionID int64, nodeIDs []int64, now time.Time) ([]*model.TExecutionNode, error) {
	rows := make([]*model.TExecutionNode, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		rows = append(rows, &model.TExecutionNode{ExecutionID: executionID, NodeID: id, CreatedAt: now})
	}
	if len(rows) == 0 {
		return rows, nil
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAssociations 执行记录的节点关联
func (r *NodeRepo) ListAssociations(ctx context.Context, executionID int64) ([]*model.TExecutionNode, error) {
	var list []*model.TExecutionNode
	err := r.db.WithContext(ctx).Where("execution_id = ?", executionID).Order("id ASC").Find(&list).Error
	return list, err
}

// NodesOf 执行记录关联的节点
func (r *NodeRepo) NodesOf(ctx context.Context, executionID int64) ([]*model.TNode, error) {
	var list []*model.TNode
	err := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&model.TExecutionNode{}).Select("node_id").Where("execution_id = ?", executionID)).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

// DeleteAssociations 按关联 ID 删除
func (r *NodeRepo) DeleteAssociations(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.TExecutionNode{})
	return res.RowsAffected, res.Error
}

// DeleteAssociationsByExecution 删除执行记录的全部节点关联
func (r *NodeRepo) DeleteAssociationsByExecution(ctx context.Context, executionID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("execution_id = ?", executionID).Delete(&model.TExecutionNode{})
	return res.RowsAffected, res.Error
}

// FinishedWithAssociations 已终态但仍持有节点关联的执行 ID
func (r *NodeRepo) FinishedWithAssociations(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	q := r.db.WithContext(ctx).Model(&model.TExecutionNode{}).
		Distinct("t_execution_node.execution_id").
		Joins("JOIN t_execution ON t_execution.id = t_execution_node.execution_id").
		Where("t_execution.status IN ?", model.TerminalStatuses()).
		Order("t_execution_node.execution_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Pluck("t_execution_node.execution_id", &ids).Error
	return ids, err
}

// OrphanAssociations 执行记录缺失、非活跃或节点已删除的关联
func (r *NodeRepo) OrphanAssociations(ctx context.Context, limit int) ([]*model.TExecutionNode, error) {
	var list []*model.TExecutionNode
	q := r.db.WithContext(ctx).Model(&model.TExecutionNode{}).
		Select("t_execution_node.*").
		Joins("LEFT JOIN t_execution ON t_execution.id = t_execution_node.execution_id").
		Joins("LEFT JOIN t_node ON t_node.id = t_execution_node.node_id").
		Where("t_execution.id IS NULL OR t_node.id IS NULL OR t_execution.status NOT IN ?", []model.ExecutionStatus{
			model.ExecutionStatusScheduling,
			model.ExecutionStatusRunning,
		}).
		Order("t_execution_node.id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&list).Error
	return list, err
}
