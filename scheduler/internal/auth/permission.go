package auth

import (
	"context"
	"fmt"
	"time"

	"yqhp/common/utils"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Authorizer 资源级授权，系统身份不受限
type Authorizer struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuthorizer 创建授权检查
func NewAuthorizer(db *gorm.DB) *Authorizer {
	return &Authorizer{db: db, now: time.Now}
}

// WithClock 替换时钟
func (a *Authorizer) WithClock(now func() time.Time) *Authorizer {
	a.now = now
	return a
}

func (a *Authorizer) load(ctx context.Context, rt model.ResourceType, resourceIDs []int64, userID int64) ([]*model.TResourcePermission, error) {
	var list []*model.TResourcePermission
	err := a.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id IN ? AND user_id = ?", rt, resourceIDs, userID).
		Find(&list).Error
	return list, err
}

// Check 校验 actor 对资源拥有 perm
func (a *Authorizer) Check(ctx context.Context, actor types.Actor, rt model.ResourceType, resourceID int64, perm model.Permission) error {
	if actor.System {
		return nil
	}
	list, err := a.load(ctx, rt, []int64{resourceID}, actor.UserID)
	if err != nil {
		return err
	}
	for _, p := range list {
		if p.Has(perm) {
			return nil
		}
	}
	return types.NewAppErrorWithDetails(types.ErrCodeForbidden, "没有操作权限",
		fmt.Sprintf("%s 缺少 %s/%d 的 %s 权限", actor, rt, resourceID, perm))
}

// CheckModifyAuth 修改权限
func (a *Authorizer) CheckModifyAuth(ctx context.Context, actor types.Actor, rt model.ResourceType, resourceID int64) error {
	return a.Check(ctx, actor, rt, resourceID, model.PermissionModify)
}

// CheckGrantAuth 授权权限
func (a *Authorizer) CheckGrantAuth(ctx context.Context, actor types.Actor, rt model.ResourceType, resourceID int64) error {
	return a.Check(ctx, actor, rt, resourceID, model.PermissionGrant)
}

// BatchCheckPermission 返回 actor 拥有 perm 的资源 ID 集合
func (a *Authorizer) BatchCheckPermission(ctx context.Context, actor types.Actor, rt model.ResourceType, resourceIDs []int64, perm model.Permission) (map[int64]bool, error) {
	allowed := make(map[int64]bool, len(resourceIDs))
	ids := utils.SliceUnique(resourceIDs)
	if len(ids) == 0 {
		return allowed, nil
	}
	if actor.System {
		for _, id := range ids {
			allowed[id] = true
		}
		return allowed, nil
	}
	list, err := a.load(ctx, rt, ids, actor.UserID)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		if p.Has(perm) {
			allowed[p.ResourceID] = true
		}
	}
	return allowed, nil
}

// GrantCreator 记录创建者拥有全部权限，重复调用无副作用
func (a *Authorizer) GrantCreator(ctx context.Context, actor types.Actor, rt model.ResourceType, resourceID int64) error {
	if actor.UserID <= 0 {
		return nil
	}
	return a.upsert(ctx, &model.TResourcePermission{
		ResourceType: rt,
		ResourceID:   resourceID,
		UserID:       actor.UserID,
		Permissions:  model.JoinPermissions(model.CreatorPermissions()),
		Creator:      true,
		CreatedAt:    a.now(),
	})
}

// Grant 授予其他用户权限，要求 actor 拥有授权权限
func (a *Authorizer) Grant(ctx context.Context, actor types.Actor, rt model.ResourceType, resourceID, userID int64, perms []model.Permission) error {
	if err := a.CheckGrantAuth(ctx, actor, rt, resourceID); err != nil {
		return err
	}
	if len(perms) == 0 {
		return types.NewAppError(types.ErrCodeInvalidParameter, "权限不能为空")
	}
	return a.upsert(ctx, &model.TResourcePermission{
		ResourceType: rt,
		ResourceID:   resourceID,
		UserID:       userID,
		Permissions:  model.JoinPermissions(utils.SliceUnique(perms)),
		CreatedAt:    a.now(),
	})
}

func (a *Authorizer) upsert(ctx context.Context, p *model.TResourcePermission) error {
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resource_type"}, {Name: "resource_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permissions"}),
	}).Create(p).Error
}
