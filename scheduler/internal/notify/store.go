package notify

import (
	"context"

	"yqhp/scheduler/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NoticeStore 通知落库，每个接收人一条
type NoticeStore struct {
	db *gorm.DB
}

// NewNoticeStore 创建通知存储
func NewNoticeStore(db *gorm.DB) *NoticeStore {
	return &NoticeStore{db: db}
}

// Deliver 写入事件的全部接收人，重复投递幂等
func (s *NoticeStore) Deliver(ctx context.Context, e Event) (int64, error) {
	recipients := Recipients(e.Recipients...)
	if len(recipients) == 0 {
		return 0, nil
	}
	rows := make([]*model.TNotice, 0, len(recipients))
	for _, uid := range recipients {
		rows = append(rows, &model.TNotice{
			EventID:     e.ID,
			Code:        e.Code,
			TargetType:  e.TargetType,
			TargetID:    e.TargetID,
			Message:     e.Message,
			RecipientID: uid,
			TenantID:    e.TenantID,
			CreatedAt:   e.CreatedAt,
		})
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	return res.RowsAffected, res.Error
}

// ListByRecipient 用户最近的通知
func (s *NoticeStore) ListByRecipient(ctx context.Context, userID int64, limit int) ([]*model.TNotice, error) {
	var list []*model.TNotice
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
