package logic

import (
	"context"

	"yqhp/scheduler/internal/ctxutil"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/svc"
)

const maxNoticeLimit = 100

// NoticeLogic 通知逻辑
type NoticeLogic struct {
	ctx context.Context
}

// NewNoticeLogic 创建通知逻辑
func NewNoticeLogic(ctx context.Context) *NoticeLogic {
	return &NoticeLogic{ctx: ctx}
}

// ListMine 当前用户最近的通知
func (l *NoticeLogic) ListMine(limit int) ([]*model.TNotice, error) {
	if limit <= 0 || limit > maxNoticeLimit {
		limit = 20
	}
	return svc.Ctx.Notices.ListByRecipient(l.ctx, ctxutil.GetUserID(l.ctx), limit)
}
