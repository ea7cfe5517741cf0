package handler

import (
	"yqhp/common/response"
	"yqhp/scheduler/internal/logic"

	"github.com/gofiber/fiber/v2"
)

// NoticeHandler 通知处理器
type NoticeHandler struct{}

// NewNoticeHandler 创建通知处理器
func NewNoticeHandler() *NoticeHandler {
	return &NoticeHandler{}
}

// ListMine 当前用户的通知
// GET /api/notices?limit=20
func (h *NoticeHandler) ListMine(c *fiber.Ctx) error {
	list, err := logic.NewNoticeLogic(c.UserContext()).ListMine(c.QueryInt("limit", 20))
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, list)
}
