package handler

import (
	"yqhp/common/response"
	"yqhp/scheduler/internal/alloc"
	"yqhp/scheduler/internal/logic"

	"github.com/gofiber/fiber/v2"
)

// MockServiceHandler Mock 服务处理器
type MockServiceHandler struct{}

// NewMockServiceHandler 创建 Mock 服务处理器
func NewMockServiceHandler() *MockServiceHandler {
	return &MockServiceHandler{}
}

// TeardownReq 批量删除请求
type TeardownReq struct {
	IDs   []int64 `json:"ids"`
	Force bool    `json:"force"`
}

// Provision 创建 Mock 服务
// POST /api/mock-services
func (h *MockServiceHandler) Provision(c *fiber.Ctx) error {
	var req alloc.ProvisionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "参数解析失败")
	}

	svc, err := logic.NewMockServiceLogic(c.UserContext()).Provision(&req)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, svc)
}

// GetByID 获取 Mock 服务
// GET /api/mock-services/:id
func (h *MockServiceHandler) GetByID(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	svc, err := logic.NewMockServiceLogic(c.UserContext()).GetByID(id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, svc)
}

// Update 更新 Mock 服务
// PUT /api/mock-services/:id
func (h *MockServiceHandler) Update(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req alloc.UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "参数解析失败")
	}

	svc, err := logic.NewMockServiceLogic(c.UserContext()).Update(id, &req)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, svc)
}

// Start 启动 Mock 服务
// POST /api/mock-services/:id/start
func (h *MockServiceHandler) Start(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	svc, err := logic.NewMockServiceLogic(c.UserContext()).Start(id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, svc)
}

// Stop 停止 Mock 服务
// POST /api/mock-services/:id/stop
func (h *MockServiceHandler) Stop(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	svc, err := logic.NewMockServiceLogic(c.UserContext()).Stop(id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, svc)
}

// Teardown 批量删除 Mock 服务
// POST /api/mock-services/teardown
func (h *MockServiceHandler) Teardown(c *fiber.Ctx) error {
	var req TeardownReq
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "参数解析失败")
	}

	items, err := logic.NewMockServiceLogic(c.UserContext()).Teardown(req.IDs, req.Force)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, items)
}
