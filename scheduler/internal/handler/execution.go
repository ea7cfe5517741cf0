package handler

import (
	"yqhp/common/response"
	"yqhp/scheduler/internal/logic"

	"github.com/gofiber/fiber/v2"
)

// ExecutionHandler 执行处理器
type ExecutionHandler struct{}

// NewExecutionHandler 创建执行处理器
func NewExecutionHandler() *ExecutionHandler {
	return &ExecutionHandler{}
}

// Create 创建执行
// POST /api/executions
func (h *ExecutionHandler) Create(c *fiber.Ctx) error {
	var req logic.CreateExecutionReq
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "参数解析失败")
	}

	execution, err := logic.NewExecutionLogic(c.UserContext()).Create(&req)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, execution)
}

// GetByID 获取执行详情
// GET /api/executions/:id
func (h *ExecutionHandler) GetByID(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	execution, err := logic.NewExecutionLogic(c.UserContext()).GetByID(id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, execution)
}

// Stop 停止执行
// POST /api/executions/:id/stop
func (h *ExecutionHandler) Stop(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	execution, err := logic.NewExecutionLogic(c.UserContext()).Stop(id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, execution)
}

// ReportSample 节点上报采样
// POST /api/executions/:id/samples
func (h *ExecutionHandler) ReportSample(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req logic.ReportSampleReq
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "参数解析失败")
	}

	if err := logic.NewExecutionLogic(c.UserContext()).ReportSample(id, &req); err != nil {
		return fail(c, err)
	}
	return response.Success(c, nil)
}

// Finish 节点执行结束回调
// POST /api/executions/:id/finish
func (h *ExecutionHandler) Finish(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req logic.FinishReq
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "参数解析失败")
	}

	execution, err := logic.NewExecutionLogic(c.UserContext()).Finish(id, &req)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, execution)
}
