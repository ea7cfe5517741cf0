package router

import (
	commonMiddleware "yqhp/common/middleware"
	"yqhp/scheduler/internal/handler"
	"yqhp/scheduler/internal/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Setup 设置路由，authMiddleware 为登录校验中间件
func Setup(app *fiber.App, m *metrics.Metrics, authMiddleware fiber.Handler) {
	app.Use(commonMiddleware.Recover())
	app.Use(commonMiddleware.RequestID())
	app.Use(commonMiddleware.Logger())
	app.Use(commonMiddleware.CORS())

	// 健康检查
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"app":    "scheduler",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	executionHandler := handler.NewExecutionHandler()
	mockServiceHandler := handler.NewMockServiceHandler()
	noticeHandler := handler.NewNoticeHandler()

	// API 路由组 (需要认证)
	api := app.Group("/api", authMiddleware)

	executions := api.Group("/executions")
	executions.Post("", executionHandler.Create)
	executions.Get("/:id", executionHandler.GetByID)
	executions.Post("/:id/stop", executionHandler.Stop)
	executions.Post("/:id/samples", executionHandler.ReportSample)
	executions.Post("/:id/finish", executionHandler.Finish)

	mockServices := api.Group("/mock-services")
	mockServices.Post("", mockServiceHandler.Provision)
	mockServices.Post("/teardown", mockServiceHandler.Teardown)
	mockServices.Get("/:id", mockServiceHandler.GetByID)
	mockServices.Put("/:id", mockServiceHandler.Update)
	mockServices.Post("/:id/start", mockServiceHandler.Start)
	mockServices.Post("/:id/stop", mockServiceHandler.Stop)

	api.Get("/notices", noticeHandler.ListMine)
}
