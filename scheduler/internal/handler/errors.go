package handler

import (
	"errors"
	"strconv"

	"yqhp/common/logger"
	"yqhp/common/response"
	"yqhp/scheduler/internal/types"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// statusOf 错误码对应的 HTTP 状态
func statusOf(code types.ErrorCode) int {
	switch code {
	case types.ErrCodeInvalidParameter:
		return fiber.StatusBadRequest
	case types.ErrCodeUnauthorized:
		return fiber.StatusUnauthorized
	case types.ErrCodeForbidden:
		return fiber.StatusForbidden
	case types.ErrCodeNotFound:
		return fiber.StatusNotFound
	case types.ErrCodePortConflict, types.ErrCodeDnsConflict, types.ErrCodeStaleState:
		return fiber.StatusConflict
	case types.ErrCodeQuotaExceeded, types.ErrCodeNodeCapacityExceeded:
		return fiber.StatusTooManyRequests
	case types.ErrCodeNodeUnavailable, types.ErrCodeRemoteCallFailed:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// fail 将逻辑层错误转换为响应，非业务错误不暴露细节
func fail(c *fiber.Ctx, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return response.ErrorWithStatus(c, statusOf(appErr.Code), appErr.Message, appErr.ToErrorResponse())
	}
	logger.Error("请求处理失败",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return response.ServerError(c, "")
}

// paramID 解析路径中的 ID
func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, types.NewAppError(types.ErrCodeInvalidParameter, "无效的ID")
	}
	return id, nil
}
