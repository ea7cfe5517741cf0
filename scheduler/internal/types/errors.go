package types

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码
type ErrorCode string

const (
	// 通用错误码
	ErrCodeUnknown          ErrorCode = "UNKNOWN_ERROR"
	ErrCodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"

	// 资源相关错误码
	ErrCodeQuotaExceeded        ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeNodeCapacityExceeded ErrorCode = "NODE_CAPACITY_EXCEEDED"
	ErrCodePortConflict         ErrorCode = "PORT_CONFLICT"
	ErrCodeDnsConflict          ErrorCode = "DNS_CONFLICT"
	ErrCodeNodeUnavailable      ErrorCode = "NODE_UNAVAILABLE"

	// 调度相关错误码
	ErrCodeRemoteCallFailed ErrorCode = "REMOTE_CALL_FAILED"
	ErrCodeStaleState       ErrorCode = "STALE_STATE"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is 按错误码匹配，errors.Is(err, types.ErrPortConflict) 对任意详情的端口冲突成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewAppError 创建应用错误
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewAppErrorWithDetails 创建带详情的应用错误
func NewAppErrorWithDetails(code ErrorCode, message, details string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAppErrorWithCause 创建带原因的应用错误
func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: cause.Error(),
		Cause:   cause,
	}
}

// 预定义错误
var (
	ErrNotFound  = NewAppError(ErrCodeNotFound, "资源不存在")
	ErrForbidden = NewAppError(ErrCodeForbidden, "没有操作权限")

	ErrQuotaExceeded        = NewAppError(ErrCodeQuotaExceeded, "超出租户配额")
	ErrNodeCapacityExceeded = NewAppError(ErrCodeNodeCapacityExceeded, "节点容量已满")
	ErrPortConflict         = NewAppError(ErrCodePortConflict, "端口已被占用")
	ErrDnsConflict          = NewAppError(ErrCodeDnsConflict, "域名已被占用")
	ErrNodeUnavailable      = NewAppError(ErrCodeNodeUnavailable, "没有可用节点")

	ErrRemoteCallFailed = NewAppError(ErrCodeRemoteCallFailed, "远程调用失败")
	ErrStaleState       = NewAppError(ErrCodeStaleState, "状态已变更")
)

// IsAppError 检查是否为应用错误
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetErrorCode 获取错误码
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeUnknown
}

// IsRetryable 软性错误，下个周期或稍后重试可能成功
func IsRetryable(err error) bool {
	switch GetErrorCode(err) {
	case ErrCodeQuotaExceeded, ErrCodeRemoteCallFailed, ErrCodeNodeUnavailable:
		return true
	default:
		return false
	}
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ToErrorResponse 转换为错误响应
func (e *AppError) ToErrorResponse() *ErrorResponse {
	return &ErrorResponse{
		Code:    string(e.Code),
		Message: e.Message,
		Details: e.Details,
	}
}
