package middleware

import (
	"strconv"
	"strings"

	"yqhp/common/response"
	"yqhp/scheduler/internal/auth"
	"yqhp/scheduler/internal/ctxutil"
	"yqhp/scheduler/internal/types"

	"github.com/gofiber/fiber/v2"
)

// TenantHeader 携带当前租户的请求头
const TenantHeader = "X-Tenant-Id"

// LoginChecker 校验 Token 并返回登录ID
type LoginChecker interface {
	IsLogin(token string) bool
	GetLoginId(token string) (string, error)
}

type saTokenChecker struct{}

func (saTokenChecker) IsLogin(token string) bool { return auth.IsLogin(token) }

func (saTokenChecker) GetLoginId(token string) (string, error) { return auth.GetLoginId(token) }

// AuthMiddleware 认证中间件 (SSO Token 验证)
func AuthMiddleware() fiber.Handler {
	return AuthMiddlewareWith(saTokenChecker{})
}

// AuthMiddlewareWith 使用指定的登录校验
func AuthMiddlewareWith(checker LoginChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := getToken(c)
		if token == "" {
			return response.Unauthorized(c, "请先登录")
		}

		// 通过共享 Redis 验证 Admin 服务颁发的 Token
		if !checker.IsLogin(token) {
			return response.Unauthorized(c, "登录已过期，请重新登录")
		}

		loginId, err := checker.GetLoginId(token)
		if err != nil {
			return response.Unauthorized(c, "获取用户信息失败")
		}
		userID, err := parseUserID(loginId)
		if err != nil || userID <= 0 {
			return response.Unauthorized(c, "用户信息无效")
		}

		tenantID, err := parseTenantID(c.Get(TenantHeader))
		if err != nil {
			return response.Error(c, "无效的租户ID")
		}

		c.Locals("userId", loginId)
		c.Locals("token", token)

		// 操作主体存入context（供Logic层使用）
		ctx := ctxutil.WithActor(c.UserContext(), types.UserActor(userID, tenantID))
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// getToken 从请求中获取Token
func getToken(c *fiber.Ctx) string {
	token := c.Get("satoken")
	if token != "" {
		return token
	}

	authHeader := c.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	token = c.Query("satoken")
	if token != "" {
		return token
	}

	return c.Cookies("satoken")
}

// parseUserID 解析用户ID
func parseUserID(userIdAny any) (int64, error) {
	switch v := userIdAny.(type) {
	case uint:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, nil
	}
}

// parseTenantID 未携带租户头时归属默认租户 0
func parseTenantID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, strconv.ErrSyntax
	}
	return id, nil
}

// GetCurrentUserID 获取当前用户ID
func GetCurrentUserID(c *fiber.Ctx) int64 {
	userIdAny := c.Locals("userId")
	if userIdAny == nil {
		return 0
	}
	userID, _ := parseUserID(userIdAny)
	return userID
}

// GetCurrentToken 获取当前请求的 Token
func GetCurrentToken(c *fiber.Ctx) string {
	if token, ok := c.Locals("token").(string); ok {
		return token
	}
	return ""
}
