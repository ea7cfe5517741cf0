package auth

import (
	"fmt"

	commonConfig "yqhp/common/config"
	"yqhp/common/logger"

	"github.com/click33/sa-token-go/core"
	satokenConfig "github.com/click33/sa-token-go/core/config"
	satokenRedis "github.com/click33/sa-token-go/storage/redis"
	"github.com/click33/sa-token-go/stputil"
	"go.uber.org/zap"
)

var manager *core.Manager

// InitSaToken 初始化 SaToken，与 Admin 服务共享 Redis 存储校验 SSO Token
func InitSaToken(cfg *commonConfig.Config) error {
	storage, err := satokenRedis.NewStorage(cfg.Redis.URL())
	if err != nil {
		return fmt.Errorf("Redis存储初始化失败: %w", err)
	}
	sc := cfg.SaToken
	tokenStyle := parseTokenStyle(sc.TokenStyle)
	// 配置需与 Admin 服务保持一致
	builder := core.NewBuilder().
		Storage(storage).
		TokenName(sc.TokenName).
		TokenStyle(tokenStyle).
		Timeout(sc.Timeout).
		ActiveTimeout(sc.ActiveTimeout).
		IsConcurrent(sc.IsConcurrent).
		IsShare(sc.IsShare).
		MaxLoginCount(sc.MaxLoginCount).
		IsLog(sc.IsLog)
	if tokenStyle == satokenConfig.TokenStyleJWT && sc.JwtSecretKey != "" {
		builder = builder.JwtSecretKey(sc.JwtSecretKey)
	}

	manager = builder.Build()
	stputil.SetManager(manager)
	logger.Info("SaToken 初始化完成", zap.String("token_style", sc.TokenStyle))
	return nil
}

func parseTokenStyle(style string) satokenConfig.TokenStyle {
	switch style {
	case "simple-uuid":
		return satokenConfig.TokenStyleSimple
	case "random-32":
		return satokenConfig.TokenStyleRandom32
	case "random-64":
		return satokenConfig.TokenStyleRandom64
	case "random-128":
		return satokenConfig.TokenStyleRandom128
	case "jwt":
		return satokenConfig.TokenStyleJWT
	case "hash":
		return satokenConfig.TokenStyleHash
	case "timestamp":
		return satokenConfig.TokenStyleTimestamp
	case "tik":
		return satokenConfig.TokenStyleTik
	default:
		return satokenConfig.TokenStyleUUID
	}
}

// IsLogin 判断是否登录
func IsLogin(tokenValue string) bool {
	return stputil.IsLogin(tokenValue)
}

// GetLoginId 获取登录ID
func GetLoginId(tokenValue string) (string, error) {
	return stputil.GetLoginID(tokenValue)
}
