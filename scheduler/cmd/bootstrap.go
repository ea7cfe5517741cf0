package cmd

import (
	"context"
	"fmt"

	"yqhp/common/database"
	"yqhp/common/logger"
	commonRedis "yqhp/common/redis"
	"yqhp/scheduler/internal/config"
	"yqhp/scheduler/internal/dns"
	"yqhp/scheduler/internal/lock"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/scheduler"
	"yqhp/scheduler/internal/svc"

	"go.uber.org/zap"
)

// runtime 进程内已初始化的依赖
type runtime struct {
	cfg  *config.Config
	sc   *svc.ServiceContext
	host *scheduler.Host
}

// close 释放数据库和 Redis 连接
func (r *runtime) close() {
	if err := commonRedis.Close(); err != nil {
		logger.Warn("关闭Redis失败", zap.Error(err))
	}
	if err := database.Close(); err != nil {
		logger.Warn("关闭数据库失败", zap.Error(err))
	}
	logger.Sync()
}

// bootstrap 加载配置并初始化日志、数据库、Redis 和服务上下文
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger.Init(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	logger.Info("日志初始化完成")

	if err := database.Init(&cfg.Database); err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	db := database.GetDB()
	if autoMigrate {
		if err := db.WithContext(ctx).AutoMigrate(model.AllModels()...); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("迁移表结构失败: %w", err)
		}
	}

	// 与 Admin 服务共享，用于 SSO 和任务锁
	if err := commonRedis.Init(&cfg.Redis); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("初始化Redis失败: %w", err)
	}
	rdb := commonRedis.GetClient()

	var provider dns.Provider = dns.NoopProvider{}
	if cfg.Deploy.IsCloud() {
		p, err := dns.NewRoute53Provider(ctx, cfg.Dns)
		if err != nil {
			_ = commonRedis.Close()
			_ = database.Close()
			return nil, fmt.Errorf("初始化域名解析失败: %w", err)
		}
		provider = p
	}

	sc := svc.Init(cfg, db, rdb, svc.Options{Provider: provider})
	host := scheduler.New(cfg, lock.NewRedisRunner(rdb), sc.Metrics, sc.Jobs()...)

	logger.Info("服务上下文初始化完成",
		zap.String("deploy_mode", cfg.Deploy.Mode),
		zap.String("instance", cfg.App.Instance),
	)
	return &runtime{cfg: cfg, sc: sc, host: host}, nil
}
