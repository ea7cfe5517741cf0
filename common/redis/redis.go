package redis

import (
	"context"
	"fmt"
	"time"

	"yqhp/common/config"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// NewClient 创建 Redis 客户端并测试连接
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return c, nil
}

// Init 初始化全局 Redis 连接
func Init(cfg *config.RedisConfig) error {
	c, err := NewClient(context.Background(), cfg)
	if err != nil {
		return err
	}
	client = c
	return nil
}

// GetClient 获取Redis客户端
func GetClient() *redis.Client {
	return client
}

// Close 关闭Redis连接
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}
