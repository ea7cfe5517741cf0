// Package lock 集群范围的具名任务锁，保证同名任务同一时刻只在一个实例上运行
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"yqhp/common/logger"
	"yqhp/common/utils"

	redislock "github.com/go-co-op/gocron-redis-lock/v2"
	"github.com/go-co-op/gocron/v2"
	"github.com/go-redsync/redsync/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyPrefix 锁键前缀
const KeyPrefix = "yqhp:scheduler:job:"

// releaseTimeout 释放锁的超时，与任务上下文无关
const releaseTimeout = 3 * time.Second

// LockerFactory 按租约时长创建 Locker
type LockerFactory func(lease time.Duration) (gocron.Locker, error)

// RunResult 一次运行的结果，未抢到锁时 Acquired 为 false 且 Err 为空
type RunResult struct {
	Name     string
	Acquired bool
	Duration time.Duration
	Err      error
}

// Runner 具名锁任务运行器
type Runner struct {
	factory LockerFactory

	mu      sync.Mutex
	lockers map[time.Duration]gocron.Locker
}

// NewRunner 创建运行器
func NewRunner(factory LockerFactory) *Runner {
	return &Runner{
		factory: factory,
		lockers: make(map[time.Duration]gocron.Locker),
	}
}

// NewRedisRunner 基于 redsync 的运行器，锁过期时间等于租约，只尝试一次
func NewRedisRunner(client redis.UniversalClient) *Runner {
	return NewRunner(func(lease time.Duration) (gocron.Locker, error) {
		return redislock.NewRedisLocker(client,
			redsync.WithExpiry(lease),
			redsync.WithTries(1),
		)
	})
}

// NewStaticRunner 所有租约共用同一个 Locker
func NewStaticRunner(locker gocron.Locker) *Runner {
	return NewRunner(func(time.Duration) (gocron.Locker, error) {
		return locker, nil
	})
}

func (r *Runner) lockerFor(lease time.Duration) (gocron.Locker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.lockers[lease]; ok {
		return l, nil
	}
	l, err := r.factory(lease)
	if err != nil {
		return nil, err
	}
	r.lockers[lease] = l
	return l, nil
}

// Run 抢到锁后在租约时长内执行 work，work 的错误和 panic 只记录不传播
func (r *Runner) Run(ctx context.Context, name string, lease time.Duration, work func(ctx context.Context) error) RunResult {
	result := RunResult{Name: name}
	log := logger.Named("lock").With(zap.String("job", name))

	locker, err := r.lockerFor(lease)
	if err != nil {
		log.Warn("创建任务锁失败", zap.Error(err))
		return result
	}

	l, err := locker.Lock(ctx, KeyPrefix+name)
	if err != nil {
		// 锁被其他实例持有是常态
		log.Debug("未获取到任务锁，跳过本轮", zap.Error(err))
		return result
	}
	result.Acquired = true

	start := time.Now()
	workCtx, cancel := context.WithTimeout(ctx, lease)
	result.Err = call(workCtx, work)
	cancel()
	result.Duration = time.Since(start)

	if result.Err != nil {
		log.Error("任务执行失败", zap.Duration("duration", result.Duration), zap.Error(result.Err))
	}

	releaseCtx, releaseCancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer releaseCancel()
	if err := l.Unlock(releaseCtx); err != nil {
		log.Warn("释放任务锁失败", zap.Error(err))
	}
	return result
}

// call 执行 work 并把 panic 转为错误
func call(ctx context.Context, work func(ctx context.Context) error) (err error) {
	defer utils.Recover("job", func(p any) {
		err = fmt.Errorf("任务 panic: %v", p)
	})
	return work(ctx)
}
