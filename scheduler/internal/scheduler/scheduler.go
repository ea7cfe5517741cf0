// Package scheduler 周期任务宿主，每个任务在集群内同一时刻只由一个实例执行
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"yqhp/common/logger"
	"yqhp/scheduler/internal/config"
	"yqhp/scheduler/internal/job"
	"yqhp/scheduler/internal/lock"
	"yqhp/scheduler/internal/metrics"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Host 周期任务宿主
type Host struct {
	cfg     *config.Config
	runner  *lock.Runner
	metrics *metrics.Metrics
	jobs    map[string]job.Job
	order   []string

	mu     sync.Mutex
	sched  gocron.Scheduler
	cancel context.CancelFunc
}

// New 创建宿主，同名任务以后注册的为准
func New(cfg *config.Config, runner *lock.Runner, m *metrics.Metrics, jobs ...job.Job) *Host {
	h := &Host{
		cfg:     cfg,
		runner:  runner,
		metrics: m,
		jobs:    make(map[string]job.Job, len(jobs)),
	}
	for _, j := range jobs {
		if _, ok := h.jobs[j.Name()]; !ok {
			h.order = append(h.order, j.Name())
		}
		h.jobs[j.Name()] = j
	}
	return h
}

// Names 已注册的任务名
func (h *Host) Names() []string {
	return append([]string(nil), h.order...)
}

// RunOnce 在任务锁保护下执行一轮指定任务
func (h *Host) RunOnce(ctx context.Context, name string) (lock.RunResult, error) {
	j, ok := h.jobs[name]
	if !ok {
		return lock.RunResult{Name: name}, fmt.Errorf("未知任务: %s", name)
	}
	return h.run(ctx, j), nil
}

func (h *Host) run(ctx context.Context, j job.Job) lock.RunResult {
	settings := job.JobSettings(h.cfg, j.Name())
	res := h.runner.Run(ctx, j.Name(), settings.Lease.D(), func(ctx context.Context) error {
		_, err := j.Run(ctx)
		return err
	})
	h.metrics.ObserveRun(j.Name(), res.Acquired, res.Duration, res.Err)
	return res
}

// Start 按配置的间隔注册全部任务并启动，ctx 取消后进行中的任务随之取消
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sched != nil {
		return fmt.Errorf("调度器已启动")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("创建调度器失败: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)

	for _, name := range h.order {
		j := h.jobs[name]
		settings := job.JobSettings(h.cfg, name)
		_, err := s.NewJob(
			gocron.DurationJob(settings.Interval.D()),
			gocron.NewTask(func() {
				h.run(runCtx, j)
			}),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			_ = s.Shutdown()
			return fmt.Errorf("注册任务 %s 失败: %w", name, err)
		}
		logger.Info("注册周期任务",
			zap.String("job", name),
			zap.Duration("interval", settings.Interval.D()),
			zap.Duration("lease", settings.Lease.D()),
			zap.Int("batch_size", settings.BatchSize),
		)
	}

	s.Start()
	h.sched = s
	h.cancel = cancel
	logger.Info("调度器已启动", zap.Int("jobs", len(h.order)))
	return nil
}

// Shutdown 停止调度并等待进行中的任务退出
func (h *Host) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sched == nil {
		return nil
	}
	h.cancel()
	err := h.sched.Shutdown()
	h.sched = nil
	logger.Info("调度器已停止")
	return err
}
