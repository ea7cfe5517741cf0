package svc

import (
	"time"

	"yqhp/scheduler/internal/alloc"
	"yqhp/scheduler/internal/auth"
	"yqhp/scheduler/internal/config"
	"yqhp/scheduler/internal/dns"
	"yqhp/scheduler/internal/gateway"
	"yqhp/scheduler/internal/job"
	"yqhp/scheduler/internal/metrics"
	"yqhp/scheduler/internal/notify"
	"yqhp/scheduler/internal/repo"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ServiceContext 全局服务上下文
type ServiceContext struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  redis.UniversalClient

	Executions   *repo.ExecutionRepo
	Nodes        *repo.NodeRepo
	MockServices *repo.MockServiceRepo

	Gateway   gateway.Gateway
	Events    *notify.RedisQueue
	Notices   *notify.NoticeStore
	Authz     *auth.Authorizer
	Allocator *alloc.Allocator
	Metrics   *metrics.Metrics

	// Now 时钟，为空时取 time.Now
	Now func() time.Time
}

var Ctx *ServiceContext

// Options 可替换的外部依赖，为空时按配置创建
type Options struct {
	Gateway  gateway.Gateway
	Provider dns.Provider
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// New 组装服务上下文
func New(cfg *config.Config, db *gorm.DB, rdb redis.UniversalClient, opts Options) *ServiceContext {
	if opts.Gateway == nil {
		opts.Gateway = gateway.NewAgentClient(cfg.Gateway.Timeout.D())
	}
	if opts.Provider == nil {
		opts.Provider = dns.NoopProvider{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	executions := repo.NewExecutionRepo(db)
	nodes := repo.NewNodeRepo(db)
	services := repo.NewMockServiceRepo(db)
	authz := auth.NewAuthorizer(db).WithClock(opts.Now)

	return &ServiceContext{
		Config:       cfg,
		DB:           db,
		Redis:        rdb,
		Executions:   executions,
		Nodes:        nodes,
		MockServices: services,
		Gateway:      opts.Gateway,
		Events:       notify.NewRedisQueue(rdb),
		Notices:      notify.NewNoticeStore(db),
		Authz:        authz,
		Allocator: alloc.New(cfg, services, nodes, executions, opts.Provider, opts.Gateway, authz, opts.Metrics).
			WithClock(opts.Now),
		Metrics: opts.Metrics,
		Now:     opts.Now,
	}
}

// Init 初始化全局服务上下文
func Init(cfg *config.Config, db *gorm.DB, rdb redis.UniversalClient, opts Options) *ServiceContext {
	Ctx = New(cfg, db, rdb, opts)
	return Ctx
}

// JobDeps 周期任务共享的依赖
func (s *ServiceContext) JobDeps() *job.Deps {
	return &job.Deps{
		Config:     s.Config,
		Executions: s.Executions,
		Nodes:      s.Nodes,
		Gateway:    s.Gateway,
		Sink:       s.Events,
		Metrics:    s.Metrics,
		Now:        s.Now,
	}
}

// Jobs 全部周期任务
func (s *ServiceContext) Jobs() []job.Job {
	d := s.JobDeps()
	return []job.Job{
		job.NewAdmission(d),
		job.NewTimeout(d),
		job.NewResultSync(d, job.NewSampleSummaryAggregator(s.DB)),
		job.NewReclaim(d),
		job.NewNotify(d, s.Events, s.Notices),
	}
}
