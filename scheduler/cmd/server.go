package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"yqhp/common/logger"
	"yqhp/scheduler/internal/auth"
	"yqhp/scheduler/internal/middleware"
	"yqhp/scheduler/internal/router"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var withoutJobs bool

// serverCmd server 子命令
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 HTTP 服务和周期任务",
	Long: `启动 HTTP API，并在同一进程内按配置间隔运行全部周期任务。

多个实例可同时运行，同一任务同一时刻只会在一个实例上执行。`,
	Example: `  # 使用默认配置启动
  scheduler server

  # 只提供 API，不运行周期任务
  scheduler server --without-jobs`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().BoolVar(&withoutJobs, "without-jobs", false, "不运行周期任务")
}

func runServer(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	// 共享 Redis 存储，用于 SSO Token 验证
	if err := auth.InitSaToken(&rt.cfg.Config); err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:      rt.cfg.App.Name,
		ReadTimeout:  time.Duration(rt.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(rt.cfg.Server.WriteTimeout) * time.Second,
	})
	router.Setup(app, rt.sc.Metrics, middleware.AuthMiddleware())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := rt.cfg.Server.Addr()
		logger.Info("服务器启动", zap.String("addr", addr))
		return app.Listen(addr)
	})
	if !withoutJobs {
		g.Go(func() error {
			return rt.host.Start(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("正在关闭服务器...")
		if err := rt.host.Shutdown(); err != nil {
			logger.Warn("停止调度器失败", zap.Error(err))
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("服务器已关闭")
	return err
}
