// Package cmd 提供 scheduler CLI 的命令实现
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version 当前版本号
const Version = "0.1.0"

var (
	cfgFile     string
	autoMigrate bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "执行调度与 Mock 节点分配服务",
	Long: `scheduler 负责执行的准入派发、超时监控、结果同步、节点回收和通知投递，
同时为 Mock 服务分配节点、端口和域名。多实例部署时各周期任务通过 Redis 锁互斥。`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&autoMigrate, "auto-migrate", false, "启动时自动迁移表结构")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}
