package cmd

import (
	"fmt"
	"strings"

	"yqhp/scheduler/internal/job"

	"github.com/spf13/cobra"
)

var jobNames = []string{job.NameAdmission, job.NameTimeout, job.NameResultSync, job.NameReclaim, job.NameNotify}

// runJobCmd run-job 子命令
var runJobCmd = &cobra.Command{
	Use:   "run-job <name>",
	Short: "在任务锁保护下执行一轮周期任务",
	Long: fmt.Sprintf(`立即执行一轮指定的周期任务后退出，用于排障或外部调度。

可用任务: %s`, strings.Join(jobNames, ", ")),
	Example: `  scheduler run-job timeout
  scheduler run-job reclaim --config config/config.yml`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: jobNames,
	RunE:      runJob,
}

func init() {
	rootCmd.AddCommand(runJobCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.close()

	res, err := rt.host.RunOnce(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !res.Acquired {
		fmt.Fprintf(cmd.OutOrStdout(), "任务 %s 正由其他实例执行，本次跳过\n", res.Name)
		return nil
	}
	if res.Err != nil {
		return fmt.Errorf("任务 %s 执行失败: %w", res.Name, res.Err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "任务 %s 执行完成，耗时 %s\n", res.Name, res.Duration)
	return nil
}
