package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := GetRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "server")
	assert.Contains(t, names, "run-job")
	assert.ElementsMatch(t, []string{"admission", "timeout", "result_sync", "reclaim", "notify"}, runJobCmd.ValidArgs)
}

func TestRunJobCmd_Args(t *testing.T) {
	root := GetRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)

	root.SetArgs([]string{"run-job"})
	assert.Error(t, root.Execute(), "缺少任务名")

	missing := filepath.Join(t.TempDir(), "missing.yml")
	root.SetArgs([]string{"run-job", "timeout", "--config", missing})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "加载配置失败")
}
