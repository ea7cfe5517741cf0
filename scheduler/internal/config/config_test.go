package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ShippedFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "config", "config.yml"))
	require.NoError(t, err)

	assert.Equal(t, "scheduler", cfg.App.Name)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.Jobs.Admission.Interval.D())
	assert.Equal(t, 60*time.Second, cfg.Scheduler.Jobs.Timeout.Lease.D())
	assert.Equal(t, 50, cfg.Scheduler.Jobs.Timeout.BatchSize)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.MaxDuration.D())
	assert.Equal(t, 6, cfg.Scheduler.StallMultiplier)
	assert.False(t, cfg.Deploy.IsCloud())
	assert.Same(t, cfg, GetConfig())
}

func TestLoadConfig_PartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
scheduler:
  jobs:
    timeout: {interval: 3s}
  warm_up: 90s
deploy:
  mode: cloud
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Scheduler.Jobs.Timeout.Interval.D())
	assert.Equal(t, 60*time.Second, cfg.Scheduler.Jobs.Timeout.Lease.D())
	assert.Equal(t, 90*time.Second, cfg.Scheduler.WarmUp.D())
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.DispatchGrace.D())
	assert.Equal(t, 30000, cfg.Node.PortMin)
	assert.Equal(t, 40000, cfg.Node.PortMax)
	assert.True(t, cfg.Deploy.IsCloud())
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  max_duration: soon\n"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

// TestApplyDefaultsProperty 补全后的配置总是可用
// Property 1: 任意端口区间和任务配置补全后，端口区间非空，间隔、租约、批量均为正
func TestApplyDefaultsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("defaults yield a usable config", prop.ForAll(
		func(portMin, portMax int, interval int64, batch int) bool {
			cfg := &Config{}
			cfg.Node.PortMin = portMin
			cfg.Node.PortMax = portMax
			cfg.Scheduler.Jobs.Reclaim = JobConfig{Interval: Duration(interval), BatchSize: batch}
			cfg.ApplyDefaults()

			j := cfg.Scheduler.Jobs.Reclaim
			return cfg.Node.PortMin > 0 &&
				cfg.Node.PortMax >= cfg.Node.PortMin &&
				j.Interval > 0 && j.Lease > 0 && j.BatchSize > 0 &&
				(interval <= 0 || j.Interval == Duration(interval)) &&
				(batch <= 0 || j.BatchSize == batch)
		},
		gen.IntRange(-10, 65535),
		gen.IntRange(-10, 65535),
		gen.Int64Range(-int64(time.Second), int64(time.Hour)),
		gen.IntRange(-5, 500),
	))

	properties.TestingRun(t)
}
