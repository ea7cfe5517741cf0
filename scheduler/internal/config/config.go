package config

import (
	"fmt"
	"sync"
	"time"

	commonConfig "yqhp/common/config"

	"gopkg.in/yaml.v3"
)

// Duration 支持 "5s"、"10m" 形式的 YAML 时长
type Duration time.Duration

// UnmarshalYAML 实现 yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("无效的时长 %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML 实现 yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// D 转换为 time.Duration
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// JobConfig 单个周期任务的轮询配置
type JobConfig struct {
	Interval  Duration `yaml:"interval"`
	Lease     Duration `yaml:"lease"`
	BatchSize int      `yaml:"batch_size"`
}

// JobsConfig 各周期任务配置
type JobsConfig struct {
	Admission  JobConfig `yaml:"admission"`
	Timeout    JobConfig `yaml:"timeout"`
	ResultSync JobConfig `yaml:"result_sync"`
	Reclaim    JobConfig `yaml:"reclaim"`
	Notify     JobConfig `yaml:"notify"`
}

// SchedulerConfig 调度配置
type SchedulerConfig struct {
	Jobs            JobsConfig `yaml:"jobs"`
	MaxDuration     Duration   `yaml:"max_duration"`      // 执行硬上限，排队超过同样时长也判失败
	StallMultiplier int        `yaml:"stall_multiplier"`  // 心跳停滞窗口 = report_interval × stall_multiplier
	WarmUp          Duration   `yaml:"warm_up"`           // 启动后至少经过该时长才判定停滞，0 表示取停滞窗口
	DispatchGrace   Duration   `yaml:"dispatch_grace"`    // scheduling 状态停留超过该时长视为派发中断
	ResultSyncGrace Duration   `yaml:"result_sync_grace"` // 结果同步开始后未完成超过该时长视为异常
}

// QuotaConfig 租户默认配额
type QuotaConfig struct {
	DefaultConcurrentExecutions int `yaml:"default_concurrent_executions"`
	DefaultMockServices         int `yaml:"default_mock_services"`
}

// NodeConfig 节点容量与端口范围
type NodeConfig struct {
	MemoryQuantumMB int64 `yaml:"memory_quantum_mb"`
	MinCapacity     int   `yaml:"min_capacity"`
	PortMin         int   `yaml:"port_min"`
	PortMax         int   `yaml:"port_max"`
}

// 部署模式
const (
	DeployModePrivate = "private"
	DeployModeCloud   = "cloud"
)

// DeployConfig 部署模式
type DeployConfig struct {
	Mode string `yaml:"mode"` // private, cloud
}

// IsCloud 多租户云部署才分配域名
func (d DeployConfig) IsCloud() bool {
	return d.Mode == DeployModeCloud
}

// DnsConfig 云部署域名解析配置
type DnsConfig struct {
	Suffix       string `yaml:"suffix"`
	HostedZoneID string `yaml:"hosted_zone_id"`
	Region       string `yaml:"region"`
	TTL          int64  `yaml:"ttl"`
}

// GatewayConfig 节点 Agent 调用配置
type GatewayConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// Config 应用配置
type Config struct {
	commonConfig.Config `yaml:",inline"`
	Scheduler           SchedulerConfig `yaml:"scheduler"`
	Quota               QuotaConfig     `yaml:"quota"`
	Node                NodeConfig      `yaml:"node"`
	Deploy              DeployConfig    `yaml:"deploy"`
	Dns                 DnsConfig       `yaml:"dns"`
	Gateway             GatewayConfig   `yaml:"gateway"`
}

var (
	globalConfig *Config
	mu           sync.RWMutex
)

func defaultJob(j *JobConfig, interval time.Duration, batch int) {
	if j.Interval <= 0 {
		j.Interval = Duration(interval)
	}
	if j.Lease <= 0 {
		j.Lease = Duration(60 * time.Second)
	}
	if j.BatchSize <= 0 {
		j.BatchSize = batch
	}
}

// ApplyDefaults 补全未配置项
func (c *Config) ApplyDefaults() {
	s := &c.Scheduler
	defaultJob(&s.Jobs.Admission, 5*time.Second, 10)
	defaultJob(&s.Jobs.Timeout, 10*time.Second, 50)
	defaultJob(&s.Jobs.ResultSync, 10*time.Second, 10)
	defaultJob(&s.Jobs.Reclaim, 30*time.Second, 100)
	defaultJob(&s.Jobs.Notify, 2*time.Second, 100)
	if s.MaxDuration <= 0 {
		s.MaxDuration = Duration(24 * time.Hour)
	}
	if s.StallMultiplier <= 0 {
		s.StallMultiplier = 6
	}
	if s.DispatchGrace <= 0 {
		s.DispatchGrace = Duration(10 * time.Minute)
	}
	if s.ResultSyncGrace <= 0 {
		s.ResultSyncGrace = Duration(30 * time.Minute)
	}

	if c.Quota.DefaultConcurrentExecutions <= 0 {
		c.Quota.DefaultConcurrentExecutions = 5
	}
	if c.Quota.DefaultMockServices <= 0 {
		c.Quota.DefaultMockServices = 20
	}

	if c.Node.MemoryQuantumMB <= 0 {
		c.Node.MemoryQuantumMB = 1024
	}
	if c.Node.MinCapacity <= 0 {
		c.Node.MinCapacity = 2
	}
	if c.Node.PortMin <= 0 {
		c.Node.PortMin = 30000
	}
	if c.Node.PortMax < c.Node.PortMin {
		c.Node.PortMax = c.Node.PortMin + 10000
	}

	if c.Deploy.Mode == "" {
		c.Deploy.Mode = DeployModePrivate
	}
	if c.Dns.TTL <= 0 {
		c.Dns.TTL = 60
	}
	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = Duration(10 * time.Second)
	}
}

// Default 全部取默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := commonConfig.Load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	mu.Lock()
	globalConfig = &cfg
	mu.Unlock()

	return &cfg, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}
