// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ingest-scheduler/pkg/secrets"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Planner    PlannerConfig    `mapstructure:"planner"`
	JobTrack   JobTrackConfig   `mapstructure:"jobtrack"`
	Executor   ExecutorConfig   `mapstructure:"executor"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port        int        `mapstructure:"port"`
	Host        string     `mapstructure:"host"`
	SubmitRPS   float64    `mapstructure:"submit_rps"` // 提交接口令牌桶速率，<=0 不限流
	SubmitBurst int        `mapstructure:"submit_burst"`
	MaxUploadMB int        `mapstructure:"max_upload_mb"` // multipart 单次上传上限
	AuthToken   string     `mapstructure:"auth_token"`    // 非空时 /api 下接口要求 Bearer token
	CORS        CORSConfig `mapstructure:"cors"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// SchedulerConfig 调度循环配置：并发上限、轮询间隔、降载与恢复策略
type SchedulerConfig struct {
	MaxConcurrentJobs   int     `mapstructure:"max_concurrent_jobs"`
	PollInterval        string  `mapstructure:"poll_interval"`         // 空队列/满并发/准入拒绝时的等待，默认 2s
	PausedPollInterval  string  `mapstructure:"paused_poll_interval"`  // Paused 状态下复查资源的间隔，默认 2s
	RestoreAfter        string  `mapstructure:"restore_after"`         // 负载持续 low/moderate 多久后并发 +1，默认 30s
	CriticalCancelAfter string  `mapstructure:"critical_cancel_after"` // 持续 critical 多久后取消最低优先级运行中 job；"0" 关闭
	ResumeCPUPercent    float64 `mapstructure:"resume_cpu_percent"`
	ResumeMemoryPercent float64 `mapstructure:"resume_memory_percent"`
	AdmissionCPUPercent float64 `mapstructure:"admission_cpu_percent"` // 准入时每个 job 预估的 CPU 占用
	StatusTopN          int     `mapstructure:"status_top_n"`
	RetainFinished      int     `mapstructure:"retain_finished"` // 保留多少条终态 job 供查询
}

// MonitorConfig 资源监控配置
type MonitorConfig struct {
	Interval      string           `mapstructure:"interval"`
	HistorySize   int              `mapstructure:"history_size"`
	AlertCooldown string           `mapstructure:"alert_cooldown"`
	DiskPath      string           `mapstructure:"disk_path"`
	Thresholds    ThresholdsConfig `mapstructure:"thresholds"`
}

// ThresholdsConfig 告警阈值（百分比）
type ThresholdsConfig struct {
	CPUWarning     float64 `mapstructure:"cpu_warning"`
	CPUCritical    float64 `mapstructure:"cpu_critical"`
	MemoryWarning  float64 `mapstructure:"memory_warning"`
	MemoryCritical float64 `mapstructure:"memory_critical"`
	DiskWarning    float64 `mapstructure:"disk_warning"`
	DiskCritical   float64 `mapstructure:"disk_critical"`
}

// PlannerConfig 批次规划上限与优先级权重
type PlannerConfig struct {
	MaxBatchMemoryMB   float64              `mapstructure:"max_batch_memory_mb"`
	MaxBatchDuration   string               `mapstructure:"max_batch_duration"`
	MaxBatchMembers    int                  `mapstructure:"max_batch_members"`
	SequentialMemoryMB float64              `mapstructure:"sequential_memory_mb"`
	HybridGroupSize    int                  `mapstructure:"hybrid_group_size"`
	Priority           PriorityWeightConfig `mapstructure:"priority"`
}

// PriorityWeightConfig 批次优先级公式的权重
type PriorityWeightConfig struct {
	Base                    int     `mapstructure:"base"`
	SmallBatchBonus         int     `mapstructure:"small_batch_bonus"`
	MediumBatchBonus        int     `mapstructure:"medium_batch_bonus"`
	FastBatchCap            float64 `mapstructure:"fast_batch_cap"`
	FastBatchHorizonSeconds float64 `mapstructure:"fast_batch_horizon_seconds"`
	FastBatchDivisor        float64 `mapstructure:"fast_batch_divisor"`
	SimpleMemberBonus       int     `mapstructure:"simple_member_bonus"`
}

// JobTrackConfig 外部 job 状态存储（完成回调落地）
type JobTrackConfig struct {
	Type    string      `mapstructure:"type"` // memory | postgres | redis
	DSN     string      `mapstructure:"dsn"`  // type=postgres 时必填，支持 ${ENV} 与 secret://key
	Migrate bool        `mapstructure:"migrate"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	Channel  string `mapstructure:"channel"` // 状态变更发布频道
	TTL      string `mapstructure:"ttl"`     // job 记录过期时间，默认 24h
}

// ExecutorConfig 文档处理管线执行器配置
type ExecutorConfig struct {
	Type         string `mapstructure:"type"` // noop | remote
	Endpoint     string `mapstructure:"endpoint"`
	Token        string `mapstructure:"token"`
	Timeout      string `mapstructure:"timeout"`
	PollInterval string `mapstructure:"poll_interval"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Object ObjectConfig `mapstructure:"object"`
}

// ObjectConfig 上传内容暂存（multipart 提交时写入，payload 仅携带 key）
type ObjectConfig struct {
	Type string `mapstructure:"type"` // memory | file
	Dir  string `mapstructure:"dir"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// SecretsConfig secret 来源配置
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // env | memory | file | vault
	Dir      string      `mapstructure:"dir"`      // provider=file 时的挂载目录
	Vault    VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	Mount      string `mapstructure:"mount"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// setDefaults 写入默认值；文件与环境变量均未提供时生效
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.submit_rps", 20)
	v.SetDefault("api.submit_burst", 40)
	v.SetDefault("api.max_upload_mb", 512)

	v.SetDefault("scheduler.max_concurrent_jobs", 3)
	v.SetDefault("scheduler.poll_interval", "2s")
	v.SetDefault("scheduler.paused_poll_interval", "2s")
	v.SetDefault("scheduler.restore_after", "30s")
	v.SetDefault("scheduler.critical_cancel_after", "60s")
	v.SetDefault("scheduler.resume_cpu_percent", 70)
	v.SetDefault("scheduler.resume_memory_percent", 80)
	v.SetDefault("scheduler.admission_cpu_percent", 20)
	v.SetDefault("scheduler.status_top_n", 10)
	v.SetDefault("scheduler.retain_finished", 1024)

	v.SetDefault("monitor.interval", "30s")
	v.SetDefault("monitor.history_size", 100)
	v.SetDefault("monitor.alert_cooldown", "5m")
	v.SetDefault("monitor.disk_path", "/")
	v.SetDefault("monitor.thresholds.cpu_warning", 70)
	v.SetDefault("monitor.thresholds.cpu_critical", 90)
	v.SetDefault("monitor.thresholds.memory_warning", 80)
	v.SetDefault("monitor.thresholds.memory_critical", 95)
	v.SetDefault("monitor.thresholds.disk_warning", 85)
	v.SetDefault("monitor.thresholds.disk_critical", 95)

	v.SetDefault("planner.max_batch_memory_mb", 1500)
	v.SetDefault("planner.max_batch_duration", "15m")
	v.SetDefault("planner.max_batch_members", 8)
	v.SetDefault("planner.sequential_memory_mb", 1024)
	v.SetDefault("planner.hybrid_group_size", 4)
	v.SetDefault("planner.priority.base", 100)
	v.SetDefault("planner.priority.small_batch_bonus", 20)
	v.SetDefault("planner.priority.medium_batch_bonus", 10)
	v.SetDefault("planner.priority.fast_batch_cap", 10)
	v.SetDefault("planner.priority.fast_batch_horizon_seconds", 300)
	v.SetDefault("planner.priority.fast_batch_divisor", 30)
	v.SetDefault("planner.priority.simple_member_bonus", 2)

	v.SetDefault("jobtrack.type", "memory")
	v.SetDefault("jobtrack.redis.channel", "ingest:job:events")
	v.SetDefault("jobtrack.redis.ttl", "24h")

	v.SetDefault("executor.type", "noop")
	v.SetDefault("executor.timeout", "30s")
	v.SetDefault("executor.poll_interval", "2s")

	v.SetDefault("storage.object.type", "memory")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.dir", "/run/secrets")
}

// LoadConfig 加载配置文件；path 为空时仅使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	// 替换环境变量与 secret 引用
	if err := resolveReferences(context.Background(), &config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default 返回仅由默认值构成的配置
func Default() *Config {
	cfg, err := LoadConfig("")
	if err != nil {
		// 默认值本身不会校验失败
		panic(err)
	}
	return cfg
}

// resolveReferences 替换配置中的 ${ENV} 与 secret://key 引用
func resolveReferences(ctx context.Context, config *Config) error {
	store, err := secrets.NewStore(config.Secrets.toStoreConfig())
	if err != nil {
		return fmt.Errorf("初始化 secret store 失败: %w", err)
	}
	fields := []*string{
		&config.JobTrack.DSN,
		&config.JobTrack.Redis.Password,
		&config.Executor.Token,
		&config.API.AuthToken,
	}
	for _, f := range fields {
		resolved, err := resolveValue(ctx, store, *f)
		if err != nil {
			return err
		}
		*f = resolved
	}
	return nil
}

func resolveValue(ctx context.Context, store secrets.Store, value string) (string, error) {
	switch {
	case strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}"):
		envVar := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")
		if val := os.Getenv(envVar); val != "" {
			return val, nil
		}
		return value, nil
	case strings.HasPrefix(value, secrets.RefPrefix):
		return secrets.Resolve(ctx, store, value)
	default:
		return value, nil
	}
}

func (c SecretsConfig) toStoreConfig() secrets.Config {
	return secrets.Config{
		Provider: c.Provider,
		Dir:      c.Dir,
		Vault: secrets.VaultConfig{
			Address:    c.Vault.Address,
			Token:      c.Vault.Token,
			Mount:      c.Vault.Mount,
			PathPrefix: c.Vault.PathPrefix,
		},
	}
}

// Validate 校验会导致调度器无法正确运行的配置
func (c *Config) Validate() error {
	if c.Scheduler.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_jobs 必须大于 0，当前 %d", c.Scheduler.MaxConcurrentJobs)
	}
	t := c.Monitor.Thresholds
	pairs := []struct {
		name          string
		warning, crit float64
	}{
		{"cpu", t.CPUWarning, t.CPUCritical},
		{"memory", t.MemoryWarning, t.MemoryCritical},
		{"disk", t.DiskWarning, t.DiskCritical},
	}
	for _, p := range pairs {
		if p.warning <= 0 || p.crit > 100 || p.warning >= p.crit {
			return fmt.Errorf("monitor.thresholds.%s: warning(%.1f) 必须小于 critical(%.1f) 且位于 (0,100]", p.name, p.warning, p.crit)
		}
	}
	switch c.JobTrack.Type {
	case "", "memory", "redis":
	case "postgres":
		if c.JobTrack.DSN == "" {
			return fmt.Errorf("jobtrack.type=postgres 时 jobtrack.dsn 必填")
		}
	default:
		return fmt.Errorf("不支持的 jobtrack.type: %s", c.JobTrack.Type)
	}
	if c.Planner.MaxBatchMembers <= 0 {
		return fmt.Errorf("planner.max_batch_members 必须大于 0")
	}
	return nil
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}
