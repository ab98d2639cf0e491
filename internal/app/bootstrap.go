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

package app

import (
	"context"
	"fmt"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"ingest-scheduler/internal/executor"
	"ingest-scheduler/internal/jobtrack"
	"ingest-scheduler/internal/planner"
	"ingest-scheduler/internal/resource"
	"ingest-scheduler/internal/scheduler"
	"ingest-scheduler/internal/storage/object"
	"ingest-scheduler/pkg/config"
	"ingest-scheduler/pkg/log"
	"ingest-scheduler/pkg/tracing"
)

// Bootstrap 统一初始化：资源监控、调度器、执行器与状态存储，供 cmd 复用
type Bootstrap struct {
	Config      *config.Config
	Logger      *log.Logger
	Monitor     *resource.Monitor
	Scheduler   *scheduler.Scheduler
	Tracker     jobtrack.Tracker
	ObjectStore object.Store

	tracer *sdktrace.TracerProvider
}

// NewBootstrap 根据配置创建 Bootstrap；不启动任何后台循环
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}

	b := &Bootstrap{Config: cfg, Logger: logger}
	if err := b.init(ctx); err != nil {
		b.Close(context.Background())
		return nil, err
	}
	return b, nil
}

func (b *Bootstrap) init(ctx context.Context) error {
	cfg := b.Config

	if cfg.Monitoring.Tracing.Enable && cfg.Monitoring.Tracing.ExportEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, tracing.OTelConfig{
			ServiceName:    cfg.Monitoring.Tracing.ServiceName,
			ExportEndpoint: cfg.Monitoring.Tracing.ExportEndpoint,
			Insecure:       cfg.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			return fmt.Errorf("初始化链路追踪failed: %w", err)
		}
		b.tracer = tp
		b.Logger.Info("链路追踪已启用", "service_name", cfg.Monitoring.Tracing.ServiceName, "endpoint", cfg.Monitoring.Tracing.ExportEndpoint)
	}

	b.Monitor = resource.NewMonitor(nil, MonitorConfig(cfg), b.Logger)

	tracker, err := jobtrack.NewTracker(ctx, jobtrack.Config{
		Type:    cfg.JobTrack.Type,
		DSN:     cfg.JobTrack.DSN,
		Migrate: cfg.JobTrack.Migrate,
		Redis: jobtrack.RedisOptions{
			Addr:     cfg.JobTrack.Redis.Addr,
			DB:       cfg.JobTrack.Redis.DB,
			Password: cfg.JobTrack.Redis.Password,
			Channel:  cfg.JobTrack.Redis.Channel,
			TTL:      config.ParseDuration(cfg.JobTrack.Redis.TTL, 24*time.Hour),
		},
	}, b.Logger)
	if err != nil {
		return fmt.Errorf("初始化 job 状态存储failed: %w", err)
	}
	b.Tracker = tracker

	store, err := object.NewStore(cfg.Storage.Object)
	if err != nil {
		return fmt.Errorf("初始化上传暂存failed: %w", err)
	}
	b.ObjectStore = store

	exec, err := executor.New(ExecutorConfig(cfg), b.Logger)
	if err != nil {
		return fmt.Errorf("初始化执行器failed: %w", err)
	}

	b.Scheduler = scheduler.New(SchedulerConfig(cfg), b.Monitor, exec, jobtrack.Hook(tracker, b.Logger), b.Logger)
	return nil
}

// Start 启动资源采样与调度循环
func (b *Bootstrap) Start(ctx context.Context) error {
	b.Monitor.Start(ctx, config.ParseDuration(b.Config.Monitor.Interval, 30*time.Second))
	if err := b.Scheduler.Start(ctx); err != nil {
		b.Monitor.Stop()
		return fmt.Errorf("启动调度器failed: %w", err)
	}
	return nil
}

// Close 按依赖逆序释放资源：先停调度（取消运行中 job 并落地状态），再关闭存储
func (b *Bootstrap) Close(ctx context.Context) {
	if b.Scheduler != nil {
		b.Scheduler.Stop()
	}
	if b.Monitor != nil {
		b.Monitor.Stop()
	}
	if b.Tracker != nil {
		if err := b.Tracker.Close(); err != nil {
			b.Logger.Warn("关闭 job 状态存储失败", "error", err)
		}
	}
	if b.ObjectStore != nil {
		if err := b.ObjectStore.Close(); err != nil {
			b.Logger.Warn("关闭上传暂存失败", "error", err)
		}
	}
	if b.tracer != nil {
		if err := b.tracer.Shutdown(ctx); err != nil {
			b.Logger.Warn("关闭链路追踪失败", "error", err)
		}
	}
	_ = b.Logger.Close()
}

// MonitorConfig 由应用配置生成资源监控配置
func MonitorConfig(cfg *config.Config) resource.Config {
	t := cfg.Monitor.Thresholds
	return resource.Config{
		Thresholds: resource.Thresholds{
			CPUWarning:     t.CPUWarning,
			CPUCritical:    t.CPUCritical,
			MemoryWarning:  t.MemoryWarning,
			MemoryCritical: t.MemoryCritical,
			DiskWarning:    t.DiskWarning,
			DiskCritical:   t.DiskCritical,
		},
		HistorySize:   cfg.Monitor.HistorySize,
		AlertCooldown: config.ParseDuration(cfg.Monitor.AlertCooldown, 5*time.Minute),
		DiskPath:      cfg.Monitor.DiskPath,
	}
}

// SchedulerConfig 由应用配置生成调度配置；未填写的项使用调度器默认值
func SchedulerConfig(cfg *config.Config) scheduler.Config {
	sc := cfg.Scheduler
	def := scheduler.DefaultConfig()
	return scheduler.Config{
		MaxConcurrentJobs:   sc.MaxConcurrentJobs,
		PollInterval:        config.ParseDuration(sc.PollInterval, def.PollInterval),
		PausedPollInterval:  config.ParseDuration(sc.PausedPollInterval, def.PausedPollInterval),
		RestoreAfter:        config.ParseDuration(sc.RestoreAfter, def.RestoreAfter),
		CriticalCancelAfter: config.ParseDuration(sc.CriticalCancelAfter, def.CriticalCancelAfter),
		ResumeCPUPercent:    sc.ResumeCPUPercent,
		ResumeMemoryPercent: sc.ResumeMemoryPercent,
		AdmissionCPUPercent: sc.AdmissionCPUPercent,
		StatusTopN:          sc.StatusTopN,
		RetainFinished:      sc.RetainFinished,
		Planner:             PlannerConfig(cfg),
	}
}

// PlannerConfig 由应用配置生成批次规划配置
func PlannerConfig(cfg *config.Config) planner.Config {
	pc := cfg.Planner
	w := pc.Priority
	return planner.Config{
		MaxBatchMemoryMB:   pc.MaxBatchMemoryMB,
		MaxBatchDuration:   config.ParseDuration(pc.MaxBatchDuration, 15*time.Minute),
		MaxBatchMembers:    pc.MaxBatchMembers,
		SequentialMemoryMB: pc.SequentialMemoryMB,
		HybridGroupSize:    pc.HybridGroupSize,
		Weights: planner.PriorityWeights{
			Base:                    w.Base,
			SmallBatchBonus:         w.SmallBatchBonus,
			MediumBatchBonus:        w.MediumBatchBonus,
			FastBatchCap:            w.FastBatchCap,
			FastBatchHorizonSeconds: w.FastBatchHorizonSeconds,
			FastBatchDivisor:        w.FastBatchDivisor,
			SimpleMemberBonus:       w.SimpleMemberBonus,
		},
	}
}

// ExecutorConfig 由应用配置生成执行器配置
func ExecutorConfig(cfg *config.Config) executor.Config {
	ec := cfg.Executor
	return executor.Config{
		Type:         ec.Type,
		Endpoint:     ec.Endpoint,
		Token:        ec.Token,
		Timeout:      config.ParseDuration(ec.Timeout, 30*time.Second),
		PollInterval: config.ParseDuration(ec.PollInterval, 2*time.Second),
	}
}
