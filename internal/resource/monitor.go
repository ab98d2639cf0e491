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

package resource

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"ingest-scheduler/pkg/log"
	"ingest-scheduler/pkg/metrics"
)

var (
	errNoCPUData = errors.New("cpu: empty reading")
	// ErrSampleFailed 所有核心指标都读取失败，本次视为无新数据
	ErrSampleFailed = errors.New("resource sample failed: no metric readable")
)

// Config Monitor 配置
type Config struct {
	Thresholds    Thresholds
	HistorySize   int           // 环形历史容量，默认 100
	AlertCooldown time.Duration // 每种告警的冷却窗口，默认 5m
	DiskPath      string        // 统计磁盘使用率的挂载点，默认 /
}

// Monitor 周期采样主机资源、维护有界历史、发出阈值告警并回答准入查询。
// 历史与当前样本只由采样方写入（sampleMu 串行化），任意数量读者并发读取。
type Monitor struct {
	collector Collector
	cfg       Config
	logger    *log.Logger
	now       func() time.Time

	current atomic.Pointer[SystemResources]

	histMu sync.RWMutex
	hist   *history

	sampleMu  sync.Mutex
	lastAlert map[string]time.Time // 受 sampleMu 保护

	listenersMu sync.RWMutex
	listeners   []func(Alert)

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor 创建资源监控；collector 为 nil 时读取本机指标
func NewMonitor(collector Collector, cfg Config, logger *log.Logger) *Monitor {
	if collector == nil {
		collector = NewHostCollector()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = 5 * time.Minute
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}
	return &Monitor{
		collector: collector,
		cfg:       cfg,
		logger:    logger.With("component", "resource_monitor"),
		now:       time.Now,
		hist:      newHistory(cfg.HistorySize),
		lastAlert: make(map[string]time.Time),
	}
}

// Thresholds 返回只读阈值
func (m *Monitor) Thresholds() Thresholds {
	return m.cfg.Thresholds
}

// Start 在后台按 interval 周期采样；重复调用只记录日志
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		m.logger.Info("资源监控已在运行，忽略重复启动")
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(runCtx, interval, m.done)
	m.logger.Info("资源监控已启动", "interval", interval.String())
}

// Stop 停止采样；未运行时直接返回
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
	m.logger.Info("资源监控已停止")
}

// Running 是否在后台采样
func (m *Monitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.cancel != nil
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick 单次采样；任何错误或 panic 都只视为本轮无数据
func (m *Monitor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("资源采样 panic，等待下一轮", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if _, err := m.Sample(ctx); err != nil && ctx.Err() == nil {
		m.logger.Warn("资源采样失败，等待下一轮", "error", err)
	}
}

// Sample 同步读取一次资源。单个指标失败不会让整次采样失败：该指标以中性值填充并记入 Missing，
// 且不参与告警判断；只有 CPU、内存、磁盘全部失败时返回 ErrSampleFailed。
func (m *Monitor) Sample(ctx context.Context) (SystemResources, error) {
	r, alerts, err := m.record(ctx)
	if err != nil {
		return SystemResources{}, err
	}

	metrics.ResourceUsagePercent.WithLabelValues("cpu").Set(r.CPUPercent)
	metrics.ResourceUsagePercent.WithLabelValues("memory").Set(r.MemoryPercent)
	metrics.ResourceUsagePercent.WithLabelValues("disk").Set(r.DiskPercent)

	for _, a := range alerts {
		metrics.ResourceAlertTotal.WithLabelValues(a.Resource, string(a.Severity)).Inc()
		m.logger.Warn("资源阈值告警",
			"resource", a.Resource, "severity", string(a.Severity),
			"value", a.Value, "threshold", a.Threshold)
		m.dispatch(a)
	}
	return r, nil
}

// record 采集并写入当前样本与历史；sampleMu 保证单写者
func (m *Monitor) record(ctx context.Context) (SystemResources, []Alert, error) {
	m.sampleMu.Lock()
	defer m.sampleMu.Unlock()
	r, err := m.collect(ctx)
	if err != nil {
		return SystemResources{}, nil, err
	}
	m.current.Store(&r)
	m.histMu.Lock()
	m.hist.push(r)
	m.histMu.Unlock()
	return r, m.admitAlerts(r), nil
}

func (m *Monitor) collect(ctx context.Context) (SystemResources, error) {
	r := SystemResources{Timestamp: m.now()}
	prev := m.current.Load()
	failed := 0

	if cpuPct, err := m.collector.CPUPercent(ctx); err != nil {
		failed++
		m.readFailed("cpu", err)
		r.Missing = append(r.Missing, "cpu")
	} else {
		r.CPUPercent = cpuPct
	}

	if memReading, err := m.collector.Memory(ctx); err != nil {
		failed++
		m.readFailed("memory", err)
		r.Missing = append(r.Missing, "memory")
		if prev != nil {
			// 保留容量信息供准入估算，使用率按中性值 0 处理
			r.MemoryAvailableMB = prev.MemoryAvailableMB
			r.MemoryTotalMB = prev.MemoryTotalMB
		}
	} else {
		r.MemoryPercent = memReading.UsedPercent
		r.MemoryAvailableMB = memReading.AvailableMB
		r.MemoryTotalMB = memReading.TotalMB
	}

	if diskPct, err := m.collector.DiskPercent(ctx, m.cfg.DiskPath); err != nil {
		failed++
		m.readFailed("disk", err)
		r.Missing = append(r.Missing, "disk")
	} else {
		r.DiskPercent = diskPct
	}

	if failed == 3 {
		return SystemResources{}, ErrSampleFailed
	}

	if avg, err := m.collector.LoadAverage(ctx); err != nil {
		metrics.ResourceSampleErrorsTotal.WithLabelValues("load").Inc()
		m.logger.Debug("读取 load average 失败", "error", err)
		r.Missing = append(r.Missing, "load")
	} else {
		r.LoadAverage = &avg
	}
	return r, nil
}

func (m *Monitor) readFailed(metric string, err error) {
	metrics.ResourceSampleErrorsTotal.WithLabelValues(metric).Inc()
	m.logger.Warn("读取资源指标失败，使用中性值", "metric", metric, "error", err)
}

// admitAlerts 过滤仍在冷却期内的告警；调用方持有 sampleMu
func (m *Monitor) admitAlerts(r SystemResources) []Alert {
	var out []Alert
	for _, a := range m.cfg.Thresholds.evaluate(r) {
		k := a.key()
		if last, ok := m.lastAlert[k]; ok && r.Timestamp.Sub(last) < m.cfg.AlertCooldown {
			continue
		}
		m.lastAlert[k] = r.Timestamp
		out = append(out, a)
	}
	return out
}

// OnAlert 注册告警监听；回调在采样 goroutine 中同步执行，不应阻塞
func (m *Monitor) OnAlert(fn func(Alert)) {
	if fn == nil {
		return
	}
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.listenersMu.Unlock()
}

func (m *Monitor) dispatch(a Alert) {
	m.listenersMu.RLock()
	listeners := append([]func(Alert){}, m.listeners...)
	m.listenersMu.RUnlock()
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("告警回调 panic", "panic", r)
				}
			}()
			fn(a)
		}()
	}
}

// Current 最近一次成功采样；从未采样时 ok=false
func (m *Monitor) Current() (SystemResources, bool) {
	r := m.current.Load()
	if r == nil {
		return SystemResources{}, false
	}
	return *r, true
}

// History 返回历史样本副本，最旧在前
func (m *Monitor) History() []SystemResources {
	m.histMu.RLock()
	defer m.histMu.RUnlock()
	return m.hist.snapshot()
}

// CanAdmit 以当前用量叠加候选 job 的预估占用，对照 warning（而非 critical）阈值判断能否启动。
// 尚无样本时放行，避免监控未就绪阻塞全部任务；最近样本缺少 CPU 或内存读数时拒绝，等待下一次完整采样。
func (m *Monitor) CanAdmit(estimatedMemoryMB, estimatedCPUPercent float64) bool {
	cur := m.current.Load()
	if cur == nil {
		return true
	}
	if !cur.Complete() {
		return false
	}
	t := m.cfg.Thresholds
	projectedCPU := cur.CPUPercent + estimatedCPUPercent
	projectedMem := cur.MemoryPercent
	if cur.MemoryTotalMB > 0 {
		projectedMem += estimatedMemoryMB / cur.MemoryTotalMB * 100
	}
	if cur.MemoryAvailableMB > 0 && estimatedMemoryMB > cur.MemoryAvailableMB {
		return false
	}
	return projectedCPU < t.CPUWarning && projectedMem < t.MemoryWarning
}

// LoadLevel 当前负载等级；尚无样本时为 low
func (m *Monitor) LoadLevel() LoadLevel {
	cur := m.current.Load()
	if cur == nil {
		return LoadLow
	}
	return m.cfg.Thresholds.Classify(*cur)
}
