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

package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"ingest-scheduler/internal/planner"
	"ingest-scheduler/internal/resource"
	"ingest-scheduler/pkg/errors"
	"ingest-scheduler/pkg/log"
	"ingest-scheduler/pkg/metrics"
	"ingest-scheduler/pkg/tracing"
)

// Gate 准入与负载信息来源，*resource.Monitor 实现该接口
type Gate interface {
	CanAdmit(estimatedMemoryMB, estimatedCPUPercent float64) bool
	Current() (resource.SystemResources, bool)
	LoadLevel() resource.LoadLevel
	OnAlert(fn func(resource.Alert))
}

// Config 调度循环配置
type Config struct {
	MaxConcurrentJobs   int
	PollInterval        time.Duration // 空队列、满并发或准入拒绝时的最长等待
	PausedPollInterval  time.Duration // Paused 状态下复查资源的间隔
	RestoreAfter        time.Duration // 负载持续 low/moderate 多久后并发上限 +1
	CriticalCancelAfter time.Duration // 持续 critical 多久后取消最低优先级的运行中 job；0 关闭
	ResumeCPUPercent    float64
	ResumeMemoryPercent float64
	AdmissionCPUPercent float64 // 准入时每个 job 预估的 CPU 占用
	StatusTopN          int
	RetainFinished      int // 终态 job 保留条数，供 JobInfo 查询
	Planner             planner.Config
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs:   3,
		PollInterval:        2 * time.Second,
		PausedPollInterval:  2 * time.Second,
		RestoreAfter:        30 * time.Second,
		CriticalCancelAfter: 60 * time.Second,
		ResumeCPUPercent:    70,
		ResumeMemoryPercent: 80,
		AdmissionCPUPercent: 20,
		StatusTopN:          10,
		RetainFinished:      1000,
		Planner:             planner.DefaultConfig(),
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = def.MaxConcurrentJobs
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.PausedPollInterval <= 0 {
		c.PausedPollInterval = def.PausedPollInterval
	}
	if c.RestoreAfter <= 0 {
		c.RestoreAfter = def.RestoreAfter
	}
	if c.CriticalCancelAfter < 0 {
		c.CriticalCancelAfter = 0
	}
	if c.ResumeCPUPercent <= 0 {
		c.ResumeCPUPercent = def.ResumeCPUPercent
	}
	if c.ResumeMemoryPercent <= 0 {
		c.ResumeMemoryPercent = def.ResumeMemoryPercent
	}
	if c.AdmissionCPUPercent < 0 {
		c.AdmissionCPUPercent = 0
	}
	if c.StatusTopN <= 0 {
		c.StatusTopN = def.StatusTopN
	}
	if c.RetainFinished <= 0 {
		c.RetainFinished = def.RetainFinished
	}
}

// handle 运行中 job 的句柄；只由调度循环创建与移除
type handle struct {
	job             *Job
	cancel          context.CancelFunc
	cancelRequested bool
	cancelReason    string
}

type command struct {
	fn   func()
	done chan struct{}
}

type completion struct {
	jobID  string
	result Result
	err    error
}

// Scheduler 单一调度循环：独占优先队列、运行表与并发上限，所有跨 goroutine 交互都通过 channel 进入循环。
// 一个进程通常只构造一个实例，由宿主显式 Start / Stop。
type Scheduler struct {
	cfg     Config
	gate    Gate
	exec    Executor
	planner *planner.Planner
	logger  *log.Logger
	notify  *notifier

	cmds        chan command
	completions chan completion
	alerts      chan resource.Alert
	quit        chan struct{}
	loopDone    chan struct{}
	started     atomic.Bool
	stopOnce    sync.Once

	// 以下字段只由调度循环读写
	queue         *jobQueue
	jobs          map[string]*Job
	running       map[string]*handle
	finished      []string
	maxConcurrent int
	paused        bool
	seq           uint64
	lowSince      time.Time
	criticalSince time.Time
	workCtx       context.Context
}

// New 创建调度器；gate 为 nil 时总是放行，onTransition 可为 nil
func New(cfg Config, gate Gate, exec Executor, onTransition TransitionFunc, logger *log.Logger) *Scheduler {
	cfg.applyDefaults()
	if gate == nil {
		gate = openGate{}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.With("component", "scheduler")
	return &Scheduler{
		cfg:           cfg,
		gate:          gate,
		exec:          exec,
		planner:       planner.New(cfg.Planner),
		logger:        logger,
		notify:        newNotifier(onTransition, logger),
		cmds:          make(chan command),
		completions:   make(chan completion, 64),
		alerts:        make(chan resource.Alert, 16),
		quit:          make(chan struct{}),
		loopDone:      make(chan struct{}),
		queue:         newJobQueue(),
		jobs:          make(map[string]*Job),
		running:       make(map[string]*handle),
		maxConcurrent: cfg.MaxConcurrentJobs,
	}
}

// Start 启动调度循环；重复调用只记录日志，Stop 之后不能再次启动
func (s *Scheduler) Start(ctx context.Context) error {
	select {
	case <-s.quit:
		return errors.ErrSchedulerStopped
	default:
	}
	if !s.started.CompareAndSwap(false, true) {
		s.logger.Info("调度循环已在运行，忽略重复启动")
		return nil
	}
	s.workCtx = context.WithoutCancel(ctx)
	s.gate.OnAlert(s.forwardAlert)
	go s.notify.run(context.WithoutCancel(ctx))
	go s.run(ctx)
	s.logger.Info("调度循环已启动", "max_concurrent", s.cfg.MaxConcurrentJobs, "poll_interval", s.cfg.PollInterval.String())
	return nil
}

// Stop 停止调度循环：运行中的 job 收到取消信号并标记为 cancelled，不等待 worker 退出；
// 排队中的 job 同样标记为 cancelled。可重复调用。
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.started.Load() {
			<-s.loopDone
			s.notify.close()
		}
		s.logger.Info("调度循环已停止")
	})
}

// forwardAlert 在监控采样 goroutine 中执行，只做非阻塞投递
func (s *Scheduler) forwardAlert(a resource.Alert) {
	select {
	case s.alerts <- a:
	default:
		s.logger.Warn("告警通道已满，丢弃告警", "resource", a.Resource, "severity", string(a.Severity))
	}
}

// do 在调度循环中执行 fn 并等待完成
func (s *Scheduler) do(ctx context.Context, fn func()) error {
	if !s.started.Load() {
		return errors.ErrSchedulerStopped
	}
	c := command{fn: fn, done: make(chan struct{})}
	select {
	case s.cmds <- c:
	case <-s.quit:
		return errors.ErrSchedulerStopped
	case <-s.loopDone:
		return errors.ErrSchedulerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-c.done
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.loopDone)
	for {
		s.guard("tick", s.tick)
		timer := time.NewTimer(s.wait())
		select {
		case <-ctx.Done():
			timer.Stop()
			s.guard("shutdown", func() { s.shutdown("context cancelled") })
			return
		case <-s.quit:
			timer.Stop()
			s.guard("shutdown", func() { s.shutdown("scheduler stopped") })
			return
		case c := <-s.cmds:
			s.guard("command", c.fn)
			close(c.done)
		case c := <-s.completions:
			s.guard("completion", func() { s.complete(c) })
		case a := <-s.alerts:
			s.guard("alert", func() { s.handleAlert(a) })
		case <-timer.C:
		}
		timer.Stop()
	}
}

// guard 在循环边界恢复 panic：记录后继续下一轮
func (s *Scheduler) guard(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.LoopPanicsTotal.Inc()
			s.logger.Error("调度循环 panic，继续下一轮", "stage", stage, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (s *Scheduler) wait() time.Duration {
	if s.paused {
		return s.cfg.PausedPollInterval
	}
	return s.cfg.PollInterval
}

// tick 一次调度：先根据负载调整状态，再在并发预算内按优先级准入
func (s *Scheduler) tick() {
	start := time.Now()
	defer func() {
		metrics.SchedulerTickDurationSeconds.Observe(time.Since(start).Seconds())
		s.publishGauges()
	}()

	now := time.Now()
	s.evaluateLoad(now)
	if s.paused {
		return
	}

	// 被拒绝的 job 暂存，本轮继续尝试后面的 job，结束（包括 panic）时原样放回
	var deferred []*Job
	defer func() {
		for _, j := range deferred {
			s.queue.push(j)
		}
	}()
	for len(s.running) < s.maxConcurrent {
		j := s.queue.popHighest()
		if j == nil {
			break
		}
		deferred = append(deferred, j)
		if !s.admit(j) {
			metrics.AdmissionRefusedTotal.Inc()
			s.logger.Debug("资源不足，job 暂缓准入", "job_id", j.ID, "priority", j.Priority, "memory_mb", j.EstimatedMemoryMB)
			continue
		}
		deferred = deferred[:len(deferred)-1]
		s.startJob(j, now)
	}
}

// admit 叠加本次采样之后才启动的 job 的预估占用，避免同一采样窗口内超额准入
func (s *Scheduler) admit(j *Job) bool {
	mem := j.EstimatedMemoryMB
	cpu := s.cfg.AdmissionCPUPercent
	if cur, ok := s.gate.Current(); ok {
		for _, h := range s.running {
			if h.job.StartedAt.After(cur.Timestamp) {
				mem += h.job.EstimatedMemoryMB
				cpu += s.cfg.AdmissionCPUPercent
			}
		}
	}
	return s.gate.CanAdmit(mem, cpu)
}

// evaluateLoad 处理暂停恢复、并发上限恢复与持续 critical 下的取消策略
func (s *Scheduler) evaluateLoad(now time.Time) {
	cur, ok := s.gate.Current()
	if ok && !cur.Complete() {
		// 读数缺失视同漏采一轮，暂停、恢复与并发上限都保持不变
		s.logger.Debug("资源样本不完整，跳过负载评估", "missing", cur.Missing, "paused", s.paused)
		return
	}
	level := s.gate.LoadLevel()
	switch level {
	case resource.LoadCritical:
		s.lowSince = time.Time{}
		if s.criticalSince.IsZero() {
			s.criticalSince = now
		}
		if !s.paused {
			s.pause("critical load observed")
		}
		if s.cfg.CriticalCancelAfter > 0 && len(s.running) > 0 && now.Sub(s.criticalSince) >= s.cfg.CriticalCancelAfter {
			s.cancelLowestRunning()
			s.criticalSince = now
		}
	case resource.LoadHigh:
		s.lowSince = time.Time{}
		s.criticalSince = time.Time{}
	default:
		s.criticalSince = time.Time{}
		if s.maxConcurrent >= s.cfg.MaxConcurrentJobs {
			s.lowSince = time.Time{}
			break
		}
		if s.lowSince.IsZero() {
			s.lowSince = now
		} else if now.Sub(s.lowSince) >= s.cfg.RestoreAfter {
			s.maxConcurrent++
			s.lowSince = now
			s.logger.Info("负载回落，恢复并发上限", "max_concurrent", s.maxConcurrent, "level", level.String())
		}
	}

	if s.paused {
		if ok && cur.CPUPercent < s.cfg.ResumeCPUPercent && cur.MemoryPercent < s.cfg.ResumeMemoryPercent {
			s.paused = false
			s.logger.Info("资源回落到恢复阈值以下，恢复准入", "cpu", cur.CPUPercent, "memory", cur.MemoryPercent)
		}
	}
}

func (s *Scheduler) pause(reason string) {
	s.paused = true
	s.logger.Warn("暂停准入", "reason", reason, "running", len(s.running), "queued", s.queue.Len())
}

// handleAlert critical(cpu/memory) 暂停准入；warning 并发上限 -1（最低 1）。磁盘告警只记录
func (s *Scheduler) handleAlert(a resource.Alert) {
	if a.Resource != "cpu" && a.Resource != "memory" {
		s.logger.Warn("磁盘告警，调度不做调整", "resource", a.Resource, "severity", string(a.Severity), "value", a.Value)
		return
	}
	switch a.Severity {
	case resource.SeverityCritical:
		if !s.paused {
			s.pause(fmt.Sprintf("%s critical %.1f%% >= %.1f%%", a.Resource, a.Value, a.Threshold))
		}
		if s.criticalSince.IsZero() {
			s.criticalSince = time.Now()
		}
	case resource.SeverityWarning:
		s.lowSince = time.Time{}
		if s.maxConcurrent > 1 {
			s.maxConcurrent--
			s.logger.Warn("资源告警，下调并发上限", "resource", a.Resource, "value", a.Value, "max_concurrent", s.maxConcurrent)
		}
	}
}

// cancelLowestRunning 取消优先级最低的运行中 job；同优先级取最晚启动者
func (s *Scheduler) cancelLowestRunning() {
	var victim *handle
	for _, h := range s.running {
		if h.cancelRequested {
			continue
		}
		if victim == nil || h.job.Priority < victim.job.Priority ||
			(h.job.Priority == victim.job.Priority && h.job.StartedAt.After(victim.job.StartedAt)) {
			victim = h
		}
	}
	if victim == nil {
		return
	}
	victim.cancelRequested = true
	victim.cancelReason = "cancelled under sustained critical resource pressure"
	victim.cancel()
	metrics.CriticalCancelTotal.Inc()
	s.logger.Warn("持续 critical 资源压力，取消最低优先级的运行中 job",
		"job_id", victim.job.ID, "priority", victim.job.Priority, "running", len(s.running))
}

func (s *Scheduler) startJob(j *Job, now time.Time) {
	ctx, cancel := context.WithCancel(s.workCtx)
	j.State = StateRunning
	j.StartedAt = now
	s.running[j.ID] = &handle{job: j, cancel: cancel}
	metrics.JobTotal.WithLabelValues(string(StateRunning)).Inc()
	s.emit(j)
	s.logger.Info("job 开始执行", "job_id", j.ID, "batch_id", j.BatchID, "priority", j.Priority,
		"running", len(s.running), "max_concurrent", s.maxConcurrent)
	go s.work(ctx, j.ID, j.BatchID, j.SubmissionID, j.Priority, j.Payload)
}

// work 在独立 goroutine 中执行 job；与循环只通过 completions 交互
func (s *Scheduler) work(ctx context.Context, id, batchID, submissionID string, priority int, p Payload) {
	ctx, span := tracing.StartJobSpan(ctx, id, batchID, priority)
	ctx = WithProgressFunc(ctx, func(msg string) {
		s.notify.push(Transition{JobID: id, BatchID: batchID, SubmissionID: submissionID, State: StateRunning, Priority: priority, Message: msg, At: time.Now()})
	})

	var res Result
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("worker panic: %v", r)
				s.logger.Error("job 执行 panic", "job_id", id, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		if s.exec == nil {
			err = fmt.Errorf("no executor configured")
			return
		}
		res, err = s.exec.Execute(ctx, p)
	}()
	tracing.EndSpan(span, err)

	select {
	case s.completions <- completion{jobID: id, result: res, err: err}:
	case <-s.quit:
	case <-s.loopDone:
	}
}

// complete 只有循环会从运行表中移除 job
func (s *Scheduler) complete(c completion) {
	h, ok := s.running[c.jobID]
	if !ok {
		return
	}
	delete(s.running, c.jobID)
	h.cancel()
	j := h.job
	switch {
	case c.err == nil:
		j.State = StateCompleted
		j.Message = c.result.Message
	case h.cancelRequested:
		j.State = StateCancelled
		j.Message = h.cancelReason
		j.Error = c.err.Error()
	default:
		j.State = StateFailed
		j.Error = c.err.Error()
	}
	s.finish(j, time.Now())
	if j.State == StateFailed {
		s.logger.Warn("job 执行失败", "job_id", j.ID, "batch_id", j.BatchID, "error", j.Error)
	} else {
		s.logger.Info("job 结束", "job_id", j.ID, "state", string(j.State))
	}
}

// finish 记录终态、发出迁移并按保留上限淘汰最旧的终态 job
func (s *Scheduler) finish(j *Job, now time.Time) {
	j.FinishedAt = now
	metrics.JobTotal.WithLabelValues(string(j.State)).Inc()
	if !j.StartedAt.IsZero() {
		metrics.JobDuration.WithLabelValues(string(j.State)).Observe(now.Sub(j.StartedAt).Seconds())
	}
	s.emit(j)
	s.finished = append(s.finished, j.ID)
	for len(s.finished) > s.cfg.RetainFinished {
		delete(s.jobs, s.finished[0])
		s.finished = s.finished[1:]
	}
}

func (s *Scheduler) emit(j *Job) {
	s.notify.push(Transition{
		JobID:        j.ID,
		BatchID:      j.BatchID,
		SubmissionID: j.SubmissionID,
		State:        j.State,
		Priority:     j.Priority,
		Message:      j.Message,
		Error:        j.Error,
		At:           time.Now(),
	})
}

// shutdown 循环退出前取消所有运行中与排队中的 job
func (s *Scheduler) shutdown(reason string) {
	now := time.Now()
	for id, h := range s.running {
		h.cancel()
		delete(s.running, id)
		h.job.State = StateCancelled
		h.job.Message = reason
		s.finish(h.job, now)
	}
	for j := s.queue.popHighest(); j != nil; j = s.queue.popHighest() {
		j.State = StateCancelled
		j.Message = reason
		s.finish(j, now)
	}
	s.publishGauges()
}

func (s *Scheduler) publishGauges() {
	metrics.QueueDepth.Set(float64(s.queue.Len()))
	metrics.RunningJobs.Set(float64(len(s.running)))
	metrics.MaxConcurrentJobs.Set(float64(s.maxConcurrent))
	if s.paused {
		metrics.SchedulerPaused.Set(1)
	} else {
		metrics.SchedulerPaused.Set(0)
	}
}

type openGate struct{}

func (openGate) CanAdmit(float64, float64) bool { return true }
func (openGate) Current() (resource.SystemResources, bool) {
	return resource.SystemResources{}, false
}
func (openGate) LoadLevel() resource.LoadLevel { return resource.LoadLow }
func (openGate) OnAlert(func(resource.Alert))  {}
