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
	"time"

	"ingest-scheduler/internal/analyzer"
	"ingest-scheduler/internal/planner"
)

// State Job 状态；任一时刻只处于其中之一
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal 是否终态
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Payload 交给执行器的工作描述；调度器只负责传递，不解析其内容
type Payload struct {
	JobID        string              `json:"job_id"`
	SubmissionID string              `json:"submission_id"`
	Batch        planner.BatchPlan   `json:"batch"`
	Units        []analyzer.WorkUnit `json:"units"`
	Processing   ProcessingConfig    `json:"processing"`
}

// Job 已接受的工作单元；Priority 与 SubmittedAt 入队后不再变化
type Job struct {
	ID                string
	BatchID           string
	SubmissionID      string
	Priority          int
	SubmittedAt       time.Time
	EstimatedSeconds  float64
	EstimatedMemoryMB float64
	State             State
	Payload           Payload

	StartedAt  time.Time
	FinishedAt time.Time
	Message    string
	Error      string

	seq   uint64 // 同优先级、同时间戳时的提交顺序
	index int    // 堆内下标，-1 表示不在堆中
}

// Result 执行器成功返回的结果
type Result struct {
	Message string `json:"message,omitempty"`
}

// Executor 文档处理管线的执行接口。ctx 被取消即为取消信号，实现方应在安全点检查并尽快返回
type Executor interface {
	Execute(ctx context.Context, p Payload) (Result, error)
}

// ExecutorFunc 函数适配 Executor
type ExecutorFunc func(ctx context.Context, p Payload) (Result, error)

// Execute 实现 Executor
func (f ExecutorFunc) Execute(ctx context.Context, p Payload) (Result, error) {
	return f(ctx, p)
}

// Transition 一次状态迁移（或 Running 期间的进度消息），交给外部 job 跟踪存储
type Transition struct {
	JobID        string    `json:"job_id"`
	BatchID      string    `json:"batch_id"`
	SubmissionID string    `json:"submission_id"`
	State        State     `json:"state"`
	Priority     int       `json:"priority"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// TransitionFunc 状态迁移回调；在独立 goroutine 中按发生顺序调用，不阻塞调度循环
type TransitionFunc func(ctx context.Context, t Transition)

type progressKey struct{}

// ReportProgress 执行器在运行中上报进度消息；ctx 须为 Execute 收到的 ctx
func ReportProgress(ctx context.Context, message string) {
	if fn, ok := ctx.Value(progressKey{}).(func(string)); ok {
		fn(message)
	}
}

// WithProgressFunc 挂载进度回调，供在调度器之外驱动执行器时接收 ReportProgress
func WithProgressFunc(ctx context.Context, fn func(string)) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}
