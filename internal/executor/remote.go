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

package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"ingest-scheduler/internal/scheduler"
	"ingest-scheduler/pkg/log"
)

const (
	tasksPath           = "/api/pipeline/tasks"
	maxPollFailures     = 5
	cancelTimeout       = 5 * time.Second
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 2 * time.Second
)

// 管线任务状态
const (
	taskCompleted = "completed"
	taskFailed    = "failed"
	taskCancelled = "cancelled"
)

type task struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Progress string `json:"progress,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Remote 通过 HTTP 调用外部文档处理管线：提交任务、轮询状态，ctx 取消时 DELETE 任务
type Remote struct {
	client *resty.Client
	poll   time.Duration
	logger *log.Logger
}

// NewRemote 创建远程执行器
func NewRemote(cfg Config, logger *log.Logger) (*Remote, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("executor.endpoint 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = log.NewNop()
	}
	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &Remote{client: client, poll: cfg.PollInterval, logger: logger.With("component", "remote_executor")}, nil
}

// Execute 实现 scheduler.Executor
func (r *Remote) Execute(ctx context.Context, p scheduler.Payload) (scheduler.Result, error) {
	var created task
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(p).
		SetResult(&created).
		Post(tasksPath)
	if err != nil {
		if ctx.Err() != nil {
			return scheduler.Result{}, ctx.Err()
		}
		return scheduler.Result{}, fmt.Errorf("submit to pipeline: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	default:
		return scheduler.Result{}, fmt.Errorf("submit to pipeline: status %d: %s", resp.StatusCode(), resp.String())
	}
	if created.TaskID == "" {
		return scheduler.Result{}, errors.New("submit to pipeline: empty task_id")
	}
	if res, done, err := finished(created); done {
		return res, err
	}

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	lastProgress := created.Progress
	failures := 0
	for {
		select {
		case <-ctx.Done():
			r.cancelTask(created.TaskID, p.JobID)
			return scheduler.Result{}, ctx.Err()
		case <-ticker.C:
		}

		st, err := r.status(ctx, created.TaskID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			failures++
			r.logger.Warn("查询管线任务状态失败", "job_id", p.JobID, "task_id", created.TaskID, "error", err, "failures", failures)
			if failures >= maxPollFailures {
				return scheduler.Result{}, fmt.Errorf("poll pipeline task %s: %w", created.TaskID, err)
			}
			continue
		}
		failures = 0
		if res, done, err := finished(st); done {
			return res, err
		}
		if st.Progress != "" && st.Progress != lastProgress {
			lastProgress = st.Progress
			scheduler.ReportProgress(ctx, st.Progress)
		}
	}
}

func finished(t task) (scheduler.Result, bool, error) {
	switch t.Status {
	case taskCompleted:
		return scheduler.Result{Message: t.Message}, true, nil
	case taskFailed:
		msg := t.Error
		if msg == "" {
			msg = "pipeline reported failure"
		}
		return scheduler.Result{}, true, errors.New(msg)
	case taskCancelled:
		return scheduler.Result{}, true, errors.New("pipeline cancelled the task")
	}
	return scheduler.Result{}, false, nil
}

func (r *Remote) status(ctx context.Context, taskID string) (task, error) {
	var st task
	resp, err := r.client.R().
		SetContext(ctx).
		SetResult(&st).
		Get(tasksPath + "/" + taskID)
	if err != nil {
		return task{}, err
	}
	if resp.StatusCode() != http.StatusOK {
		return task{}, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	return st, nil
}

// cancelTask 在调用方 ctx 已取消后执行，使用独立超时
func (r *Remote) cancelTask(taskID, jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	resp, err := r.client.R().SetContext(ctx).Delete(tasksPath + "/" + taskID)
	if err != nil {
		r.logger.Warn("取消管线任务失败", "job_id", jobID, "task_id", taskID, "error", err)
		return
	}
	if resp.StatusCode() >= http.StatusBadRequest && resp.StatusCode() != http.StatusNotFound {
		r.logger.Warn("取消管线任务失败", "job_id", jobID, "task_id", taskID, "status", resp.StatusCode())
	}
}
