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
	"time"

	"ingest-scheduler/pkg/errors"
)

// QueueEntry 队列快照中的一项
type QueueEntry struct {
	JobID                string    `json:"job_id"`
	BatchID              string    `json:"batch_id"`
	Priority             int       `json:"priority"`
	Position             int       `json:"position"` // 排在前面的 job 数
	Members              int       `json:"members"`
	SubmittedAt          time.Time `json:"submitted_at"`
	EstimatedSeconds     float64   `json:"estimated_seconds"`
	EstimatedWaitSeconds float64   `json:"estimated_wait_seconds"`
}

// RunningEntry 运行中的 job
type RunningEntry struct {
	JobID           string    `json:"job_id"`
	BatchID         string    `json:"batch_id"`
	Priority        int       `json:"priority"`
	StartedAt       time.Time `json:"started_at"`
	CancelRequested bool      `json:"cancel_requested,omitempty"`
}

// Status 只读的队列状态快照
type Status struct {
	RunningCount    int            `json:"running_count"`
	MaxConcurrent   int            `json:"max_concurrent"`
	ConfiguredMax   int            `json:"configured_max"`
	QueuedCount     int            `json:"queued_count"`
	Paused          bool           `json:"paused"`
	SystemLoadLevel string         `json:"system_load_level"`
	TopQueueEntries []QueueEntry   `json:"top_queue_entries"`
	Running         []RunningEntry `json:"running"`
	Message         string         `json:"message"`
}

// JobDetail 单个 job 的状态
type JobDetail struct {
	JobID                string    `json:"job_id"`
	BatchID              string    `json:"batch_id"`
	SubmissionID         string    `json:"submission_id"`
	State                State     `json:"state"`
	Priority             int       `json:"priority"`
	Position             int       `json:"position"` // 仅 queued 有效，否则 -1
	EstimatedSeconds     float64   `json:"estimated_seconds"`
	EstimatedWaitSeconds float64   `json:"estimated_wait_seconds"`
	SubmittedAt          time.Time `json:"submitted_at"`
	StartedAt            time.Time `json:"started_at,omitempty"`
	FinishedAt           time.Time `json:"finished_at,omitempty"`
	Message              string    `json:"message,omitempty"`
	Error                string    `json:"error,omitempty"`
}

// Status 返回队列快照，不产生副作用
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.do(ctx, func() {
		st = Status{
			RunningCount:    len(s.running),
			MaxConcurrent:   s.maxConcurrent,
			ConfiguredMax:   s.cfg.MaxConcurrentJobs,
			QueuedCount:     s.queue.Len(),
			Paused:          s.paused,
			SystemLoadLevel: s.gate.LoadLevel().String(),
		}
		var waitAhead float64
		for i, j := range s.queue.ordered(s.cfg.StatusTopN) {
			st.TopQueueEntries = append(st.TopQueueEntries, QueueEntry{
				JobID:                j.ID,
				BatchID:              j.BatchID,
				Priority:             j.Priority,
				Position:             i,
				Members:              len(j.Payload.Units),
				SubmittedAt:          j.SubmittedAt,
				EstimatedSeconds:     j.EstimatedSeconds,
				EstimatedWaitSeconds: waitAhead / float64(s.maxConcurrent),
			})
			waitAhead += j.EstimatedSeconds
		}
		for _, h := range s.running {
			st.Running = append(st.Running, RunningEntry{
				JobID:           h.job.ID,
				BatchID:         h.job.BatchID,
				Priority:        h.job.Priority,
				StartedAt:       h.job.StartedAt,
				CancelRequested: h.cancelRequested,
			})
		}
		st.Message = s.statusMessage()
	})
	return st, err
}

// statusMessage 繁忙状态以 "N of M slots used" 形式告知，而非报错
func (s *Scheduler) statusMessage() string {
	msg := fmt.Sprintf("%d of %d slots used, %d queued", len(s.running), s.maxConcurrent, s.queue.Len())
	if s.maxConcurrent < s.cfg.MaxConcurrentJobs {
		msg += fmt.Sprintf(" (reduced from %d under resource pressure)", s.cfg.MaxConcurrentJobs)
	}
	if s.paused {
		msg += "; admission paused until resources recover"
	}
	return msg
}

// JobInfo 查询单个 job；排队中的 job 附带位置与预计等待
func (s *Scheduler) JobInfo(ctx context.Context, jobID string) (JobDetail, error) {
	var d JobDetail
	var jerr error
	err := s.do(ctx, func() {
		j, ok := s.jobs[jobID]
		if !ok {
			jerr = errors.ErrUnknownJob
			return
		}
		d = JobDetail{
			JobID:            j.ID,
			BatchID:          j.BatchID,
			SubmissionID:     j.SubmissionID,
			State:            j.State,
			Priority:         j.Priority,
			Position:         -1,
			EstimatedSeconds: j.EstimatedSeconds,
			SubmittedAt:      j.SubmittedAt,
			StartedAt:        j.StartedAt,
			FinishedAt:       j.FinishedAt,
			Message:          j.Message,
			Error:            j.Error,
		}
		if j.State == StateQueued {
			d.Position = s.queue.position(j)
			d.EstimatedWaitSeconds = s.queue.secondsAhead(j) / float64(s.maxConcurrent)
		}
	})
	if err != nil {
		return JobDetail{}, err
	}
	return d, jerr
}
