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

	"github.com/google/uuid"

	"ingest-scheduler/internal/analyzer"
	"ingest-scheduler/internal/planner"
	"ingest-scheduler/pkg/errors"
	"ingest-scheduler/pkg/metrics"
	"ingest-scheduler/pkg/tracing"
)

// 处理模式
const (
	ModeStandard   = "standard"
	ModeRealtime   = "realtime"
	ModeBackground = "background"
)

// 模式对应的优先级调整
const (
	realtimeBoost   = 50
	backgroundBoost = -20
)

// ProcessingConfig 提交时的处理配置；Flags 原样传给执行器
type ProcessingConfig struct {
	Mode          string            `json:"mode,omitempty"`
	Flags         map[string]string `json:"flags,omitempty"`
	PriorityBoost int               `json:"priority_boost,omitempty"`
}

func (c ProcessingConfig) boost() (int, error) {
	switch c.Mode {
	case "", ModeStandard:
		return c.PriorityBoost, nil
	case ModeRealtime:
		return c.PriorityBoost + realtimeBoost, nil
	case ModeBackground:
		return c.PriorityBoost + backgroundBoost, nil
	}
	return 0, errors.Wrapf(errors.ErrInvalidArg, "unknown processing mode %q", c.Mode)
}

// SubmitResult 提交结果；PrimaryJobID 为第一个入队的 job
type SubmitResult struct {
	SubmissionID string              `json:"submission_id"`
	PrimaryJobID string              `json:"job_id"`
	JobIDs       []string            `json:"job_ids"`
	Plans        []planner.BatchPlan `json:"plans"`
}

// Submit 分析并规划工作单元，按批次生成 job 入队后立即返回，不等待执行。
// 空列表返回 ErrEmptySubmission。
func (s *Scheduler) Submit(ctx context.Context, units []analyzer.WorkUnit, pc ProcessingConfig) (SubmitResult, error) {
	ctx, span := tracing.StartSubmitSpan(ctx, len(units))
	res, err := s.submit(ctx, units, pc)
	tracing.EndSpan(span, err)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return SubmitResult{}, err
	}
	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
	return res, nil
}

func (s *Scheduler) submit(ctx context.Context, units []analyzer.WorkUnit, pc ProcessingConfig) (SubmitResult, error) {
	if len(units) == 0 {
		return SubmitResult{}, errors.ErrEmptySubmission
	}
	boost, err := pc.boost()
	if err != nil {
		return SubmitResult{}, err
	}

	byID := make(map[string]analyzer.WorkUnit, len(units))
	owned := make([]analyzer.WorkUnit, len(units))
	for i, u := range units {
		if u.ID == "" {
			u.ID = uuid.NewString()
		} else if _, dup := byID[u.ID]; dup {
			return SubmitResult{}, errors.Wrapf(errors.ErrInvalidArg, "duplicate unit id %q", u.ID)
		}
		owned[i] = u
		byID[u.ID] = u
	}
	plans := s.planner.Plan(analyzer.AnalyzeAll(owned))
	// 规划器的批次编号只在一次提交内有效，入队前换成全局唯一 id
	for i := range plans {
		plans[i].ID = uuid.NewString()
	}

	submissionID := uuid.NewString()
	jobs := make([]*Job, 0, len(plans))
	for _, plan := range plans {
		members := make([]analyzer.WorkUnit, 0, len(plan.Members))
		for _, m := range plan.Members {
			members = append(members, byID[m.UnitID])
		}
		metrics.BatchPlansTotal.WithLabelValues(string(plan.Strategy)).Inc()
		jobID := uuid.NewString()
		jobs = append(jobs, &Job{
			ID:                jobID,
			BatchID:           plan.ID,
			SubmissionID:      submissionID,
			Priority:          plan.Priority + boost,
			EstimatedSeconds:  plan.EstimatedSeconds,
			EstimatedMemoryMB: plan.PeakMemoryMB,
			State:             StateQueued,
			Payload: Payload{
				JobID:        jobID,
				SubmissionID: submissionID,
				Batch:        plan,
				Units:        members,
				Processing:   pc,
			},
			index: -1,
		})
	}

	err = s.do(ctx, func() {
		now := time.Now()
		for _, j := range jobs {
			s.seq++
			j.seq = s.seq
			j.SubmittedAt = now
			s.jobs[j.ID] = j
			s.queue.push(j)
			metrics.JobTotal.WithLabelValues(string(StateQueued)).Inc()
			s.emit(j)
		}
		s.logger.Info("提交已入队", "submission_id", submissionID, "units", len(units), "jobs", len(jobs), "queued", s.queue.Len())
	})
	if err != nil {
		return SubmitResult{}, err
	}

	res := SubmitResult{SubmissionID: submissionID, PrimaryJobID: jobs[0].ID, Plans: plans}
	for _, j := range jobs {
		res.JobIDs = append(res.JobIDs, j.ID)
	}
	return res, nil
}

// Cancel 取消 job：排队中的直接移出队列；运行中的发出协作取消信号，返回 true 表示信号已送达。
// 未知 id 返回 ErrUnknownJob，已结束的返回 ErrJobFinished。
func (s *Scheduler) Cancel(ctx context.Context, jobID string) (bool, error) {
	var ok bool
	var cerr error
	err := s.do(ctx, func() {
		j, found := s.jobs[jobID]
		if !found {
			cerr = errors.ErrUnknownJob
			return
		}
		switch j.State {
		case StateQueued:
			s.queue.remove(j)
			j.State = StateCancelled
			j.Message = "cancelled while queued"
			s.finish(j, time.Now())
			s.logger.Info("取消排队中的 job", "job_id", jobID)
			ok = true
		case StateRunning:
			h := s.running[jobID]
			if h != nil && !h.cancelRequested {
				h.cancelRequested = true
				h.cancelReason = "cancelled by request"
				h.cancel()
				s.logger.Info("已向运行中的 job 发出取消信号", "job_id", jobID)
			}
			ok = true
		default:
			cerr = errors.ErrJobFinished
		}
	})
	if err != nil {
		return false, err
	}
	return ok, cerr
}
