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

package jobtrack

import (
	"context"
	"time"

	"ingest-scheduler/internal/scheduler"
	"ingest-scheduler/pkg/log"
)

// recordTimeout 单次写入上限，存储变慢时不拖住后续迁移
const recordTimeout = 5 * time.Second

// Hook 将调度器的状态迁移写入 Tracker；写入失败只记录日志，不影响调度
func Hook(tr Tracker, logger *log.Logger) scheduler.TransitionFunc {
	if logger == nil {
		logger = log.NewNop()
	}
	return func(ctx context.Context, t scheduler.Transition) {
		ctx, cancel := context.WithTimeout(ctx, recordTimeout)
		defer cancel()
		err := tr.Record(ctx, FromTransition(t))
		if err != nil {
			logger.Warn("写入 job 状态失败", "job_id", t.JobID, "state", string(t.State), "error", err)
		}
	}
}

// FromTransition 迁移转为存储记录
func FromTransition(t scheduler.Transition) Record {
	return Record{
		JobID:        t.JobID,
		BatchID:      t.BatchID,
		SubmissionID: t.SubmissionID,
		State:        string(t.State),
		Priority:     t.Priority,
		Message:      t.Message,
		Error:        t.Error,
		UpdatedAt:    t.At,
	}
}
