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
	"sort"
	"sync"

	"ingest-scheduler/pkg/errors"
)

// MemoryTracker 进程内存储（单节点、测试）
type MemoryTracker struct {
	mu          sync.RWMutex
	records     map[string]Record
	submissions map[string]map[string]struct{}
}

// NewMemoryTracker 创建内存存储
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		records:     make(map[string]Record),
		submissions: make(map[string]map[string]struct{}),
	}
}

// Record 实现 Tracker
func (m *MemoryTracker) Record(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.JobID] = r
	if r.SubmissionID != "" {
		ids, ok := m.submissions[r.SubmissionID]
		if !ok {
			ids = make(map[string]struct{})
			m.submissions[r.SubmissionID] = ids
		}
		ids[r.JobID] = struct{}{}
	}
	return nil
}

// Get 实现 Tracker
func (m *MemoryTracker) Get(_ context.Context, jobID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[jobID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "job %s", jobID)
	}
	return &r, nil
}

// ListSubmission 实现 Tracker
func (m *MemoryTracker) ListSubmission(_ context.Context, submissionID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for id := range m.submissions[submissionID] {
		out = append(out, m.records[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}

// Close 实现 Tracker
func (m *MemoryTracker) Close() error { return nil }
