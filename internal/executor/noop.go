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
	"fmt"
	"time"

	"ingest-scheduler/internal/scheduler"
)

// Noop 不调用任何管线，用于本地联调；Delay>0 时模拟耗时并响应取消
type Noop struct {
	Delay time.Duration
}

// Execute 实现 scheduler.Executor
func (n *Noop) Execute(ctx context.Context, p scheduler.Payload) (scheduler.Result, error) {
	if n.Delay > 0 {
		timer := time.NewTimer(n.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return scheduler.Result{}, ctx.Err()
		case <-timer.C:
		}
	}
	return scheduler.Result{Message: fmt.Sprintf("processed %d units (%s)", len(p.Units), p.Batch.Strategy)}, nil
}
