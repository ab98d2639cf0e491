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
	"runtime/debug"
	"sync"

	"ingest-scheduler/pkg/log"
)

// notifier 将状态迁移按顺序投递给回调；调度循环只追加，不会因回调变慢而阻塞
type notifier struct {
	fn     TransitionFunc
	logger *log.Logger

	mu      sync.Mutex
	pending []Transition
	closed  bool
	signal  chan struct{}
	done    chan struct{}
}

func newNotifier(fn TransitionFunc, logger *log.Logger) *notifier {
	return &notifier{
		fn:     fn,
		logger: logger,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (n *notifier) push(t Transition) {
	if n.fn == nil {
		return
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.pending = append(n.pending, t)
	n.mu.Unlock()
	select {
	case n.signal <- struct{}{}:
	default:
	}
}

func (n *notifier) run(ctx context.Context) {
	defer close(n.done)
	for {
		n.mu.Lock()
		batch := n.pending
		n.pending = nil
		closed := n.closed
		n.mu.Unlock()

		for _, t := range batch {
			n.deliver(ctx, t)
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-n.signal
		}
	}
}

func (n *notifier) deliver(ctx context.Context, t Transition) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("状态回调 panic", "job_id", t.JobID, "state", string(t.State), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	n.fn(ctx, t)
}

// close 停止接收并等待已排队的迁移投递完毕
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	select {
	case n.signal <- struct{}{}:
	default:
	}
	<-n.done
}
