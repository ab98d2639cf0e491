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
	"container/heap"
	"sort"
)

// jobQueue 按 (priority desc, submittedAt asc) 排序的二叉堆；只由调度循环访问
type jobQueue struct {
	items []*Job
}

func newJobQueue() *jobQueue {
	return &jobQueue{}
}

// ahead a 是否排在 b 之前
func ahead(a, b *Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.seq < b.seq
}

func (q *jobQueue) Len() int           { return len(q.items) }
func (q *jobQueue) Less(i, j int) bool { return ahead(q.items[i], q.items[j]) }
func (q *jobQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

// Push heap.Interface 使用，外部调用 push
func (q *jobQueue) Push(x any) {
	j := x.(*Job)
	j.index = len(q.items)
	q.items = append(q.items, j)
}

// Pop heap.Interface 使用，外部调用 popHighest
func (q *jobQueue) Pop() any {
	old := q.items
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	q.items = old[:n-1]
	return j
}

func (q *jobQueue) push(j *Job) {
	heap.Push(q, j)
}

func (q *jobQueue) popHighest() *Job {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(q).(*Job)
}

func (q *jobQueue) peek() *Job {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// remove 删除队列中的 job；不在队列中时返回 false
func (q *jobQueue) remove(j *Job) bool {
	if j.index < 0 || j.index >= len(q.items) || q.items[j.index] != j {
		return false
	}
	heap.Remove(q, j.index)
	return true
}

// position 排在 j 之前的成员数，O(n)
func (q *jobQueue) position(j *Job) int {
	n := 0
	for _, other := range q.items {
		if other != j && ahead(other, j) {
			n++
		}
	}
	return n
}

// secondsAhead 排在 j 之前的成员预估耗时之和
func (q *jobQueue) secondsAhead(j *Job) float64 {
	var sum float64
	for _, other := range q.items {
		if other != j && ahead(other, j) {
			sum += other.EstimatedSeconds
		}
	}
	return sum
}

// ordered 按出队顺序返回前 limit 个成员的副本切片；limit<=0 表示全部
func (q *jobQueue) ordered(limit int) []*Job {
	out := make([]*Job, len(q.items))
	copy(out, q.items)
	sort.Slice(out, func(i, j int) bool { return ahead(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
