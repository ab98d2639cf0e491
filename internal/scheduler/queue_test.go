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
	"testing"
	"time"
)

func qjob(id string, prio int, at time.Time, seq uint64) *Job {
	return &Job{ID: id, Priority: prio, SubmittedAt: at, seq: seq, index: -1}
}

func TestJobQueue_Ordering(t *testing.T) {
	t0 := time.Now()
	q := newJobQueue()
	q.push(qjob("a", 100, t0, 1))
	q.push(qjob("b", 150, t0.Add(time.Second), 2))
	q.push(qjob("c", 100, t0.Add(time.Second), 3))
	q.push(qjob("d", 100, t0, 4))

	var got []string
	for j := q.popHighest(); j != nil; j = q.popHighest() {
		got = append(got, j.ID)
		if j.index != -1 {
			t.Errorf("popped job %s still has heap index %d", j.ID, j.index)
		}
	}
	want := []string{"b", "a", "d", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestJobQueue_PositionAndRemove(t *testing.T) {
	t0 := time.Now()
	q := newJobQueue()
	a := qjob("a", 100, t0, 1)
	b := qjob("b", 150, t0, 2)
	c := qjob("c", 100, t0.Add(time.Millisecond), 3)
	a.EstimatedSeconds, b.EstimatedSeconds, c.EstimatedSeconds = 10, 20, 30
	for _, j := range []*Job{a, b, c} {
		q.push(j)
	}

	if p := q.position(b); p != 0 {
		t.Errorf("position(b) = %d, want 0", p)
	}
	if p := q.position(c); p != 2 {
		t.Errorf("position(c) = %d, want 2", p)
	}
	if s := q.secondsAhead(c); s != 30 {
		t.Errorf("secondsAhead(c) = %v, want 30", s)
	}
	if top := q.ordered(2); len(top) != 2 || top[0] != b || top[1] != a {
		t.Errorf("ordered(2) unexpected: %v", top)
	}

	if !q.remove(a) {
		t.Fatal("remove(a) = false")
	}
	if q.remove(a) {
		t.Error("second remove(a) should be false")
	}
	if p := q.position(c); p != 1 {
		t.Errorf("position(c) after remove = %d, want 1", p)
	}
	if q.peek() != b {
		t.Errorf("peek = %v, want b", q.peek())
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
}
