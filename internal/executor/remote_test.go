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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest-scheduler/internal/analyzer"
	"ingest-scheduler/internal/scheduler"
)

// pipelineServer 模拟外部管线：每次 GET 依次返回 statuses 中的下一个状态
type pipelineServer struct {
	mu        sync.Mutex
	statuses  []task
	polls     int
	submitted scheduler.Payload
	auth      string
	deleted   atomic.Bool
	submitErr int
}

func (s *pipelineServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == tasksPath:
		s.auth = r.Header.Get("Authorization")
		if s.submitErr != 0 {
			w.WriteHeader(s.submitErr)
			_, _ = w.Write([]byte(`{"error":"overloaded"}`))
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&s.submitted)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(task{TaskID: "t-1", Status: "queued"})
	case r.Method == http.MethodGet && r.URL.Path == tasksPath+"/t-1":
		st := task{TaskID: "t-1", Status: "running"}
		if s.polls < len(s.statuses) {
			st = s.statuses[s.polls]
		}
		s.polls++
		_ = json.NewEncoder(w).Encode(st)
	case r.Method == http.MethodDelete && r.URL.Path == tasksPath+"/t-1":
		s.deleted.Store(true)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newRemote(t *testing.T, srv *httptest.Server) *Remote {
	t.Helper()
	r, err := NewRemote(Config{Endpoint: srv.URL, Token: "secret", PollInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	return r
}

func TestRemote_CompletesAndReportsProgress(t *testing.T) {
	ps := &pipelineServer{statuses: []task{
		{TaskID: "t-1", Status: "running", Progress: "parsing"},
		{TaskID: "t-1", Status: "running", Progress: "parsing"},
		{TaskID: "t-1", Status: "running", Progress: "embedding"},
		{TaskID: "t-1", Status: "completed", Message: "3 documents indexed"},
	}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	var mu sync.Mutex
	var progress []string
	ctx := scheduler.WithProgressFunc(context.Background(), func(msg string) {
		mu.Lock()
		progress = append(progress, msg)
		mu.Unlock()
	})

	res, err := newRemote(t, srv).Execute(ctx, scheduler.Payload{JobID: "job-1", SubmissionID: "sub-1"})
	require.NoError(t, err)
	assert.Equal(t, "3 documents indexed", res.Message)
	assert.Equal(t, []string{"parsing", "embedding"}, progress)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	assert.Equal(t, "job-1", ps.submitted.JobID)
	assert.Equal(t, "Bearer secret", ps.auth)
}

func TestRemote_PipelineFailure(t *testing.T) {
	ps := &pipelineServer{statuses: []task{{TaskID: "t-1", Status: "failed", Error: "corrupt pdf"}}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	_, err := newRemote(t, srv).Execute(context.Background(), scheduler.Payload{JobID: "job-1"})
	require.Error(t, err)
	assert.Equal(t, "corrupt pdf", err.Error())
}

func TestRemote_SubmitRejected(t *testing.T) {
	ps := &pipelineServer{submitErr: http.StatusServiceUnavailable}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	_, err := newRemote(t, srv).Execute(context.Background(), scheduler.Payload{JobID: "job-1"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "status 503"), err.Error())
}

func TestRemote_CancelDeletesTask(t *testing.T) {
	ps := &pipelineServer{}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := newRemote(t, srv).Execute(ctx, scheduler.Payload{JobID: "job-1"})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, ps.deleted.Load())
}

func TestRemote_PollFailuresGiveUp(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(task{TaskID: "t-9", Status: "queued"})
			return
		}
		polls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newRemote(t, srv).Execute(context.Background(), scheduler.Payload{JobID: "job-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "t-9")
	assert.Equal(t, int32(maxPollFailures), polls.Load())
}

func TestNewRemote_RequiresEndpoint(t *testing.T) {
	_, err := NewRemote(Config{}, nil)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	res, err := (&Noop{}).Execute(context.Background(), scheduler.Payload{Units: make([]analyzer.WorkUnit, 2)})
	require.NoError(t, err)
	assert.Contains(t, res.Message, "2 units")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&Noop{Delay: time.Minute}).Execute(ctx, scheduler.Payload{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	e, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Noop{}, e)

	e, err = New(Config{Type: "remote", Endpoint: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Remote{}, e)

	_, err = New(Config{Type: "grpc"}, nil)
	assert.Error(t, err)
}
