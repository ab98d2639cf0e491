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

package http

import (
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"ingest-scheduler/internal/api/http/middleware"
)

func buildRouterForTest(token string) *server.Hertz {
	h := NewHandler(&fakeScheduler{}, nil)
	mw := middleware.NewMiddleware()
	mw.SetToken(token)
	r := NewRouter(h, mw)
	return r.Build(":0")
}

func TestRouter_Routes(t *testing.T) {
	s := buildRouterForTest("")

	for _, path := range []string{"/api/health", "/metrics", "/api/ingest/queue", "/api/ingest/jobs/j1"} {
		w := ut.PerformRequest(s.Engine, "GET", path, noBody())
		if got := w.Result().StatusCode(); got != 200 {
			t.Fatalf("GET %s status = %d, want 200", path, got)
		}
	}
	w := ut.PerformRequest(s.Engine, "GET", "/api/documents", noBody())
	if got := w.Result().StatusCode(); got != 404 {
		t.Fatalf("GET /api/documents status = %d, want 404", got)
	}
}

func TestRouter_AuthExemptsHealth(t *testing.T) {
	s := buildRouterForTest("s3cret")

	w := ut.PerformRequest(s.Engine, "GET", "/api/health", noBody())
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("GET /api/health status = %d, want 200", got)
	}
	w = ut.PerformRequest(s.Engine, "GET", "/api/ingest/queue", noBody())
	if got := w.Result().StatusCode(); got != 401 {
		t.Fatalf("GET /api/ingest/queue status = %d, want 401", got)
	}
	w = ut.PerformRequest(s.Engine, "GET", "/api/ingest/queue", noBody(), ut.Header{Key: "Authorization", Value: "Bearer s3cret"})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("authorized GET /api/ingest/queue status = %d, want 200", got)
	}
}

func TestRouter_SubmitRateLimited(t *testing.T) {
	h := NewHandler(&fakeScheduler{}, nil)
	r := NewRouter(h, nil)
	r.SetSubmitLimit(0.001, 1)
	s := r.Build(":0")

	body := `{"units":[{"name":"a.txt","size_bytes":10}]}`
	w := ut.PerformRequest(s.Engine, "POST", "/api/ingest/jobs", jsonBody(body), jsonHeader)
	if got := w.Result().StatusCode(); got != 202 {
		t.Fatalf("first submit status = %d, want 202", got)
	}
	w = ut.PerformRequest(s.Engine, "POST", "/api/ingest/jobs", jsonBody(body), jsonHeader)
	if got := w.Result().StatusCode(); got != 429 {
		t.Fatalf("second submit status = %d, want 429", got)
	}
}
