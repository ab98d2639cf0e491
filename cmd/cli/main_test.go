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

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ingest/queue", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"running_count":1,"max_concurrent":3,"queued_count":1,"system_load_level":"low",
			"message":"1 of 3 slots used, 1 queued",
			"top_queue_entries":[{"job_id":"j2","batch_id":"batch-2","priority":120,"position":0,"members":3,"estimated_wait_seconds":14}]}`))
	})
	mux.HandleFunc("/api/ingest/jobs/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		id := strings.TrimPrefix(r.URL.Path, "/api/ingest/jobs/")
		if id == "done" && r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"job already finished"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"job_id": id, "state": "queued"})
	})
	mux.HandleFunc("/api/ingest/jobs", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(r.MultipartForm.File["files"]) != 2 || r.FormValue("mode") != "realtime" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unexpected form"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"submission_id":"s1","job_id":"j1","job_ids":["j1","j2"]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Setenv("INGEST_API_URL", srv.URL)
	return srv
}

func TestRun_Status(t *testing.T) {
	fakeAPI(t)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"status"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr=%s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "1 of 3 slots used, 1 queued") || !strings.Contains(out, "batch-2") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRun_JobAndCancel(t *testing.T) {
	fakeAPI(t)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"job", "j7"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"job_id": "j7"`) {
		t.Fatalf("unexpected output: %s", stdout.String())
	}

	stdout.Reset()
	if code := run([]string{"cancel", "done"}, &stdout, &stderr); code != 1 {
		t.Fatalf("cancel of finished job: exit code %d", code)
	}
	if !strings.Contains(stderr.String(), "job already finished") {
		t.Fatalf("stderr missing api error: %s", stderr.String())
	}
}

func TestRun_Submit(t *testing.T) {
	fakeAPI(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.pdf")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("content"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	var stdout, stderr bytes.Buffer
	if code := run([]string{"submit", "-mode", "realtime", a, b}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "submission_id=s1") || !strings.Contains(stdout.String(), "job_id=j2") {
		t.Fatalf("unexpected output: %s", stdout.String())
	}

	stderr.Reset()
	if code := run([]string{"submit", filepath.Join(dir, "missing.txt")}, &stdout, &stderr); code != 1 {
		t.Fatalf("missing file: exit code %d", code)
	}
}

func TestRun_UsageAndVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"version"}, &stdout, &stderr); code != 0 || !strings.Contains(stdout.String(), version) {
		t.Fatalf("version: code=%d out=%s", code, stdout.String())
	}
	if code := run([]string{"bogus"}, &stdout, &stderr); code != 1 {
		t.Fatalf("unknown command exit code %d", code)
	}
	if code := run([]string{"job"}, &stdout, &stderr); code != 1 {
		t.Fatalf("job without id exit code %d", code)
	}
}

func TestRun_Config(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"config"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "scheduler.max_concurrent_jobs=3") {
		t.Fatalf("unexpected output: %s", stdout.String())
	}
}
