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

package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewStore_Providers(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		wantErr     bool
		errContains string
	}{
		{name: "default", provider: "", wantErr: false},
		{name: "memory", provider: "memory", wantErr: false},
		{name: "env", provider: "env", wantErr: false},
		{name: "file", provider: "file", wantErr: false},
		{name: "unknown provider", provider: "unknown", wantErr: true, errContains: "unsupported secret provider"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(Config{Provider: tc.provider})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, want contains %q", err.Error(), tc.errContains)
				}
				if store != nil {
					t.Fatalf("store should be nil when error occurs")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store == nil {
				t.Fatalf("store should not be nil")
			}
		})
	}
}

func TestStoresBasicContract(t *testing.T) {
	ctx := context.Background()
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"env":    NewEnvStore(),
		"file":   NewFileStore(t.TempDir()),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, "jobtrack/test-dsn", "value"); err != nil {
				t.Fatalf("set secret failed: %v", err)
			}
			got, err := s.Get(ctx, "jobtrack/test-dsn")
			if err != nil {
				t.Fatalf("get secret failed: %v", err)
			}
			if got != "value" {
				t.Fatalf("get secret = %q, want value", got)
			}
			if err := s.Delete(ctx, "jobtrack/test-dsn"); err != nil {
				t.Fatalf("delete secret failed: %v", err)
			}
			if _, err := s.Get(ctx, "jobtrack/test-dsn"); err == nil {
				t.Fatalf("expected error after delete")
			}
		})
	}
}

func TestEnvStore_KeyMapping(t *testing.T) {
	t.Setenv("JOBTRACK_REDIS_PASSWORD", "s3cret")
	got, err := NewEnvStore().Get(context.Background(), "jobtrack/redis.password")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("Get = %q", got)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pg_dsn"), []byte("postgres://u:p@db/ingest\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(dir)

	got, err := Resolve(ctx, store, "secret://pg_dsn")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "postgres://u:p@db/ingest" {
		t.Fatalf("Resolve = %q", got)
	}

	plain, err := Resolve(ctx, store, "postgres://literal")
	if err != nil || plain != "postgres://literal" {
		t.Fatalf("plain value should pass through, got %q %v", plain, err)
	}

	if _, err := Resolve(ctx, store, "secret://missing"); err == nil {
		t.Fatal("expected error for missing secret")
	}
	if _, err := Resolve(ctx, store, "secret://"); err == nil {
		t.Fatal("expected error for empty reference")
	}
}
