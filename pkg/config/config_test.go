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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 9000
  host: "127.0.0.1"
scheduler:
  max_concurrent_jobs: 5
  poll_interval: "500ms"
planner:
  priority:
    simple_member_bonus: 3
log:
  level: "debug"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.Equal(t, 5, cfg.Scheduler.MaxConcurrentJobs)
	assert.Equal(t, "500ms", cfg.Scheduler.PollInterval)
	assert.Equal(t, 3, cfg.Planner.Priority.SimpleMemberBonus)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.Scheduler.MaxConcurrentJobs)
	assert.Equal(t, 100, cfg.Monitor.HistorySize)
	assert.Equal(t, 80.0, cfg.Monitor.Thresholds.MemoryWarning)
	assert.Equal(t, 95.0, cfg.Monitor.Thresholds.MemoryCritical)
	assert.Equal(t, 1500.0, cfg.Planner.MaxBatchMemoryMB)
	assert.Equal(t, 8, cfg.Planner.MaxBatchMembers)
	assert.Equal(t, 100, cfg.Planner.Priority.Base)
	assert.Equal(t, 70.0, cfg.Scheduler.ResumeCPUPercent)
	assert.Equal(t, 80.0, cfg.Scheduler.ResumeMemoryPercent)
	assert.Equal(t, "memory", cfg.JobTrack.Type)
}

func TestLoadConfig_ResolvesEnvReference(t *testing.T) {
	t.Setenv("TEST_INGEST_DSN", "postgres://u:p@localhost/ingest")
	path := writeConfig(t, `
jobtrack:
  type: postgres
  dsn: "${TEST_INGEST_DSN}"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/ingest", cfg.JobTrack.DSN)
}

func TestLoadConfig_ResolvesSecretReference(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "redis_password"), []byte("hunter2\n"), 0o600))
	path := writeConfig(t, `
secrets:
  provider: file
jobtrack:
  type: redis
  redis:
    addr: "localhost:6379"
    password: "secret://redis_password"
`)
	t.Setenv("SECRETS_DIR", dir)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.JobTrack.Redis.Password)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"zero concurrency", func(c *Config) { c.Scheduler.MaxConcurrentJobs = 0 }, false},
		{"inverted memory thresholds", func(c *Config) { c.Monitor.Thresholds.MemoryWarning = 96 }, false},
		{"postgres without dsn", func(c *Config) { c.JobTrack.Type = "postgres" }, false},
		{"unknown tracker", func(c *Config) { c.JobTrack.Type = "mongo" }, false},
		{"redis tracker", func(c *Config) { c.JobTrack.Type = "redis" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, ParseDuration("", 2*time.Second))
	assert.Equal(t, 2*time.Second, ParseDuration("nonsense", 2*time.Second))
	assert.Equal(t, 2*time.Second, ParseDuration("-1s", 2*time.Second))
	assert.Equal(t, 750*time.Millisecond, ParseDuration("750ms", 2*time.Second))
	assert.Equal(t, time.Duration(0), ParseDuration("0", 2*time.Second))
}

func TestLoadConfig_SampleFile(t *testing.T) {
	t.Setenv("INGEST_JOBTRACK_DSN", "")
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "scheduler.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "file", cfg.Storage.Object.Type)
	assert.Equal(t, "noop", cfg.Executor.Type)
	assert.Equal(t, 4, cfg.Planner.HybridGroupSize)
	assert.Equal(t, 60*time.Second, ParseDuration(cfg.Scheduler.CriticalCancelAfter, 0))
}
