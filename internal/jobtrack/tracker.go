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
	"fmt"
	"strings"
	"time"

	"ingest-scheduler/pkg/log"
)

// Record 外部可见的 job 状态记录；调度器本身不持久化，进程重启后以此为准
type Record struct {
	JobID        string    `json:"job_id"`
	BatchID      string    `json:"batch_id"`
	SubmissionID string    `json:"submission_id"`
	State        string    `json:"state"`
	Priority     int       `json:"priority"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Tracker job 状态存储；Record 为 upsert，按迁移发生顺序调用
type Tracker interface {
	Record(ctx context.Context, r Record) error
	// Get 不存在时返回 errors.ErrNotFound
	Get(ctx context.Context, jobID string) (*Record, error)
	// ListSubmission 返回同一次提交产生的全部 job，按 job id 排序
	ListSubmission(ctx context.Context, submissionID string) ([]Record, error)
	Close() error
}

// RedisOptions Redis 存储参数
type RedisOptions struct {
	Addr     string
	DB       int
	Password string
	Channel  string
	TTL      time.Duration
}

// Config 存储选择
type Config struct {
	Type    string // memory | postgres | redis
	DSN     string
	Migrate bool
	Redis   RedisOptions
}

// NewTracker 按配置创建存储；postgres 且 Migrate=true 时先执行内嵌迁移
func NewTracker(ctx context.Context, cfg Config, logger *log.Logger) (Tracker, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemoryTracker(), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("jobtrack.type=postgres 时 jobtrack.dsn 必填")
		}
		if cfg.Migrate {
			if err := Migrate(cfg.DSN); err != nil {
				return nil, err
			}
			logger.Info("ingest_jobs 迁移完成")
		}
		return NewPgTracker(ctx, cfg.DSN)
	case "redis":
		return NewRedisTracker(ctx, cfg.Redis)
	}
	return nil, fmt.Errorf("unsupported jobtrack type: %s", cfg.Type)
}
