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
	"fmt"
	"strings"
	"time"

	"ingest-scheduler/internal/scheduler"
	"ingest-scheduler/pkg/log"
)

// Config 执行器配置
type Config struct {
	Type         string // noop | remote
	Endpoint     string
	Token        string
	Timeout      time.Duration // 单次 HTTP 请求超时
	PollInterval time.Duration
}

// New 按配置创建执行器
func New(cfg Config, logger *log.Logger) (scheduler.Executor, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "noop":
		return &Noop{}, nil
	case "remote":
		return NewRemote(cfg, logger)
	}
	return nil, fmt.Errorf("unsupported executor type: %s", cfg.Type)
}
