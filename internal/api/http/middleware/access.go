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

package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"ingest-scheduler/pkg/log"
)

// AccessLog 记录每次 API 访问：操作类型、资源、状态码与耗时
func AccessLog(logger *log.Logger) app.HandlerFunc {
	if logger == nil {
		logger = log.NewNop()
	}
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()

		c.Next(ctx)

		method := string(c.Method())
		path := string(c.Path())
		resourceType, resourceID := extractResource(path)
		status := c.Response.StatusCode()
		args := []any{
			"action", determineAction(method, path),
			"resource_type", resourceType,
			"resource_id", resourceID,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if status >= 500 {
			logger.Error("api access", args...)
			return
		}
		logger.Debug("api access", args...)
	}
}

// determineAction 根据 HTTP 方法和路径确定操作类型
func determineAction(method string, path string) string {
	switch {
	case strings.HasPrefix(path, "/api/ingest/jobs"):
		switch method {
		case "POST":
			return "submit_job"
		case "GET":
			return "view_job"
		case "DELETE":
			return "cancel_job"
		}
	case strings.HasPrefix(path, "/api/ingest/submissions"):
		return "view_submission"
	case strings.HasPrefix(path, "/api/ingest/queue"):
		return "view_queue"
	case strings.HasPrefix(path, "/api/system"):
		return "view_resources"
	case path == "/api/health":
		return "health"
	case path == "/metrics":
		return "metrics"
	}
	return "unknown"
}

// extractResource 从路径提取资源类型和 ID
func extractResource(path string) (resourceType string, resourceID string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	// /api/ingest/jobs/:id -> resourceType=job, resourceID=:id
	if len(parts) >= 4 && parts[1] == "ingest" {
		switch parts[2] {
		case "jobs":
			return "job", parts[3]
		case "submissions":
			return "submission", parts[3]
		}
	}
	if len(parts) >= 3 && parts[1] == "ingest" {
		return strings.TrimSuffix(parts[2], "s"), ""
	}

	return "unknown", ""
}
