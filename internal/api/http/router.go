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
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"ingest-scheduler/internal/api/http/middleware"
	"ingest-scheduler/pkg/log"
)

// Router HTTP 路由器
type Router struct {
	handler     *Handler
	middleware  *middleware.Middleware
	logger      *log.Logger
	extra       []app.HandlerFunc
	submitRPS   float64
	submitBurst int
	maxBody     int
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	if mw == nil {
		mw = middleware.NewMiddleware()
	}
	return &Router{
		handler:    handler,
		middleware: mw,
		logger:     log.NewNop(),
	}
}

// SetLogger 访问日志使用的 logger
func (r *Router) SetLogger(l *log.Logger) {
	if l != nil {
		r.logger = l
	}
}

// SetSubmitLimit 提交接口限流；rps<=0 不限流
func (r *Router) SetSubmitLimit(rps float64, burst int) {
	r.submitRPS = rps
	r.submitBurst = burst
}

// SetMaxBodyBytes 请求体上限（multipart 上传）；<=0 使用 hertz 默认值
func (r *Router) SetMaxBodyBytes(n int) {
	r.maxBody = n
}

// Use 追加全局中间件（如链路追踪），须在 Build 之前调用
func (r *Router) Use(mw ...app.HandlerFunc) {
	r.extra = append(r.extra, mw...)
}

// Build 创建 hertz 服务并注册路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	all := []config.Option{server.WithHostPorts(addr)}
	if r.maxBody > 0 {
		all = append(all, server.WithMaxRequestBodySize(r.maxBody))
	}
	all = append(all, opts...)
	h := server.Default(all...)
	r.setupRoutes(h)
	return h
}

func (r *Router) setupRoutes(h *server.Hertz) {
	if len(r.extra) > 0 {
		h.Use(r.extra...)
	}
	h.Use(middleware.AccessLog(r.logger), r.middleware.CORS())

	// 健康检查与指标不做认证
	h.GET("/api/health", r.handler.HealthCheck)
	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api", r.middleware.Auth())

	ingest := api.Group("/ingest")
	{
		ingest.POST("/jobs", r.middleware.RateLimit(r.submitRPS, r.submitBurst), r.handler.SubmitJobs)
		ingest.GET("/jobs/:id", r.handler.GetJob)
		ingest.DELETE("/jobs/:id", r.handler.CancelJob)
		ingest.GET("/queue", r.handler.GetQueue)
		ingest.GET("/submissions/:id", r.handler.GetSubmission)
	}

	system := api.Group("/system")
	{
		system.GET("/resources", r.handler.SystemResources)
	}
}
