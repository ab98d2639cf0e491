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

package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"ingest-scheduler/internal/api/http"
	"ingest-scheduler/internal/api/http/middleware"
	"ingest-scheduler/internal/app"
	"ingest-scheduler/pkg/log"
)

// App HTTP 服务：对外暴露提交、查询、取消与资源视图，生命周期内持有调度器与资源监控
type App struct {
	bootstrap *app.Bootstrap
	router    *http.Router
	hertz     *server.Hertz
	logFile   *os.File
}

// NewApp 组装 handler 与路由；不启动任何循环
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config

	handler := http.NewHandler(bootstrap.Scheduler, bootstrap.Logger)
	handler.SetMonitor(bootstrap.Monitor)
	handler.SetTracker(bootstrap.Tracker)
	handler.SetObjectStore(bootstrap.ObjectStore)
	maxUpload := int64(cfg.API.MaxUploadMB) << 20
	handler.SetMaxUploadBytes(maxUpload)

	mw := middleware.NewMiddleware()
	if cfg.API.CORS.Enable {
		mw.SetAllowOrigins(cfg.API.CORS.AllowOrigins)
	}
	if cfg.API.AuthToken != "" {
		mw.SetToken(cfg.API.AuthToken)
		bootstrap.Logger.Info("API token 认证已启用")
	}

	router := http.NewRouter(handler, mw)
	router.SetLogger(bootstrap.Logger.With("component", "http"))
	router.SetSubmitLimit(cfg.API.SubmitRPS, cfg.API.SubmitBurst)
	if maxUpload > 0 {
		// multipart 可能包含多个文件，按单文件上限的 4 倍放宽整体请求体
		router.SetMaxBodyBytes(int(maxUpload * 4))
	}

	return &App{
		bootstrap: bootstrap,
		router:    router,
	}, nil
}

// Run 启动资源监控、调度循环与 HTTP 服务，阻塞直到服务退出
func (a *App) Run(ctx context.Context, addr string) error {
	if err := a.setupHertzLogger(); err != nil {
		return err
	}

	var opts []config.Option
	if a.bootstrap.Config.Monitoring.Tracing.Enable {
		tracerOpt, cfg := hertztracing.NewServerTracer()
		opts = append(opts, tracerOpt)
		a.router.Use(hertztracing.ServerMiddleware(cfg))
	}
	a.hertz = a.router.Build(addr, opts...)

	if err := a.bootstrap.Start(ctx); err != nil {
		return err
	}
	a.bootstrap.Logger.Info("API 服务启动", "addr", addr)
	return a.hertz.Run()
}

// setupHertzLogger hertz 框架日志走 slog，与应用日志使用同一级别与输出文件
func (a *App) setupHertzLogger() error {
	logCfg := a.bootstrap.Config.Log
	output := os.Stdout
	if logCfg.File != "" {
		f, err := os.OpenFile(logCfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		a.logFile = f
		output = f
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(logCfg.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))
	return nil
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.hertz != nil {
		err = a.hertz.Shutdown(ctx)
	}
	a.bootstrap.Close(ctx)
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
	return err
}
