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

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"rag-indexer/internal/api/http"
	"rag-indexer/internal/api/http/middleware"
	"rag-indexer/internal/app"
	"rag-indexer/pkg/log"
)

// App API 应用（装配 HTTP Router、Handler、Middleware）
type App struct {
	bootstrap *app.Bootstrap
	router    *http.Router
	hertz     *server.Hertz
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	if bootstrap == nil {
		return nil, fmt.Errorf("bootstrap 为空")
	}
	handler := http.NewHandler(bootstrap.Documents, bootstrap.Search, bootstrap.Ask, bootstrap.Samples, bootstrap.Health)
	router := http.NewRouter(handler, middleware.NewMiddleware(bootstrap.Logger), middleware.NewAuditMiddleware(bootstrap.Logger))

	cfg := bootstrap.Config
	router.SetMetrics(cfg.Monitoring.Prometheus.Enable)
	if admin := cfg.API.Admin; admin.JWTKey != "" {
		jwtAuth, err := middleware.NewJWTAuth([]byte(admin.JWTKey), admin.JWTTimeout, admin.JWTTimeout, admin.Username, admin.Password)
		if err != nil {
			return nil, fmt.Errorf("JWT 初始化失败: %w", err)
		}
		router.SetJWT(jwtAuth)
		bootstrap.Logger.Info("admin JWT 认证已启用")
	} else {
		bootstrap.Logger.Warn("未配置 api.admin.jwt_key，/admin 路由不做认证")
	}
	return &App{bootstrap: bootstrap, router: router}, nil
}

// Run 启动 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	a.bootstrap.Logger.Info("API 服务启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 日志配置对齐
	logCfg := &log.Config{Level: a.bootstrap.Config.Log.Level, File: a.bootstrap.Config.Log.File}
	output, err := logCfg.Output()
	if err != nil {
		return err
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(logCfg.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	apiCfg := a.bootstrap.Config.API
	a.router.SetMaxBodySize(http.MaxBodySize(apiCfg.MaxUploadMB, apiCfg.MaxSampleMB))

	// 全局 TracerProvider 由 bootstrap 初始化，这里只挂 Hertz server 侧 span
	if a.bootstrap.Config.Monitoring.Tracing.Enable {
		tracerOpt, cfg := hertztracing.NewServerTracer()
		a.router.Use(hertztracing.ServerMiddleware(cfg))
		a.hertz = a.router.Build(addr, tracerOpt)
		a.bootstrap.Logger.Info("链路追踪已启用", "service_name", a.bootstrap.Config.Monitoring.Tracing.ServiceName)
	} else {
		a.hertz = a.router.Build(addr)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	return a.bootstrap.Close(ctx)
}
