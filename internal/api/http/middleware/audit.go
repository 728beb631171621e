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
	"github.com/hertz-contrib/jwt"

	"rag-indexer/pkg/log"
)

// AuditMiddleware 管理接口访问审计
type AuditMiddleware struct {
	logger *log.Logger
}

// NewAuditMiddleware 创建审计中间件
func NewAuditMiddleware(logger *log.Logger) *AuditMiddleware {
	if logger == nil {
		logger = log.Nop()
	}
	return &AuditMiddleware{logger: logger.Component("audit")}
}

// AuditAccess 记录 /admin 下的每次访问；jwt 启用时附带操作者
func (a *AuditMiddleware) AuditAccess() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)

		method, path := string(c.Method()), string(c.Path())
		resourceType, resourceID := extractResource(path)
		a.logger.InfoContext(ctx, "admin access",
			"log_type", "audit",
			"actor", actorOf(c),
			"action", determineAction(method, path),
			"resource_type", resourceType,
			"resource_id", resourceID,
			"success", c.Response.StatusCode() < 400,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func actorOf(c *app.RequestContext) string {
	if v, ok := c.Get(IdentityKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if claims, ok := c.Get("JWT_PAYLOAD"); ok {
		if m, ok := claims.(jwt.MapClaims); ok {
			if s, ok := m[IdentityKey].(string); ok {
				return s
			}
		}
	}
	return "anonymous"
}

// determineAction 根据 HTTP 方法和路径确定操作类型
func determineAction(method string, path string) string {
	if strings.HasSuffix(path, "/login") {
		return "login"
	}
	if !strings.Contains(path, "/documents") {
		return "unknown"
	}
	_, id := extractResource(path)
	switch method {
	case "GET":
		return "list_samples"
	case "POST":
		return "upload_sample"
	case "DELETE":
		if id == "" {
			return "delete_all_samples"
		}
		return "delete_sample"
	}
	return "unknown"
}

// extractResource 从路径提取资源类型和 ID
func extractResource(path string) (resourceType string, resourceID string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "documents" {
			if i+1 < len(parts) {
				return "document", parts[i+1]
			}
			return "document", ""
		}
	}
	return "unknown", ""
}
