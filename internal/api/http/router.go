package http

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/hertz-contrib/jwt"

	"rag-indexer/internal/api/http/middleware"
)

// APIPrefix 业务路由前缀
const APIPrefix = "/api/v1"

// multipartOverhead multipart 边界与表单字段的余量
const multipartOverhead = 1 << 20

// MaxBodySize 请求体上限：取两类上传上限的较大者再加 multipart 余量
func MaxBodySize(maxUploadMB, maxSampleMB int) int {
	return max(maxUploadMB, maxSampleMB)<<20 + multipartOverhead
}

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	audit      *middleware.AuditMiddleware
	jwt        *jwt.HertzJWTMiddleware
	metrics    bool
	maxBody    int
	global     []app.HandlerFunc
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware, audit *middleware.AuditMiddleware) *Router {
	return &Router{handler: handler, middleware: mw, audit: audit, metrics: true}
}

// SetJWT 启用 /admin 路由组鉴权
func (r *Router) SetJWT(jwtAuth *jwt.HertzJWTMiddleware) {
	r.jwt = jwtAuth
}

// Use 追加全局中间件，需在 Build 之前调用
func (r *Router) Use(handlers ...app.HandlerFunc) {
	r.global = append(r.global, handlers...)
}

// SetMaxBodySize 覆盖 Hertz 默认的 4MB 请求体上限，单位字节
func (r *Router) SetMaxBodySize(n int) {
	r.maxBody = n
}

// SetMetrics 是否暴露 /metrics
func (r *Router) SetMetrics(enable bool) {
	r.metrics = enable
}

// Build 创建 Hertz 实例并注册路由，addr 如 ":8080"
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	base := []config.Option{server.WithHostPorts(addr)}
	if r.maxBody > 0 {
		base = append(base, server.WithMaxRequestBodySize(r.maxBody))
	}
	opts = append(base, opts...)
	h := server.Default(opts...)
	h.Use(r.global...)
	h.Use(r.middleware.RequestLogger(), r.middleware.CORS())

	h.GET("/", r.handler.Root)
	h.GET("/healthcheck", r.handler.Healthcheck)
	h.GET("/health", r.handler.HealthCheck)
	if r.metrics {
		h.GET("/metrics", r.handler.Metrics)
	}

	api := h.Group(APIPrefix)

	rag := api.Group("/rag")
	{
		rag.POST("/documents", r.handler.UploadDocument)
		rag.GET("/documents", r.handler.ListDocuments)
		rag.GET("/documents/:id", r.handler.GetDocument)
		rag.DELETE("/documents/:id", r.handler.DeleteDocument)
		rag.POST("/documents/:id/reindex", r.handler.ReindexDocument)
		rag.POST("/search", r.handler.Search)
		rag.POST("/query", r.handler.Query)
	}

	admin := api.Group("/admin")
	if r.audit != nil {
		admin.Use(r.audit.AuditAccess())
	}
	if r.jwt != nil {
		admin.POST("/login", r.jwt.LoginHandler)
		admin.Use(r.jwt.MiddlewareFunc())
	}
	{
		admin.POST("/documents", r.handler.UploadSample)
		admin.GET("/documents", r.handler.ListSamples)
		admin.DELETE("/documents/:id", r.handler.DeleteSample)
		admin.DELETE("/documents", r.handler.DeleteAllSamples)
	}
	return h
}
