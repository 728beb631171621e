package http

import (
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-indexer/internal/api/http/middleware"
)

func withJWT(t *testing.T) serverOption {
	return func(r *Router) {
		mw, err := middleware.NewJWTAuth([]byte("test-key"), time.Hour, time.Hour, "admin", "s3cret")
		require.NoError(t, err)
		r.SetJWT(mw)
	}
}

func TestRouter_AdminWithoutJWT(t *testing.T) {
	ts := newTestServer(t)

	w := ts.upload("/api/v1/admin/documents", map[string]string{}, "guide.md", "text/markdown", passages("g"))
	require.Equal(t, 200, w.Result().StatusCode(), string(w.Result().Body()))
	body := decode(t, w)
	assert.Equal(t, "general", body["category"])
	assert.Equal(t, "indexed", body["status"])
	id := body["id"].(string)

	// 样例对所有会话可见
	w = ts.do("GET", "/api/v1/rag/documents?session_id="+sessionB, nil)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = ts.do("GET", "/api/v1/admin/documents", nil)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = ts.do("DELETE", "/api/v1/admin/documents/"+id, nil)
	require.Equal(t, 200, w.Result().StatusCode())
	assert.Equal(t, id, decode(t, w)["id"])

	w = ts.do("DELETE", "/api/v1/admin/documents", nil)
	assert.Equal(t, float64(0), decode(t, w)["deleted_count"])
}

func TestRouter_AdminDeleteRejectsUserDocument(t *testing.T) {
	ts := newTestServer(t)
	w := ts.upload("/api/v1/rag/documents", map[string]string{"session_id": sessionA}, "notes.txt", "text/plain", passages("a"))
	id := decode(t, w)["id"].(string)

	w = ts.do("DELETE", "/api/v1/admin/documents/"+id, nil)
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestRouter_AdminCategory(t *testing.T) {
	ts := newTestServer(t)
	w := ts.upload("/api/v1/admin/documents", map[string]string{"category": "tables"}, "prices.csv", "text/csv", []byte("sku,price\n"+string(passages("1"))))
	require.Equal(t, 200, w.Result().StatusCode(), string(w.Result().Body()))
	assert.Equal(t, "tables", decode(t, w)["category"])
}

func TestRouter_AdminJWT(t *testing.T) {
	ts := newTestServer(t, withJWT(t))

	w := ts.do("GET", "/api/v1/admin/documents", nil)
	assert.Equal(t, 401, w.Result().StatusCode())

	w = ts.doJSON("POST", "/api/v1/admin/login", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, 401, w.Result().StatusCode())

	w = ts.doJSON("POST", "/api/v1/admin/login", map[string]string{"username": "admin", "password": "s3cret"})
	require.Equal(t, 200, w.Result().StatusCode(), string(w.Result().Body()))
	token, ok := decode(t, w)["token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)

	auth := ut.Header{Key: "Authorization", Value: "Bearer " + token}
	w = ts.do("GET", "/api/v1/admin/documents", nil, auth)
	assert.Equal(t, 200, w.Result().StatusCode())

	// 业务路由不受影响
	w = ts.do("GET", "/api/v1/rag/documents?session_id="+sessionA, nil)
	assert.Equal(t, 200, w.Result().StatusCode())
}

func TestRouter_MetricsDisabled(t *testing.T) {
	ts := newTestServer(t, func(r *Router) { r.SetMetrics(false) })
	w := ts.do("GET", "/metrics", nil)
	assert.Equal(t, 404, w.Result().StatusCode())
}

func TestRouter_CORSHeaders(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do("GET", "/healthcheck", nil)
	assert.Equal(t, 200, w.Result().StatusCode())
	assert.Equal(t, "*", string(w.Result().Header.Peek("Access-Control-Allow-Origin")))
}
