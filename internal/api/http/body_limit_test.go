package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	nethttp "net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxBodySize(t *testing.T) {
	assert.Equal(t, 51<<20, MaxBodySize(10, 50))
	assert.Equal(t, 21<<20, MaxBodySize(20, 5))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// 超过 Hertz 默认 4MB 的上传必须到达 handler，由上传策略给出 400
func TestRouter_LargeUploadReachesUploadPolicy(t *testing.T) {
	_, r := newTestRouter(t)
	r.SetMaxBodySize(MaxBodySize(10, 50))
	addr := freeAddr(t)
	h := r.Build(addr)
	go func() { _ = h.Run() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 3*time.Second, 20*time.Millisecond)

	content := bytes.Repeat([]byte("a"), 6<<20)
	body, formType := multipartBody(map[string]string{"session_id": sessionA}, "big.txt", "text/plain", content)
	resp, err := nethttp.Post("http://"+addr+"/api/v1/rag/documents", formType, bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	assert.Contains(t, out["error"], "too large")
}
