package ratelimit

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "rag-indexer/pkg/errors"
	"rag-indexer/pkg/log"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestMemoryLimiter_ThreePerMinute(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(3, 60*time.Second)
	l.now = clock.now

	for want := 2; want >= 0; want-- {
		remaining, err := l.CheckAndRecord(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, want, remaining)
		clock.t = clock.t.Add(time.Second)
	}

	_, err := l.CheckAndRecord(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindRateLimit, apperrors.KindOf(err))
	assert.Equal(t, "Rate limit exceeded. Try again in 60 seconds.", err.Error())

	// 拒绝不计入窗口；窗口滑过第一条记录后恢复
	clock.t = clock.t.Add(58 * time.Second)
	_, err = l.CheckAndRecord(ctx, "k")
	assert.NoError(t, err)
}

func TestMemoryLimiter_AfterWindowElapses(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(3, 60*time.Second)
	l.now = clock.now

	for i := 0; i < 3; i++ {
		_, err := l.CheckAndRecord(ctx, "k")
		require.NoError(t, err)
	}
	_, err := l.CheckAndRecord(ctx, "k")
	require.Error(t, err)

	clock.t = clock.t.Add(61 * time.Second)
	remaining, err := l.CheckAndRecord(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestMemoryLimiter_KeysIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Minute)
	_, err := l.CheckAndRecord(ctx, "search:a")
	require.NoError(t, err)
	_, err = l.CheckAndRecord(ctx, "search:b")
	assert.NoError(t, err)
	_, err = l.CheckAndRecord(ctx, "search:a")
	assert.Error(t, err)
}

func TestMemoryLimiter_DropsIdleKeys(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(3, 60*time.Second)
	l.now = clock.now

	for _, key := range []string{"upload:s1", "upload:s2", "search:s3"} {
		_, err := l.CheckAndRecord(ctx, key)
		require.NoError(t, err)
	}
	assert.Len(t, l.buckets, 3)

	clock.t = clock.t.Add(61 * time.Second)
	_, err := l.CheckAndRecord(ctx, "search:s4")
	require.NoError(t, err)
	assert.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "search:s4")

	zero := NewMemoryLimiter(0, time.Minute)
	_, err = zero.CheckAndRecord(ctx, "k")
	require.Error(t, err)
	assert.Empty(t, zero.buckets)
}

func TestMemoryLimiter_NoOverAdmissionUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(10, time.Minute)
	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.CheckAndRecord(ctx, "shared"); err == nil {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10), admitted)
}

func TestObserve_LogsSecurityEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLoggerWithWriter(&log.Config{Level: "info", Format: "json"}, &buf)
	l := Observe(NewMemoryLimiter(1, time.Minute), 1, time.Minute, logger)

	_, err := l.CheckAndRecord(context.Background(), "upload:s1")
	require.NoError(t, err)
	_, err = l.CheckAndRecord(context.Background(), "upload:s1")
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"log_type":"security"`)
	assert.Contains(t, buf.String(), "upload:s1")
}

func TestOperationOf(t *testing.T) {
	assert.Equal(t, "search", operationOf("search:abc"))
	assert.Equal(t, "plain", operationOf("plain"))
}
