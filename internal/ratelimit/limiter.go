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

// Package ratelimit 滑动窗口准入控制，按任意字符串 key（如 "search:<session>"）计数
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"rag-indexer/internal/storage/redisconn"
	"rag-indexer/pkg/config"
	apperrors "rag-indexer/pkg/errors"
	"rag-indexer/pkg/log"
	"rag-indexer/pkg/metrics"
)

const (
	DefaultMaxRequests = 100
	DefaultWindow      = 60 * time.Second
)

// Limiter 滑动窗口限流
type Limiter interface {
	// CheckAndRecord 窗口内计数未达上限时记录本次请求并返回剩余额度；
	// 已达上限时不记录，返回 RateLimit 错误（建议重试间隔为窗口长度）
	CheckAndRecord(ctx context.Context, key string) (int, error)
}

// New 根据配置创建限流器：memory | redis；拒绝时记录安全日志与指标
func New(cfg config.RateLimitConfig, logger *log.Logger) (Limiter, error) {
	if cfg.Requests <= 0 {
		cfg.Requests = DefaultMaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	var backend Limiter
	switch cfg.Backend {
	case "", "memory":
		backend = NewMemoryLimiter(cfg.Requests, cfg.Window)
	case "redis":
		backend = NewRedisLimiter(redisconn.NewClient(cfg.Addr, cfg.Password, cfg.DB), cfg.Requests, cfg.Window)
	default:
		return nil, fmt.Errorf("不支持的限流后端: %s", cfg.Backend)
	}
	return Observe(backend, cfg.Requests, cfg.Window, logger), nil
}

// Observe 包装限流器：拒绝时写安全日志并计数
func Observe(l Limiter, max int, window time.Duration, logger *log.Logger) Limiter {
	if logger == nil {
		logger = log.Nop()
	}
	return &observed{next: l, max: max, window: window, logger: logger}
}

type observed struct {
	next   Limiter
	max    int
	window time.Duration
	logger *log.Logger
}

func (o *observed) CheckAndRecord(ctx context.Context, key string) (int, error) {
	remaining, err := o.next.CheckAndRecord(ctx, key)
	if err != nil && apperrors.KindOf(err) == apperrors.KindRateLimit {
		metrics.RateLimitedTotal.WithLabelValues(operationOf(key)).Inc()
		o.logger.Security(ctx, "Rate limit exceeded",
			"key", key,
			"limit", o.max,
			"window_seconds", int(o.window.Seconds()),
		)
	}
	return remaining, err
}

// operationOf 取 key 中第一个冒号前的部分作为操作名
func operationOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

// MemoryLimiter 进程内滑动窗口；检查与记录在同一把锁内完成
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string][]time.Time
	max       int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryLimiter 创建进程内限流器
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string][]time.Time),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// CheckAndRecord 见 Limiter
func (l *MemoryLimiter) CheckAndRecord(ctx context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	l.sweep(now, cutoff)
	// 惰性清理窗口外的记录
	kept := l.buckets[key][:0]
	for _, ts := range l.buckets[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.max {
		if len(kept) == 0 {
			delete(l.buckets, key)
		} else {
			l.buckets[key] = kept
		}
		return 0, apperrors.RateLimit(l.window)
	}
	l.buckets[key] = append(kept, now)
	return l.max - len(kept) - 1, nil
}

// sweep 每个窗口最多一次，删除窗口内已无记录的 key；调用方持有锁
func (l *MemoryLimiter) sweep(now, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, stamps := range l.buckets {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.buckets, key)
		}
	}
}
