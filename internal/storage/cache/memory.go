package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultSize = 1000
	DefaultTTL  = 10 * time.Minute
)

// MemoryCache 进程内 LRU 缓存，条目按 TTL 过期
type MemoryCache struct {
	lru *expirable.LRU[string, []float64]
}

// NewMemoryCache 创建内存缓存；size/ttl 非正时使用默认值
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{lru: expirable.NewLRU[string, []float64](size, nil, ttl)}
}

// Get 读取缓存
func (c *MemoryCache) Get(ctx context.Context, key string) ([]float64, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return append([]float64(nil), v...), true
}

// Set 写入缓存
func (c *MemoryCache) Set(ctx context.Context, key string, vec []float64) error {
	c.lru.Add(key, append([]float64(nil), vec...))
	return nil
}

// Len 当前条目数
func (c *MemoryCache) Len() int { return c.lru.Len() }

// Close 清空缓存
func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}
