package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rag:qemb:"

// RedisCache 多实例共享的查询向量缓存，值为小端 float64 序列
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache 创建 redis 缓存
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get 读取缓存；redis 错误按未命中处理
func (c *RedisCache) Get(ctx context.Context, key string) ([]float64, bool) {
	b, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	vec, err := decodeVector(b)
	if err != nil {
		return nil, false
	}
	return vec, true
}

// Set 写入缓存
func (c *RedisCache) Set(ctx context.Context, key string, vec []float64) error {
	if err := c.client.Set(ctx, redisKeyPrefix+key, encodeVector(vec), c.ttl).Err(); err != nil {
		return fmt.Errorf("写入查询向量缓存失败: %w", err)
	}
	return nil
}

// Close 关闭客户端
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("invalid cached vector length %d", len(b))
	}
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out, nil
}
