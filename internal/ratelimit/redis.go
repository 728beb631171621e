package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "rag-indexer/pkg/errors"
)

const redisKeyPrefix = "rag:ratelimit:"

// slidingWindowScript 在一个脚本内完成清理、计数与记录，保证多实例下原子
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count >= max then
  return -1
end
redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
return max - count - 1
`)

// RedisLimiter 基于有序集合的滑动窗口，多实例共享计数
type RedisLimiter struct {
	client redis.UniversalClient
	max    int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter 创建 redis 限流器
func NewRedisLimiter(client redis.UniversalClient, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: max, window: window, now: time.Now}
}

// CheckAndRecord 见 Limiter
func (l *RedisLimiter) CheckAndRecord(ctx context.Context, key string) (int, error) {
	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{redisKeyPrefix + key},
		l.now().UnixMilli(), l.window.Milliseconds(), l.max, uuid.NewString(),
	).Int()
	if err != nil {
		return 0, apperrors.External("rate_limiter", fmt.Errorf("sliding window script: %w", err))
	}
	if res < 0 {
		return 0, apperrors.RateLimit(l.window)
	}
	return res, nil
}
