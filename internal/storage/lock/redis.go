package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rag:lease:"

// releaseScript 仅当值仍为本持有者 token 时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的分布式租约
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker 创建 redis 租约管理
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire 获取租约
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, redisKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("获取租约失败: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrHeld)
	}
	return &redisLease{client: l.client, key: key, token: token}, nil
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (r *redisLease) Key() string { return r.key }

func (r *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, r.client, []string{redisKeyPrefix + r.key}, r.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("释放租约失败: %w", err)
	}
	return nil
}
