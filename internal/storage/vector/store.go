package vector

import (
	"fmt"

	"rag-indexer/internal/storage/redisconn"
	"rag-indexer/pkg/config"
)

// NewStore 根据配置创建向量存储：memory | hnsw | redis
func NewStore(cfg config.VectorConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "hnsw":
		return NewHNSWStore(), nil
	case "redis":
		return NewRedisStore(redisconn.NewClient(cfg.Addr, cfg.Password, cfg.DB)), nil
	default:
		return nil, fmt.Errorf("不支持的向量存储类型: %s", cfg.Type)
	}
}
