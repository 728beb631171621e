package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// EmbeddingCache 查询向量缓存：同一模型下相同 query 文本复用向量。
// 缓存失效或后端不可用只影响性能，Get 失败按未命中处理。
type EmbeddingCache interface {
	// Get 命中返回向量副本
	Get(ctx context.Context, key string) ([]float64, bool)
	// Set 写入向量
	Set(ctx context.Context, key string, vec []float64) error
	// Close 关闭缓存连接
	Close() error
}

// Key 由模型名与 query 文本派生缓存 key
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
