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

package cache

import (
	"fmt"

	"rag-indexer/internal/storage/redisconn"
	"rag-indexer/pkg/config"
)

// NewCache 根据配置创建查询向量缓存：memory | redis
func NewCache(cfg config.CacheConfig) (EmbeddingCache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryCache(cfg.Size, cfg.TTL), nil
	case "redis":
		return NewRedisCache(redisconn.NewClient(cfg.Addr, cfg.Password, cfg.DB), cfg.TTL), nil
	default:
		return nil, fmt.Errorf("不支持的缓存类型: %s", cfg.Type)
	}
}
