package vector

import (
	"context"
)

// Store 向量存储接口；Upsert 按 ID 覆盖写入，Delete 对不存在的 ID 静默忽略
type Store interface {
	// Create 创建向量索引，已存在时返回 ErrIndexExists
	Create(ctx context.Context, index *Index) error
	// Upsert 按 ID 写入或覆盖向量
	Upsert(ctx context.Context, indexName string, vectors []*Vector) error
	// Search 相似度检索，结果按得分降序
	Search(ctx context.Context, indexName string, query []float64, options *SearchOptions) ([]*SearchResult, error)
	// Delete 按 ID 删除向量
	Delete(ctx context.Context, indexName string, ids []string) error
	// DeleteByFilter 删除元数据匹配 filter 的全部向量，返回删除数量
	DeleteByFilter(ctx context.Context, indexName string, filter Filter) (int, error)
	// ListIndexes 列出所有索引
	ListIndexes(ctx context.Context) ([]string, error)
	// Ping 检查后端可用
	Ping(ctx context.Context) error
	// Close 关闭存储连接
	Close() error
}

// Index 向量索引
type Index struct {
	Name      string `json:"name"`      // 索引名称
	Dimension int    `json:"dimension"` // 向量维度
	Distance  string `json:"distance"`  // cosine | euclidean
	// FilterFields 可用于过滤的元数据字段（redis 后端建 TAG 字段）
	FilterFields []string `json:"filter_fields"`
}

// Vector 向量数据
type Vector struct {
	ID       string            `json:"id"`       // 向量唯一标识
	Values   []float64         `json:"values"`   // 向量值
	Metadata map[string]string `json:"metadata"` // 向量元数据
}

// Filter 元数据过滤：每个 key 的取值须落在给定集合内，多个 key 之间为 AND
type Filter map[string][]string

// SearchOptions 搜索选项
type SearchOptions struct {
	TopK      int     `json:"top_k"`     // 返回前 K 个结果
	Filter    Filter  `json:"filter"`    // 元数据过滤
	Threshold float64 `json:"threshold"` // 相似度阈值（得分 >= Threshold）
}

// SearchResult 搜索结果
type SearchResult struct {
	ID       string            `json:"id"`       // 向量唯一标识
	Score    float64           `json:"score"`    // 相似度得分
	Metadata map[string]string `json:"metadata"` // 向量元数据
}
