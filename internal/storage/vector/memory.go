package vector

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore 内存向量存储实现（精确检索，全量计算相似度）
type MemoryStore struct {
	indexes map[string]*memIndex
	mu      sync.RWMutex
}

type memIndex struct {
	index   *Index
	vectors map[string]*Vector
}

// NewMemoryStore 创建新的内存向量存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		indexes: make(map[string]*memIndex),
	}
}

// Create 创建向量索引
func (s *MemoryStore) Create(ctx context.Context, idx *Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indexes[idx.Name]; exists {
		return fmt.Errorf("%w: %s", ErrIndexExists, idx.Name)
	}
	s.indexes[idx.Name] = &memIndex{
		index:   idx,
		vectors: make(map[string]*Vector),
	}
	return nil
}

func (s *MemoryStore) lookup(indexName string) (*memIndex, error) {
	idx, exists := s.indexes[indexName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, indexName)
	}
	return idx, nil
}

// Upsert 写入或覆盖向量；任一向量维度不符则整批拒绝
func (s *MemoryStore) Upsert(ctx context.Context, indexName string, vectors []*Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.lookup(indexName)
	if err != nil {
		return err
	}
	for _, v := range vectors {
		if len(v.Values) != idx.index.Dimension {
			return fmt.Errorf("vector dimension %d does not match index dimension %d", len(v.Values), idx.index.Dimension)
		}
	}
	for _, v := range vectors {
		idx.vectors[v.ID] = &Vector{
			ID:       v.ID,
			Values:   append([]float64(nil), v.Values...),
			Metadata: copyMetadata(v.Metadata),
		}
	}
	return nil
}

// Search 搜索向量
func (s *MemoryStore) Search(ctx context.Context, indexName string, query []float64, options *SearchOptions) ([]*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.lookup(indexName)
	if err != nil {
		return nil, err
	}
	if len(query) != idx.index.Dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), idx.index.Dimension)
	}
	if options == nil {
		options = &SearchOptions{TopK: 10}
	}

	var results []*SearchResult
	for id, v := range idx.vectors {
		if len(options.Filter) > 0 && !options.Filter.Match(v.Metadata) {
			continue
		}
		results = append(results, &SearchResult{
			ID:       id,
			Score:    Similarity(query, v.Values, idx.index.Distance),
			Metadata: copyMetadata(v.Metadata),
		})
	}
	return rankResults(results, options.Threshold, options.TopK), nil
}

// Delete 删除向量
func (s *MemoryStore) Delete(ctx context.Context, indexName string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.lookup(indexName)
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(idx.vectors, id)
	}
	return nil
}

// DeleteByFilter 删除元数据匹配的向量
func (s *MemoryStore) DeleteByFilter(ctx context.Context, indexName string, filter Filter) (int, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("DeleteByFilter 需要非空过滤条件")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.lookup(indexName)
	if err != nil {
		return 0, err
	}
	n := 0
	for id, v := range idx.vectors {
		if filter.Match(v.Metadata) {
			delete(idx.vectors, id)
			n++
		}
	}
	return n, nil
}

// Count 返回索引中的向量数
func (s *MemoryStore) Count(indexName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.indexes[indexName]; ok {
		return len(idx.vectors)
	}
	return 0
}

// ListIndexes 列出所有索引
func (s *MemoryStore) ListIndexes(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var indexes []string
	for name := range s.indexes {
		indexes = append(indexes, name)
	}
	return indexes, nil
}

// Ping 内存存储始终可用
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close 关闭存储连接
func (s *MemoryStore) Close() error {
	return nil
}
