package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"
)

const (
	hnswM        = 16
	hnswEfSearch = 64
	// hnswOversample 带过滤条件时的过采样倍数
	hnswOversample = 4
)

// HNSWStore 基于 coder/hnsw 的近似最近邻向量存储
//
// 覆盖写与删除采用惰性删除：只解除 ID 映射，图节点保留为孤儿，检索时跳过。
type HNSWStore struct {
	mu      sync.RWMutex
	indexes map[string]*hnswIndex
	closed  bool
}

type hnswIndex struct {
	index   *Index
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	vectors map[string]*Vector
	nextKey uint64
}

// NewHNSWStore 创建 HNSW 向量存储
func NewHNSWStore() *HNSWStore {
	return &HNSWStore{indexes: make(map[string]*hnswIndex)}
}

// Create 创建索引
func (s *HNSWStore) Create(ctx context.Context, idx *Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if _, exists := s.indexes[idx.Name]; exists {
		return fmt.Errorf("%w: %s", ErrIndexExists, idx.Name)
	}

	graph := hnsw.NewGraph[uint64]()
	switch idx.Distance {
	case "euclidean":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = hnswM
	graph.EfSearch = hnswEfSearch
	graph.Ml = 0.25

	s.indexes[idx.Name] = &hnswIndex{
		index:   idx,
		graph:   graph,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		vectors: make(map[string]*Vector),
	}
	return nil
}

func (s *HNSWStore) lookup(indexName string) (*hnswIndex, error) {
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	idx, ok := s.indexes[indexName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, indexName)
	}
	return idx, nil
}

// Upsert 写入或覆盖向量
func (s *HNSWStore) Upsert(ctx context.Context, indexName string, vectors []*Vector) error {
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
		idx.forget(v.ID)

		key := idx.nextKey
		idx.nextKey++
		idx.graph.Add(hnsw.MakeNode(key, toFloat32(v.Values)))
		idx.idMap[v.ID] = key
		idx.keyMap[key] = v.ID
		idx.vectors[v.ID] = &Vector{
			ID:       v.ID,
			Values:   append([]float64(nil), v.Values...),
			Metadata: copyMetadata(v.Metadata),
		}
	}
	return nil
}

// forget 惰性删除：仅解除映射
func (idx *hnswIndex) forget(id string) bool {
	key, ok := idx.idMap[id]
	if !ok {
		return false
	}
	delete(idx.keyMap, key)
	delete(idx.idMap, id)
	delete(idx.vectors, id)
	return true
}

// Search 近似检索；图返回的候选按原始向量重新计算得分
func (s *HNSWStore) Search(ctx context.Context, indexName string, query []float64, options *SearchOptions) ([]*SearchResult, error) {
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
	if len(idx.vectors) == 0 || idx.graph.Len() == 0 {
		return []*SearchResult{}, nil
	}

	topK := options.TopK
	if topK <= 0 {
		topK = 10
	}
	k := topK
	if len(options.Filter) > 0 {
		k = topK * hnswOversample
	}
	// 孤儿节点也占候选名额
	k += idx.graph.Len() - len(idx.vectors)
	if k > idx.graph.Len() {
		k = idx.graph.Len()
	}

	var results []*SearchResult
	for _, node := range idx.graph.Search(toFloat32(query), k) {
		id, ok := idx.keyMap[node.Key]
		if !ok {
			continue
		}
		v := idx.vectors[id]
		if len(options.Filter) > 0 && !options.Filter.Match(v.Metadata) {
			continue
		}
		results = append(results, idx.result(query, v))
	}

	// 过滤后不足 topK 时退化为精确扫描
	if len(options.Filter) > 0 && len(results) < topK && k < idx.graph.Len() {
		results = results[:0]
		for _, v := range idx.vectors {
			if options.Filter.Match(v.Metadata) {
				results = append(results, idx.result(query, v))
			}
		}
	}
	return rankResults(results, options.Threshold, topK), nil
}

func (idx *hnswIndex) result(query []float64, v *Vector) *SearchResult {
	return &SearchResult{
		ID:       v.ID,
		Score:    Similarity(query, v.Values, idx.index.Distance),
		Metadata: copyMetadata(v.Metadata),
	}
}

// Delete 删除向量
func (s *HNSWStore) Delete(ctx context.Context, indexName string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.lookup(indexName)
	if err != nil {
		return err
	}
	for _, id := range ids {
		idx.forget(id)
	}
	return nil
}

// DeleteByFilter 删除元数据匹配的向量
func (s *HNSWStore) DeleteByFilter(ctx context.Context, indexName string, filter Filter) (int, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("DeleteByFilter 需要非空过滤条件")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.lookup(indexName)
	if err != nil {
		return 0, err
	}
	var matched []string
	for id, v := range idx.vectors {
		if filter.Match(v.Metadata) {
			matched = append(matched, id)
		}
	}
	for _, id := range matched {
		idx.forget(id)
	}
	return len(matched), nil
}

// ListIndexes 列出所有索引
func (s *HNSWStore) ListIndexes(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	return names, nil
}

// Ping 检查存储是否已关闭
func (s *HNSWStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Close 关闭存储
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.indexes = make(map[string]*hnswIndex)
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
