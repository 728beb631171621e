package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")
)

// EnsureIndex 若索引不存在则创建，存在则跳过（与 Store 配合的辅助）
func EnsureIndex(ctx context.Context, s Store, idx *Index) error {
	if idx.Distance == "" {
		idx.Distance = "cosine"
	}
	list, err := s.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("列出索引失败: %w", err)
	}
	for _, n := range list {
		if n == idx.Name {
			return nil
		}
	}
	if err := s.Create(ctx, idx); err != nil && !errors.Is(err, ErrIndexExists) {
		return err
	}
	return nil
}

// Match 元数据是否满足过滤条件
func (f Filter) Match(metadata map[string]string) bool {
	for key, allowed := range f {
		v, ok := metadata[key]
		if !ok {
			return false
		}
		hit := false
		for _, a := range allowed {
			if a == v {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// Similarity 计算相似度得分，越大越相似
func Similarity(query, vector []float64, distance string) float64 {
	switch distance {
	case "euclidean":
		return 1.0 / (1.0 + euclideanDistance(query, vector))
	default:
		return cosineSimilarity(query, vector)
	}
}

// rankResults 阈值过滤、降序排序并截断到 topK
func rankResults(results []*SearchResult, threshold float64, topK int) []*SearchResult {
	kept := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if topK > 0 && len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	dotProduct, normA, normB := 0.0, 0.0, 0.0
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func euclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
