package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	redisVectorField = "embedding"
	redisScoreField  = "__score"
	// redisScanLimit DeleteByFilter 单轮查询上限
	redisScanLimit = 1000
)

// RedisStore 基于 Redis Stack（RediSearch）的向量存储，每个向量存为一个 HASH
type RedisStore struct {
	client  redis.UniversalClient
	indexes map[string]*Index
}

// NewRedisStore 创建 Redis 向量存储
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, indexes: make(map[string]*Index)}
}

func redisKeyPrefix(indexName string) string {
	return indexName + ":"
}

// Create FT.CREATE 建索引，元数据过滤字段建为 TAG
func (s *RedisStore) Create(ctx context.Context, idx *Index) error {
	metric := "COSINE"
	if idx.Distance == "euclidean" {
		metric = "L2"
	}
	args := []interface{}{
		"FT.CREATE", idx.Name, "ON", "HASH",
		"PREFIX", 1, redisKeyPrefix(idx.Name),
		"SCHEMA",
	}
	for _, f := range idx.FilterFields {
		args = append(args, f, "TAG")
	}
	args = append(args,
		redisVectorField, "VECTOR", "HNSW", 6,
		"TYPE", "FLOAT32",
		"DIM", idx.Dimension,
		"DISTANCE_METRIC", metric,
	)
	if err := s.client.Do(ctx, args...).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "index already exists") {
			s.indexes[idx.Name] = idx
			return fmt.Errorf("%w: %s", ErrIndexExists, idx.Name)
		}
		return fmt.Errorf("创建 redis 向量索引失败: %w", err)
	}
	s.indexes[idx.Name] = idx
	return nil
}

// Upsert HSET 写入向量与元数据
func (s *RedisStore) Upsert(ctx context.Context, indexName string, vectors []*Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	if idx, ok := s.indexes[indexName]; ok {
		for _, v := range vectors {
			if len(v.Values) != idx.Dimension {
				return fmt.Errorf("vector dimension %d does not match index dimension %d", len(v.Values), idx.Dimension)
			}
		}
	}
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, v := range vectors {
			fields := make(map[string]interface{}, len(v.Metadata)+1)
			for k, val := range v.Metadata {
				fields[k] = val
			}
			fields[redisVectorField] = encodeFloat32(v.Values)
			key := redisKeyPrefix(indexName) + v.ID
			p.Del(ctx, key)
			p.HSet(ctx, key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("写入 redis 向量失败: %w", err)
	}
	return nil
}

// Search KNN 检索，过滤条件拼为 TAG 查询前缀
func (s *RedisStore) Search(ctx context.Context, indexName string, query []float64, options *SearchOptions) ([]*SearchResult, error) {
	if options == nil {
		options = &SearchOptions{TopK: 10}
	}
	topK := options.TopK
	if topK <= 0 {
		topK = 10
	}
	q := fmt.Sprintf("%s=>[KNN %d @%s $vec AS %s]", filterQuery(options.Filter), topK, redisVectorField, redisScoreField)
	reply, err := s.client.Do(ctx,
		"FT.SEARCH", indexName, q,
		"PARAMS", 2, "vec", encodeFloat32(query),
		"SORTBY", redisScoreField,
		"LIMIT", 0, topK,
		"DIALECT", 2,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("redis 向量检索失败: %w", err)
	}
	docs, err := parseSearchReply(reply)
	if err != nil {
		return nil, err
	}

	distance := "cosine"
	if idx, ok := s.indexes[indexName]; ok {
		distance = idx.Distance
	}
	prefix := redisKeyPrefix(indexName)
	results := make([]*SearchResult, 0, len(docs))
	for _, d := range docs {
		raw, _ := strconv.ParseFloat(d.fields[redisScoreField], 64)
		delete(d.fields, redisScoreField)
		delete(d.fields, redisVectorField)
		results = append(results, &SearchResult{
			ID:       strings.TrimPrefix(d.key, prefix),
			Score:    redisScore(raw, distance),
			Metadata: d.fields,
		})
	}
	return rankResults(results, options.Threshold, topK), nil
}

// Delete DEL 对应 HASH
func (s *RedisStore) Delete(ctx context.Context, indexName string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKeyPrefix(indexName) + id
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("删除 redis 向量失败: %w", err)
	}
	return nil
}

// DeleteByFilter 反复查询匹配 key 并删除，直到无匹配
func (s *RedisStore) DeleteByFilter(ctx context.Context, indexName string, filter Filter) (int, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("DeleteByFilter 需要非空过滤条件")
	}
	total := 0
	for {
		reply, err := s.client.Do(ctx,
			"FT.SEARCH", indexName, filterQuery(filter),
			"NOCONTENT", "LIMIT", 0, redisScanLimit,
			"DIALECT", 2,
		).Result()
		if err != nil {
			return total, fmt.Errorf("redis 过滤查询失败: %w", err)
		}
		keys, err := parseKeysReply(reply)
		if err != nil {
			return total, err
		}
		if len(keys) == 0 {
			return total, nil
		}
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return total, fmt.Errorf("删除 redis 向量失败: %w", err)
		}
		total += len(keys)
		if len(keys) < redisScanLimit {
			return total, nil
		}
	}
}

// ListIndexes FT._LIST
func (s *RedisStore) ListIndexes(ctx context.Context) ([]string, error) {
	reply, err := s.client.Do(ctx, "FT._LIST").Result()
	if err != nil {
		return nil, fmt.Errorf("列出 redis 索引失败: %w", err)
	}
	items, ok := reply.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected FT._LIST reply %T", reply)
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, fmt.Sprint(it))
	}
	return names, nil
}

// Ping 检查连接
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭客户端
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// filterQuery 将 Filter 转为 RediSearch 查询，无条件时为 "*"
func filterQuery(f Filter) string {
	if len(f) == 0 {
		return "*"
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vals := make([]string, len(f[k]))
		for i, v := range f[k] {
			vals[i] = escapeTag(v)
		}
		parts = append(parts, fmt.Sprintf("@%s:{%s}", k, strings.Join(vals, " | ")))
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// escapeTag 转义 TAG 值中的标点与空白
func escapeTag(v string) string {
	var b strings.Builder
	for _, r := range v {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 127) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// redisScore 将 RediSearch 返回的距离换算为相似度
func redisScore(dist float64, distance string) float64 {
	if distance == "euclidean" {
		// L2 返回的是平方距离
		return 1.0 / (1.0 + math.Sqrt(dist))
	}
	return 1.0 - dist
}

func encodeFloat32(v []float64) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(x)))
	}
	return buf
}

type redisDoc struct {
	key    string
	fields map[string]string
}

// parseSearchReply 解析 RESP2 的 FT.SEARCH 回复：[total, key1, [f, v, ...], key2, ...]
func parseSearchReply(reply interface{}) ([]redisDoc, error) {
	items, ok := reply.([]interface{})
	if !ok || len(items) == 0 {
		return nil, errors.New("unexpected FT.SEARCH reply")
	}
	var docs []redisDoc
	for i := 1; i+1 < len(items); i += 2 {
		key := fmt.Sprint(items[i])
		raw, ok := items[i+1].([]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected FT.SEARCH fields for %s", key)
		}
		fields := make(map[string]string, len(raw)/2)
		for j := 0; j+1 < len(raw); j += 2 {
			fields[fmt.Sprint(raw[j])] = fmt.Sprint(raw[j+1])
		}
		docs = append(docs, redisDoc{key: key, fields: fields})
	}
	return docs, nil
}

// parseKeysReply 解析 NOCONTENT 回复：[total, key1, key2, ...]
func parseKeysReply(reply interface{}) ([]string, error) {
	items, ok := reply.([]interface{})
	if !ok || len(items) == 0 {
		return nil, errors.New("unexpected FT.SEARCH reply")
	}
	keys := make([]string, 0, len(items)-1)
	for _, it := range items[1:] {
		keys = append(keys, fmt.Sprint(it))
	}
	return keys, nil
}
