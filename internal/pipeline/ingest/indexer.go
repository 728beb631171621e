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

package ingest

import (
	"context"
	"fmt"
	"strconv"

	"rag-indexer/internal/pipeline/common"
	"rag-indexer/internal/storage/vector"
	apperrors "rag-indexer/pkg/errors"
	"rag-indexer/pkg/log"
)

const (
	// VectorServiceName 外部服务错误中的服务名
	VectorServiceName = "vector_index"
	// UpsertBatchSize 单次写入向量数上限
	UpsertBatchSize = 100
	// MetadataPreviewChars 向量元数据中文本预览的字符上限
	MetadataPreviewChars = 1000
)

// 向量元数据字段
const (
	MetaDocumentID = "document_id"
	MetaChunkID    = "chunk_id"
	MetaText       = "text"
	MetaFilename   = "filename"
	MetaChunkIndex = "chunk_index"
	MetaSessionID  = "session_id"
)

// VectorRecord 待写入的向量
type VectorRecord struct {
	ID       string
	Values   []float64
	Metadata map[string]string
}

// VectorIndexer 封装向量存储：分批 upsert、阈值检索、按文档删除
type VectorIndexer struct {
	store     vector.Store
	indexName string
	dimension int
	distance  string
	logger    *log.Logger
}

// NewVectorIndexer 创建向量索引器
func NewVectorIndexer(store vector.Store, indexName string, dimension int, distance string, logger *log.Logger) *VectorIndexer {
	if logger == nil {
		logger = log.Nop()
	}
	return &VectorIndexer{
		store:     store,
		indexName: indexName,
		dimension: dimension,
		distance:  distance,
		logger:    logger,
	}
}

// IndexName 索引名
func (x *VectorIndexer) IndexName() string { return x.indexName }

// EnsureIndex 索引不存在时创建
func (x *VectorIndexer) EnsureIndex(ctx context.Context) error {
	err := vector.EnsureIndex(ctx, x.store, &vector.Index{
		Name:         x.indexName,
		Dimension:    x.dimension,
		Distance:     x.distance,
		FilterFields: []string{MetaDocumentID, MetaSessionID},
	})
	if err != nil {
		return apperrors.External(VectorServiceName, err)
	}
	return nil
}

// ChunkMetadata 构造 passage 的向量元数据，文本预览截断到 MetadataPreviewChars
func ChunkMetadata(chunk common.Chunk, filename, sessionID string) map[string]string {
	return map[string]string{
		MetaDocumentID: chunk.DocumentID,
		MetaChunkID:    chunk.ID,
		MetaText:       truncateRunes(chunk.Text, MetadataPreviewChars),
		MetaFilename:   filename,
		MetaChunkIndex: strconv.Itoa(chunk.Index),
		MetaSessionID:  sessionID,
	}
}

// Upsert 写入单个向量
func (x *VectorIndexer) Upsert(ctx context.Context, id string, values []float64, metadata map[string]string) error {
	return x.UpsertBatch(ctx, []VectorRecord{{ID: id, Values: values, Metadata: metadata}})
}

// UpsertBatch 按 UpsertBatchSize 分批写入；某批失败即返回，之前的批次已写入
func (x *VectorIndexer) UpsertBatch(ctx context.Context, records []VectorRecord) error {
	for start := 0; start < len(records); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		vecs := make([]*vector.Vector, 0, end-start)
		for _, r := range records[start:end] {
			meta := r.Metadata
			if text, ok := meta[MetaText]; ok {
				meta = copyStringMap(meta)
				meta[MetaText] = truncateRunes(text, MetadataPreviewChars)
			}
			vecs = append(vecs, &vector.Vector{ID: r.ID, Values: r.Values, Metadata: meta})
		}
		if err := x.store.Upsert(ctx, x.indexName, vecs); err != nil {
			x.logger.ErrorContext(ctx, "vector upsert failed",
				"index", x.indexName,
				"batch_start", start,
				"batch_size", len(vecs),
				"error", err,
			)
			return apperrors.External(VectorServiceName, fmt.Errorf("upsert batch at %d: %w", start, err))
		}
	}
	return nil
}

// Search 检索并过滤得分低于 threshold 的结果
func (x *VectorIndexer) Search(ctx context.Context, query []float64, limit int, threshold float64, filter vector.Filter) ([]*vector.SearchResult, error) {
	results, err := x.store.Search(ctx, x.indexName, query, &vector.SearchOptions{
		TopK:      limit,
		Filter:    filter,
		Threshold: threshold,
	})
	if err != nil {
		return nil, apperrors.External(VectorServiceName, err)
	}
	// 后端未必支持服务端阈值，这里再过滤一次
	kept := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// DeleteByDocument 删除文档的全部向量
func (x *VectorIndexer) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	n, err := x.store.DeleteByFilter(ctx, x.indexName, vector.Filter{MetaDocumentID: {documentID}})
	if err != nil {
		return n, apperrors.External(VectorServiceName, err)
	}
	return n, nil
}

// DeleteIDs 按 ID 删除，不存在的 ID 忽略
func (x *VectorIndexer) DeleteIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.store.Delete(ctx, x.indexName, ids); err != nil {
		return apperrors.External(VectorServiceName, err)
	}
	return nil
}

// HealthCheck 向量后端是否可用
func (x *VectorIndexer) HealthCheck(ctx context.Context) bool {
	if err := x.store.Ping(ctx); err != nil {
		x.logger.WarnContext(ctx, "vector index health check failed", "error", err)
		return false
	}
	return true
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
