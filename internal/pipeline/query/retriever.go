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

package query

import (
	"context"
	"errors"
	"strconv"
	"strings"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"rag-indexer/internal/model/embedding"
	"rag-indexer/internal/pipeline/common"
	"rag-indexer/internal/pipeline/ingest"
	"rag-indexer/internal/storage/cache"
	"rag-indexer/internal/storage/metadata"
	"rag-indexer/internal/storage/vector"
	apperrors "rag-indexer/pkg/errors"
	"rag-indexer/pkg/log"
	"rag-indexer/pkg/metrics"
)

const (
	DefaultTopK      = 10
	DefaultThreshold = 0.35
	MaxTopK          = 50
)

var errEmptyEmbedding = errors.New("embedding returned no vector")

// VectorSearcher 向量检索
type VectorSearcher interface {
	Search(ctx context.Context, query []float64, limit int, threshold float64, filter vector.Filter) ([]*vector.SearchResult, error)
}

// DocumentLookup 按 ID 查询文档目录
type DocumentLookup interface {
	Get(ctx context.Context, id string) (*metadata.Document, error)
}

// Request 检索请求；Threshold 为 nil 时取 DefaultThreshold
type Request struct {
	Query     string
	SessionID string
	TopK      int
	Threshold *float64
}

// Hit 单条检索结果
type Hit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
}

// Retriever 语义检索：query 向量化（带缓存）→ 会话过滤的向量检索 → 只保留 indexed 文档
type Retriever struct {
	embedder einoembedding.Embedder
	model    string
	cache    cache.EmbeddingCache
	vectors  VectorSearcher
	catalog  DocumentLookup
	logger   *log.Logger
}

// RetrieverConfig Retriever 构造参数；Cache 可为空
type RetrieverConfig struct {
	Embedder einoembedding.Embedder
	Model    string
	Cache    cache.EmbeddingCache
	Vectors  VectorSearcher
	Catalog  DocumentLookup
	Logger   *log.Logger
}

// NewRetriever 创建检索器
func NewRetriever(cfg RetrieverConfig) *Retriever {
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	return &Retriever{
		embedder: cfg.Embedder,
		model:    cfg.Model,
		cache:    cfg.Cache,
		vectors:  cfg.Vectors,
		catalog:  cfg.Catalog,
		logger:   cfg.Logger.Component("retriever"),
	}
}

// Search 检索 query 最相关的 passage，按得分降序
func (r *Retriever) Search(ctx context.Context, req Request) ([]Hit, error) {
	return r.search(ctx, req, r.embedder)
}

func (r *Retriever) search(ctx context.Context, req Request, embedder einoembedding.Embedder) ([]Hit, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, apperrors.Validation("Query cannot be empty")
	}
	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}
	if req.TopK > MaxTopK {
		req.TopK = MaxTopK
	}
	threshold := DefaultThreshold
	if req.Threshold != nil {
		threshold = max(*req.Threshold, 0)
	}

	vec, err := r.embed(ctx, q, embedder)
	if err != nil {
		return nil, err
	}
	metrics.SearchTotal.Inc()

	// 非 indexed 文档的向量会被过滤，多取一些
	results, err := r.vectors.Search(ctx, vec, req.TopK*2, threshold, sessionFilter(req.SessionID))
	if err != nil {
		return nil, err
	}

	visible := make(map[string]bool)
	hits := make([]Hit, 0, req.TopK)
	for _, res := range results {
		docID := res.Metadata[ingest.MetaDocumentID]
		ok, seen := visible[docID]
		if !seen {
			ok = r.indexed(ctx, docID)
			visible[docID] = ok
		}
		if !ok {
			continue
		}
		hits = append(hits, toHit(res))
		if len(hits) == req.TopK {
			break
		}
	}
	r.logger.DebugContext(ctx, "检索完成", "session_id", req.SessionID, "candidates", len(results), "hits", len(hits))
	return hits, nil
}

// embed 先查缓存，未命中再调用 embedder
func (r *Retriever) embed(ctx context.Context, q string, embedder einoembedding.Embedder) ([]float64, error) {
	key := cache.Key(r.model, q)
	if r.cache != nil {
		if vec, ok := r.cache.Get(ctx, key); ok {
			return vec, nil
		}
	}
	vecs, err := embedder.EmbedStrings(ctx, []string{q})
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindUnknown {
			err = apperrors.External(embedding.ServiceName, err)
		}
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, apperrors.External(embedding.ServiceName, errEmptyEmbedding)
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, vecs[0]); err != nil {
			r.logger.WarnContext(ctx, "写入 query 向量缓存失败", "error", err)
		}
	}
	return vecs[0], nil
}

func (r *Retriever) indexed(ctx context.Context, documentID string) bool {
	if documentID == "" {
		return false
	}
	doc, err := r.catalog.Get(ctx, documentID)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			r.logger.WarnContext(ctx, "查询文档状态失败", "document_id", documentID, "error", err)
		}
		return false
	}
	return doc.Status == common.StatusIndexed
}

// sessionFilter 会话只能看到自己的文档和样例文档
func sessionFilter(sessionID string) vector.Filter {
	sessions := []string{common.SampleSessionID}
	if sessionID != "" && sessionID != common.SampleSessionID {
		sessions = append(sessions, sessionID)
	}
	return vector.Filter{ingest.MetaSessionID: sessions}
}

func toHit(res *vector.SearchResult) Hit {
	idx, _ := strconv.Atoi(res.Metadata[ingest.MetaChunkIndex])
	chunkID := res.Metadata[ingest.MetaChunkID]
	if chunkID == "" {
		chunkID = res.ID
	}
	return Hit{
		ChunkID:    chunkID,
		DocumentID: res.Metadata[ingest.MetaDocumentID],
		Filename:   res.Metadata[ingest.MetaFilename],
		Text:       res.Metadata[ingest.MetaText],
		Score:      res.Score,
		ChunkIndex: idx,
	}
}
