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

	einoretriever "github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"rag-indexer/internal/pipeline/ingest"
)

// sessionOptions Retrieve 的实现相关选项
type sessionOptions struct {
	SessionID string
}

// WithSession 限定检索范围为该会话的文档与样例文档
func WithSession(sessionID string) einoretriever.Option {
	return einoretriever.WrapImplSpecificOptFn(func(o *sessionOptions) {
		o.SessionID = sessionID
	})
}

// EinoRetriever 将 Retriever 适配为 eino retriever.Retriever
type EinoRetriever struct {
	retriever *Retriever
	topK      int
	threshold float64
}

// NewEinoRetriever topK / threshold 为未传选项时的默认值
func NewEinoRetriever(r *Retriever, topK int, threshold float64) *EinoRetriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &EinoRetriever{retriever: r, topK: topK, threshold: threshold}
}

// Retrieve 实现 github.com/cloudwego/eino/components/retriever.Retriever
func (e *EinoRetriever) Retrieve(ctx context.Context, query string, opts ...einoretriever.Option) ([]*schema.Document, error) {
	options := einoretriever.GetCommonOptions(&einoretriever.Options{
		TopK:           &e.topK,
		ScoreThreshold: &e.threshold,
	}, opts...)
	session := einoretriever.GetImplSpecificOptions(&sessionOptions{}, opts...)

	embedder := e.retriever.embedder
	if options.Embedding != nil {
		embedder = options.Embedding
	}
	req := Request{Query: query, SessionID: session.SessionID, TopK: e.topK, Threshold: options.ScoreThreshold}
	if options.TopK != nil {
		req.TopK = *options.TopK
	}

	hits, err := e.retriever.search(ctx, req, embedder)
	if err != nil {
		return nil, err
	}
	docs := make([]*schema.Document, 0, len(hits))
	for _, h := range hits {
		d := &schema.Document{
			ID:      h.ChunkID,
			Content: h.Text,
			MetaData: map[string]any{
				ingest.MetaDocumentID: h.DocumentID,
				ingest.MetaFilename:   h.Filename,
				ingest.MetaChunkIndex: h.ChunkIndex,
			},
		}
		docs = append(docs, d.WithScore(h.Score))
	}
	return docs, nil
}
