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
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"rag-indexer/internal/model/embedding"
	"rag-indexer/pkg/log"
	"rag-indexer/pkg/metrics"
)

const (
	DefaultEmbedBatchSize = 50
	DefaultEmbedMaxChars  = 20000
)

// BatchEmbedder 批量向量化：超长文本截断后分批提交，输出与输入一一对应且保序。
// 任一批次失败即整体失败，不返回部分结果。
type BatchEmbedder struct {
	provider    embedding.Provider
	batchSize   int
	maxChars    int
	concurrency int
	logger      *log.Logger
}

// BatchEmbedderConfig 构造参数；零值使用默认
type BatchEmbedderConfig struct {
	BatchSize   int
	MaxChars    int
	Concurrency int // <=1 顺序提交
}

// NewBatchEmbedder 创建批量向量化器
func NewBatchEmbedder(provider embedding.Provider, cfg BatchEmbedderConfig, logger *log.Logger) *BatchEmbedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultEmbedMaxChars
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &BatchEmbedder{
		provider:    provider,
		batchSize:   cfg.BatchSize,
		maxChars:    cfg.MaxChars,
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
}

// Dimension 返回向量维度
func (e *BatchEmbedder) Dimension() int { return e.provider.Dimension() }

// Embed 返回与 texts 等长、同序的向量
func (e *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	inputs := e.truncate(ctx, texts)

	var batches [][]string
	for i := 0; i < len(inputs); i += e.batchSize {
		end := i + e.batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batches = append(batches, inputs[i:end])
	}

	// 按批次下标写入，并发时也按输入顺序拼接
	results := make([][][]float64, len(batches))
	if e.concurrency == 1 || len(batches) == 1 {
		for i, b := range batches {
			vecs, err := e.embedBatch(ctx, i, b)
			if err != nil {
				return nil, err
			}
			results[i] = vecs
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.concurrency)
		for i, b := range batches {
			g.Go(func() error {
				vecs, err := e.embedBatch(gctx, i, b)
				if err != nil {
					return err
				}
				results[i] = vecs
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := make([][]float64, 0, len(texts))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (e *BatchEmbedder) embedBatch(ctx context.Context, idx int, batch []string) ([][]float64, error) {
	vecs, err := e.provider.EmbedBatch(ctx, batch)
	if err == nil && len(vecs) != len(batch) {
		err = fmt.Errorf("embedding batch %d: expected %d vectors, got %d", idx, len(batch), len(vecs))
	}
	if err != nil {
		metrics.EmbeddingBatchesTotal.WithLabelValues("error").Inc()
		e.logger.ErrorContext(ctx, "embedding batch failed",
			"batch_index", idx,
			"batch_size", len(batch),
			"error", err,
		)
		return nil, err
	}
	metrics.EmbeddingBatchesTotal.WithLabelValues("ok").Inc()
	return vecs, nil
}

// truncate 超过 maxChars 字符的文本截断（有损，记录告警）
func (e *BatchEmbedder) truncate(ctx context.Context, texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		n := utf8.RuneCountInString(t)
		if n <= e.maxChars {
			out[i] = t
			continue
		}
		out[i] = truncateRunes(t, e.maxChars)
		metrics.EmbeddingTruncatedTotal.Inc()
		e.logger.WarnContext(ctx, "embedding input truncated",
			"index", i,
			"original_chars", n,
			"max_chars", e.maxChars,
		)
	}
	return out
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
