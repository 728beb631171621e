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

package app

import (
	"context"
	"errors"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"rag-indexer/internal/model/embedding"
	"rag-indexer/internal/pipeline/ingest"
	"rag-indexer/internal/pipeline/query"
	"rag-indexer/internal/ratelimit"
	"rag-indexer/internal/storage/cache"
	"rag-indexer/internal/storage/lock"
	"rag-indexer/internal/storage/metadata"
	"rag-indexer/internal/storage/object"
	"rag-indexer/internal/storage/vector"
	"rag-indexer/pkg/config"
	"rag-indexer/pkg/log"
	"rag-indexer/pkg/secrets"
	"rag-indexer/pkg/tracing"
)

// Bootstrap 统一初始化：存储、模型、管线与各服务，供 cmd/api 装配 HTTP 层
type Bootstrap struct {
	Config *config.Config
	Logger *log.Logger

	Catalog      metadata.Store
	Objects      object.Store
	VectorStore  vector.Store
	Indexer      *ingest.VectorIndexer
	Cache        cache.EmbeddingCache
	Orchestrator *ingest.Orchestrator

	Documents *DocumentService
	Search    *SearchService
	Ask       *AskService
	Samples   *SampleService

	tracer *sdktrace.TracerProvider
}

// NewBootstrap 根据配置创建全部组件
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置为空")
	}
	logger, err := log.NewLogger(&log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	secretStore, err := secrets.NewStore(cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("初始化 secret store 失败: %w", err)
	}
	if err := cfg.ResolveSecrets(ctx, secretStore); err != nil {
		return nil, fmt.Errorf("解析 secret 引用失败: %w", err)
	}

	b := &Bootstrap{Config: cfg, Logger: logger}
	if cfg.Monitoring.Tracing.Enable {
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    cfg.Monitoring.Tracing.ServiceName,
			ExportEndpoint: cfg.Monitoring.Tracing.ExportEndpoint,
			Insecure:       cfg.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			logger.Warn("链路追踪初始化失败，继续运行", "error", err)
		} else {
			b.tracer = tp
		}
	}

	if b.Catalog, err = metadata.NewStore(ctx, cfg.Storage.Metadata); err != nil {
		return nil, fmt.Errorf("初始化文档目录失败: %w", err)
	}
	if b.Objects, err = object.NewStore(cfg.Storage.Object); err != nil {
		return nil, fmt.Errorf("初始化对象存储失败: %w", err)
	}
	if b.VectorStore, err = vector.NewStore(cfg.Storage.Vector); err != nil {
		return nil, fmt.Errorf("初始化向量存储失败: %w", err)
	}
	if b.Cache, err = cache.NewCache(cfg.Storage.Cache); err != nil {
		return nil, fmt.Errorf("初始化向量缓存失败: %w", err)
	}
	locker, err := lock.NewLocker(cfg.Storage.Lock)
	if err != nil {
		return nil, fmt.Errorf("初始化租约失败: %w", err)
	}
	limiter, err := ratelimit.New(cfg.RateLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化限流失败: %w", err)
	}

	provider := NewEmbeddingProvider(cfg.Model.Embedding)
	b.Indexer = ingest.NewVectorIndexer(b.VectorStore, cfg.Storage.Vector.Collection, provider.Dimension(), cfg.Storage.Vector.Metric, logger)
	if err := b.Indexer.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("初始化向量索引失败: %w", err)
	}

	b.Orchestrator = ingest.NewOrchestrator(ingest.OrchestratorDeps{
		Catalog: b.Catalog,
		Objects: b.Objects,
		Parser:  ingest.NewDocumentParser(logger),
		Chunker: ingest.NewChunker(cfg.Chunking.MaxSize, cfg.Chunking.Overlap),
		Embedder: ingest.NewBatchEmbedder(provider, ingest.BatchEmbedderConfig{
			BatchSize:   cfg.Model.Embedding.BatchSize,
			MaxChars:    cfg.Model.Embedding.MaxChars,
			Concurrency: cfg.Model.Embedding.Concurrency,
		}, logger),
		Vectors:  b.Indexer,
		Locker:   locker,
		LeaseTTL: cfg.Storage.Lock.TTL,
		Logger:   logger,
	})

	b.Documents = NewDocumentService(DocumentServiceDeps{
		Catalog: b.Catalog,
		Objects: b.Objects,
		Vectors: b.Indexer,
		Indexer: b.Orchestrator,
		Limiter: limiter,
		Policy:  ingest.UploadPolicy{MaxSize: int64(cfg.API.MaxUploadMB) * 1024 * 1024},
		Logger:  logger,
	})
	b.Samples = NewSampleService(b.Documents, nil, int64(cfg.API.MaxSampleMB)*1024*1024, logger)

	retriever := query.NewRetriever(query.RetrieverConfig{
		Embedder: embedding.NewEinoEmbedder(provider),
		Model:    provider.Model(),
		Cache:    b.Cache,
		Vectors:  b.Indexer,
		Catalog:  b.Catalog,
		Logger:   logger,
	})
	b.Search = NewSearchService(retriever, limiter, cfg.Search.TopK, cfg.Search.ScoreThreshold)

	generator, err := NewLLMFromConfig(ctx, cfg.Model.LLM)
	if err != nil {
		return nil, fmt.Errorf("初始化 LLM 失败: %w", err)
	}
	b.Ask = NewAskService(
		query.NewEinoRetriever(retriever, cfg.Search.AskTopK, cfg.Search.ScoreThreshold),
		query.NewGenerator(generator, cfg.Model.LLM.SystemPrompt, logger),
		limiter,
		cfg.Search.AskTopK,
		cfg.Search.ScoreThreshold,
		logger,
	)

	logger.Info("组件初始化完成",
		"catalog", cfg.Storage.Metadata.Type,
		"vector", cfg.Storage.Vector.Type,
		"object", cfg.Storage.Object.Type,
		"dimension", provider.Dimension(),
	)
	return b, nil
}

// Health 向量索引是否可用
func (b *Bootstrap) Health(ctx context.Context) bool {
	return b.Indexer.HealthCheck(ctx)
}

// Close 关闭全部存储连接与 tracer
func (b *Bootstrap) Close(ctx context.Context) error {
	var errs []error
	if b.tracer != nil {
		errs = append(errs, b.tracer.Shutdown(ctx))
	}
	for _, c := range []interface{ Close() error }{b.Cache, b.VectorStore, b.Objects, b.Catalog} {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
