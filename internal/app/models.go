package app

import (
	"context"

	"rag-indexer/internal/model/embedding"
	"rag-indexer/internal/model/llm"
	"rag-indexer/pkg/config"
)

// NewEmbeddingProvider 根据 model.embedding 创建 OpenAI 兼容的 embedding 客户端
func NewEmbeddingProvider(cfg config.EmbeddingConfig) embedding.Provider {
	return embedding.NewOpenAIClient(embedding.OpenAIConfig{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		Dimension:         cfg.Dimension,
		Timeout:           cfg.Timeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})
}

// NewLLMFromConfig 根据 model.llm 创建补全客户端；未配置 api_key 时返回占位实现，问答接口返回 502
func NewLLMFromConfig(ctx context.Context, cfg config.LLMConfig) (llm.Generator, error) {
	if cfg.APIKey == "" {
		return llm.Unavailable(cfg.Model), nil
	}
	return llm.NewOpenAIGenerator(ctx, cfg)
}
