package embedding

import (
	"context"

	einoembedding "github.com/cloudwego/eino/components/embedding"
)

// EinoEmbedder 将 Provider 适配为 eino 的 embedding.Embedder，供检索侧单条 query 向量化
type EinoEmbedder struct {
	provider Provider
}

var _ einoembedding.Embedder = (*EinoEmbedder)(nil)

// NewEinoEmbedder 包装 Provider
func NewEinoEmbedder(p Provider) *EinoEmbedder {
	return &EinoEmbedder{provider: p}
}

// EmbedStrings 实现 einoembedding.Embedder；忽略调用选项，模型与维度取自 Provider 配置
func (e *EinoEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...einoembedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	return e.provider.EmbedBatch(ctx, texts)
}

// Model 返回模型名称
func (e *EinoEmbedder) Model() string { return e.provider.Model() }
