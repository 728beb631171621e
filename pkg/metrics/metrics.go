package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		IndexingDuration, IndexingTotal, ChunksTotal,
		EmbeddingBatchesTotal, EmbeddingTruncatedTotal,
		RateLimitedTotal, SearchTotal, LLMTokensTotal,
	)
}

// IndexingDuration 单文档索引耗时（秒）
var IndexingDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "rag_indexing_duration_seconds",
		Help:    "单文档索引耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"status"}, // indexed | failed
)

// IndexingTotal 索引次数（按终态）
var IndexingTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rag_indexing_total",
		Help: "文档索引次数（按终态）",
	},
	[]string{"status"},
)

// ChunksTotal 成功写入的 passage 总数
var ChunksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "rag_chunks_total",
		Help: "成功写入的 passage 总数",
	},
)

// EmbeddingBatchesTotal embedding 批次调用数
var EmbeddingBatchesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rag_embedding_batches_total",
		Help: "embedding 批次调用数",
	},
	[]string{"outcome"}, // ok | error
)

// EmbeddingTruncatedTotal 超长被截断的输入数
var EmbeddingTruncatedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "rag_embedding_truncated_total",
		Help: "提交 embedding 前被截断的文本数",
	},
)

// RateLimitedTotal 被限流拒绝的请求数
var RateLimitedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rag_rate_limited_total",
		Help: "被限流拒绝的请求数",
	},
	[]string{"operation"}, // upload | search | query
)

// SearchTotal 语义检索次数
var SearchTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "rag_search_total",
		Help: "语义检索次数",
	},
)

// LLMTokensTotal LLM 调用 token 数
var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rag_llm_tokens_total",
		Help: "LLM 调用 token 总数",
	},
	[]string{"direction"}, // input | output
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
