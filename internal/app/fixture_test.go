package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"rag-indexer/internal/model/embedding"
	"rag-indexer/internal/model/llm"
	"rag-indexer/internal/pipeline/ingest"
	"rag-indexer/internal/pipeline/query"
	"rag-indexer/internal/ratelimit"
	"rag-indexer/internal/storage/metadata"
	"rag-indexer/internal/storage/object"
	"rag-indexer/internal/storage/vector"
	"rag-indexer/pkg/log"
)

const (
	sessionA = "11111111-1111-1111-1111-111111111111"
	sessionB = "22222222-2222-2222-2222-222222222222"
)

// constProvider 所有文本返回同一向量，检索得分恒为 1
type constProvider struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (p *constProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	p.calls.Add(1)
	if p.fail.Load() {
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

func (p *constProvider) Model() string  { return "const" }
func (p *constProvider) Dimension() int { return 2 }

type recordingLLM struct {
	prompts []string
}

func (r *recordingLLM) Generate(ctx context.Context, system, prompt string) (*llm.Completion, error) {
	r.prompts = append(r.prompts, prompt)
	return &llm.Completion{Text: "generated answer", TotalTokens: 10}, nil
}

func (r *recordingLLM) Model() string { return "recording" }

type appFixture struct {
	catalog  *metadata.MemoryStore
	objects  *object.MemoryStore
	vectors  *vector.MemoryStore
	indexer  *ingest.VectorIndexer
	provider *constProvider
	llm      *recordingLLM
	logs     *bytes.Buffer

	docs    *DocumentService
	search  *SearchService
	ask     *AskService
	samples *SampleService
}

func newAppFixture(t *testing.T, limiter ratelimit.Limiter) *appFixture {
	t.Helper()
	f := &appFixture{
		catalog:  metadata.NewMemoryStore(),
		objects:  object.NewMemoryStore(),
		vectors:  vector.NewMemoryStore(),
		provider: &constProvider{},
		llm:      &recordingLLM{},
		logs:     &bytes.Buffer{},
	}
	logger := log.NewLoggerWithWriter(&log.Config{Level: "debug"}, f.logs)
	f.indexer = ingest.NewVectorIndexer(f.vectors, "docs", 2, "cosine", logger)
	require.NoError(t, f.indexer.EnsureIndex(context.Background()))

	orch := ingest.NewOrchestrator(ingest.OrchestratorDeps{
		Catalog:  f.catalog,
		Objects:  f.objects,
		Chunker:  ingest.NewChunker(200, 0),
		Embedder: ingest.NewBatchEmbedder(f.provider, ingest.BatchEmbedderConfig{BatchSize: 4}, logger),
		Vectors:  f.indexer,
		Logger:   logger,
	})
	f.docs = NewDocumentService(DocumentServiceDeps{
		Catalog: f.catalog,
		Objects: f.objects,
		Vectors: f.indexer,
		Indexer: orch,
		Limiter: limiter,
		Policy:  ingest.UploadPolicy{MaxSize: 1024 * 1024},
		Logger:  logger,
	})
	f.samples = NewSampleService(f.docs, nil, 1024*1024, logger)

	retriever := query.NewRetriever(query.RetrieverConfig{
		Embedder: embedding.NewEinoEmbedder(f.provider),
		Model:    f.provider.Model(),
		Vectors:  f.indexer,
		Catalog:  f.catalog,
		Logger:   logger,
	})
	f.search = NewSearchService(retriever, limiter, 0, 0)
	f.ask = NewAskService(query.NewEinoRetriever(retriever, 0, 0), query.NewGenerator(f.llm, "", logger), limiter, 0, 0, logger)
	return f
}

func text(letters ...string) []byte {
	parts := make([]string, len(letters))
	for i, l := range letters {
		parts[i] = strings.Repeat(l, 120)
	}
	return []byte(strings.Join(parts, "\n\n"))
}

func (f *appFixture) upload(t *testing.T, session string, content []byte) *UploadResult {
	t.Helper()
	res, err := f.docs.Upload(context.Background(), UploadRequest{
		Content:     content,
		Filename:    "notes.txt",
		ContentType: "text/plain",
		SessionID:   session,
	})
	require.NoError(t, err)
	return res
}
