package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/require"

	"rag-indexer/internal/api/http/middleware"
	appsvc "rag-indexer/internal/app"
	"rag-indexer/internal/model/embedding"
	"rag-indexer/internal/model/llm"
	"rag-indexer/internal/pipeline/ingest"
	"rag-indexer/internal/pipeline/query"
	"rag-indexer/internal/storage/metadata"
	"rag-indexer/internal/storage/object"
	"rag-indexer/internal/storage/vector"
)

const (
	sessionA = "11111111-1111-1111-1111-111111111111"
	sessionB = "22222222-2222-2222-2222-222222222222"
)

type constProvider struct {
	fail atomic.Bool
}

func (p *constProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
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

type testServer struct {
	s        *server.Hertz
	provider *constProvider
	healthy  bool
}

type serverOption func(r *Router)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	ts, r := newTestRouter(t, opts...)
	ts.s = r.Build(":0")
	return ts
}

func newTestRouter(t *testing.T, opts ...serverOption) (*testServer, *Router) {
	t.Helper()
	ts := &testServer{provider: &constProvider{}, healthy: true}
	catalog := metadata.NewMemoryStore()
	objects := object.NewMemoryStore()
	indexer := ingest.NewVectorIndexer(vector.NewMemoryStore(), "docs", 2, "cosine", nil)
	require.NoError(t, indexer.EnsureIndex(context.Background()))

	orch := ingest.NewOrchestrator(ingest.OrchestratorDeps{
		Catalog:  catalog,
		Objects:  objects,
		Chunker:  ingest.NewChunker(200, 0),
		Embedder: ingest.NewBatchEmbedder(ts.provider, ingest.BatchEmbedderConfig{}, nil),
		Vectors:  indexer,
	})
	docs := appsvc.NewDocumentService(appsvc.DocumentServiceDeps{
		Catalog: catalog,
		Objects: objects,
		Vectors: indexer,
		Indexer: orch,
		Policy:  ingest.UploadPolicy{MaxSize: 1024 * 1024},
	})
	retriever := query.NewRetriever(query.RetrieverConfig{
		Embedder: embedding.NewEinoEmbedder(ts.provider),
		Model:    ts.provider.Model(),
		Vectors:  indexer,
		Catalog:  catalog,
	})
	handler := NewHandler(
		docs,
		appsvc.NewSearchService(retriever, nil, 0, 0),
		appsvc.NewAskService(query.NewEinoRetriever(retriever, 0, 0), query.NewGenerator(llm.Unavailable("none"), "", nil), nil, 0, 0, nil),
		appsvc.NewSampleService(docs, nil, 1024*1024, nil),
		func(ctx context.Context) bool { return ts.healthy },
	)
	r := NewRouter(handler, middleware.NewMiddleware(nil), middleware.NewAuditMiddleware(nil))
	for _, o := range opts {
		o(r)
	}
	return ts, r
}

func (ts *testServer) do(method, path string, body []byte, headers ...ut.Header) *ut.ResponseRecorder {
	return ut.PerformRequest(ts.s.Engine, method, path, &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, headers...)
}

func (ts *testServer) doJSON(method, path string, v interface{}, headers ...ut.Header) *ut.ResponseRecorder {
	body, _ := json.Marshal(v)
	headers = append(headers, ut.Header{Key: "Content-Type", Value: "application/json"})
	return ts.do(method, path, body, headers...)
}

func (ts *testServer) upload(path string, fields map[string]string, filename, contentType string, content []byte, headers ...ut.Header) *ut.ResponseRecorder {
	body, formType := multipartBody(fields, filename, contentType, content)
	headers = append(headers, ut.Header{Key: "Content-Type", Value: formType})
	return ts.do("POST", path, body, headers...)
}

// multipartBody 返回表单内容及其 Content-Type
func multipartBody(fields map[string]string, filename, contentType string, content []byte) ([]byte, string) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
		h.Set("Content-Type", contentType)
		part, _ := w.CreatePart(h)
		_, _ = part.Write(content)
	}
	_ = w.Close()
	return buf.Bytes(), w.FormDataContentType()
}

func decode(t *testing.T, w *ut.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Result().Body(), &out), string(w.Result().Body()))
	return out
}

func passages(letters ...string) []byte {
	var b bytes.Buffer
	for i, l := range letters {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.Write(bytes.Repeat([]byte(l), 120))
	}
	return b.Bytes()
}
