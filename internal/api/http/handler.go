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

package http

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	appsvc "rag-indexer/internal/app"
	"rag-indexer/internal/pipeline/ingest"
	"rag-indexer/internal/storage/metadata"
	apperrors "rag-indexer/pkg/errors"
	"rag-indexer/pkg/metrics"
)

const (
	serviceName    = "rag-indexer"
	serviceVersion = "1.0.0"
)

// HealthFunc 向量索引健康检查
type HealthFunc func(ctx context.Context) bool

// Handler HTTP 处理器
type Handler struct {
	docs    *appsvc.DocumentService
	search  *appsvc.SearchService
	ask     *appsvc.AskService
	samples *appsvc.SampleService
	health  HealthFunc
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(docs *appsvc.DocumentService, search *appsvc.SearchService, ask *appsvc.AskService, samples *appsvc.SampleService, health HealthFunc) *Handler {
	return &Handler{docs: docs, search: search, ask: ask, samples: samples, health: health}
}

// DocumentList 文档列表响应
type DocumentList struct {
	Documents []*metadata.Document `json:"documents"`
	Total     int                  `json:"total"`
}

// Root GET /
func (h *Handler) Root(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]string{"name": serviceName, "version": serviceVersion})
}

// Healthcheck GET /healthcheck
func (h *Handler) Healthcheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheck GET /health
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	healthy := h.health == nil || h.health(ctx)
	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"status": status, "vector_index": healthy})
}

// Metrics GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		hlog.CtxErrorf(ctx, "write metrics: %v", err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// UploadDocument POST /api/v1/rag/documents（multipart: file, session_id）
func (h *Handler) UploadDocument(ctx context.Context, c *app.RequestContext) {
	content, filename, contentType, err := readUpload(c)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	res, err := h.docs.Upload(ctx, appsvc.UploadRequest{
		Content:     content,
		Filename:    filename,
		ContentType: contentType,
		SessionID:   string(c.FormValue("session_id")),
	})
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if !res.Result.OK() {
		writeIndexFailure(ctx, c, res.Result)
		return
	}
	c.JSON(consts.StatusOK, res.Document)
}

// ListDocuments GET /api/v1/rag/documents?session_id=&limit=&offset=
func (h *Handler) ListDocuments(ctx context.Context, c *app.RequestContext) {
	limit, err := intQuery(c, "limit", appsvc.DefaultListLimit)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	docs, total, err := h.docs.List(ctx, c.Query("session_id"), limit, offset)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if docs == nil {
		docs = []*metadata.Document{}
	}
	c.JSON(consts.StatusOK, DocumentList{Documents: docs, Total: total})
}

// GetDocument GET /api/v1/rag/documents/:id
func (h *Handler) GetDocument(ctx context.Context, c *app.RequestContext) {
	doc, err := h.docs.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, doc)
}

// DeleteDocument DELETE /api/v1/rag/documents/:id?session_id=
func (h *Handler) DeleteDocument(ctx context.Context, c *app.RequestContext) {
	if err := h.docs.Delete(ctx, c.Param("id"), c.Query("session_id")); err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]string{"message": "Document deleted successfully"})
}

// ReindexDocument POST /api/v1/rag/documents/:id/reindex?session_id=
func (h *Handler) ReindexDocument(ctx context.Context, c *app.RequestContext) {
	res, err := h.docs.Reindex(ctx, c.Param("id"), c.Query("session_id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if !res.Result.OK() {
		writeIndexFailure(ctx, c, res.Result)
		return
	}
	c.JSON(consts.StatusOK, res.Document)
}

// Search POST /api/v1/rag/search
func (h *Handler) Search(ctx context.Context, c *app.RequestContext) {
	var req appsvc.SearchRequest
	if err := c.BindJSON(&req); err != nil {
		writeError(ctx, c, apperrors.Validation("Invalid request body"))
		return
	}
	resp, err := h.search.Search(ctx, req)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, resp)
}

// Query POST /api/v1/rag/query
func (h *Handler) Query(ctx context.Context, c *app.RequestContext) {
	var req appsvc.AskRequest
	if err := c.BindJSON(&req); err != nil {
		writeError(ctx, c, apperrors.Validation("Invalid request body"))
		return
	}
	answer, err := h.ask.Ask(ctx, req)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, answer)
}

// UploadSample POST /api/v1/admin/documents（multipart: file, category）
func (h *Handler) UploadSample(ctx context.Context, c *app.RequestContext) {
	content, filename, contentType, err := readUpload(c)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	category := string(c.FormValue("category"))
	if category == "" {
		category = appsvc.DefaultSampleCategory
	}
	res, err := h.samples.Upload(ctx, content, filename, contentType, category)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if !res.Result.OK() {
		writeIndexFailure(ctx, c, res.Result)
		return
	}
	doc := res.Document
	c.JSON(consts.StatusOK, map[string]interface{}{
		"id":           doc.ID,
		"filename":     doc.Filename,
		"content_type": doc.ContentType,
		"file_size":    doc.FileSize,
		"status":       doc.Status,
		"category":     doc.Category,
		"message":      "Sample document uploaded and indexed. Visible to all sessions.",
	})
}

// ListSamples GET /api/v1/admin/documents
func (h *Handler) ListSamples(ctx context.Context, c *app.RequestContext) {
	docs, err := h.samples.List(ctx)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if docs == nil {
		docs = []*metadata.Document{}
	}
	c.JSON(consts.StatusOK, DocumentList{Documents: docs, Total: len(docs)})
}

// DeleteSample DELETE /api/v1/admin/documents/:id
func (h *Handler) DeleteSample(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	if err := h.samples.Delete(ctx, id); err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]string{"message": "Sample document " + id + " deleted", "id": id})
}

// DeleteAllSamples DELETE /api/v1/admin/documents
func (h *Handler) DeleteAllSamples(ctx context.Context, c *app.RequestContext) {
	n, err := h.samples.DeleteAll(ctx)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"message":       "Deleted " + strconv.Itoa(n) + " sample documents",
		"deleted_count": n,
	})
}

// readUpload 读取 multipart 的 file 字段
func readUpload(c *app.RequestContext) ([]byte, string, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", "", apperrors.Validation("file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", "", apperrors.Validation("failed to read uploaded file")
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, "", "", apperrors.Validation("failed to read uploaded file")
	}
	return content, fh.Filename, fh.Header.Get("Content-Type"), nil
}

func intQuery(c *app.RequestContext, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.Validation(key + " must be an integer")
	}
	return n, nil
}

// writeError AppError 输出 {error, details}；未分类错误记录日志并返回 500
func writeError(ctx context.Context, c *app.RequestContext, err error) {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindUnknown {
		hlog.CtxErrorf(ctx, "unhandled error on %s %s: %v", c.Method(), c.Path(), err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	details := apperrors.DetailsOf(err)
	if details == nil {
		details = map[string]any{}
	}
	c.JSON(apperrors.HTTPStatus(kind), map[string]interface{}{
		"error":   apperrors.MessageOf(err),
		"details": details,
	})
}

// writeIndexFailure 索引失败：文档已落为 failed，按失败分类返回
func writeIndexFailure(ctx context.Context, c *app.RequestContext, res ingest.Result) {
	status := apperrors.HTTPStatus(res.Kind)
	if res.Kind == apperrors.KindUnknown {
		hlog.CtxErrorf(ctx, "indexing document %s failed: %v", res.DocumentID, res.Err)
	}
	c.JSON(status, map[string]interface{}{
		"error": res.Message,
		"details": map[string]any{
			"document_id": res.DocumentID,
			"status":      res.Status,
		},
	})
}
