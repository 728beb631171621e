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
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"rag-indexer/internal/pipeline/common"
	"rag-indexer/internal/pipeline/ingest"
	"rag-indexer/internal/ratelimit"
	"rag-indexer/internal/storage/metadata"
	"rag-indexer/internal/storage/object"
	apperrors "rag-indexer/pkg/errors"
	"rag-indexer/pkg/log"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Indexer 索引一个已登记的文档
type Indexer interface {
	Index(ctx context.Context, documentID string) ingest.Result
}

// VectorRemover 删除文档的全部向量
type VectorRemover interface {
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
}

// UploadRequest 上传请求
type UploadRequest struct {
	Content     []byte
	Filename    string
	ContentType string
	SessionID   string
}

// UploadResult 上传并索引后的文档；Result 失败时 Document 为 failed 状态
type UploadResult struct {
	Document *metadata.Document
	Result   ingest.Result
}

// DocumentService 文档门面：上传即索引、列表、查询、删除、重建索引
type DocumentService struct {
	catalog metadata.Store
	objects object.Store
	vectors VectorRemover
	indexer Indexer
	limiter ratelimit.Limiter
	policy  ingest.UploadPolicy
	logger  *log.Logger
}

// DocumentServiceDeps DocumentService 依赖；Limiter 为空时不限流
type DocumentServiceDeps struct {
	Catalog metadata.Store
	Objects object.Store
	Vectors VectorRemover
	Indexer Indexer
	Limiter ratelimit.Limiter
	Policy  ingest.UploadPolicy
	Logger  *log.Logger
}

// NewDocumentService 创建文档门面（由 bootstrap 装配）
func NewDocumentService(deps DocumentServiceDeps) *DocumentService {
	if deps.Logger == nil {
		deps.Logger = log.Nop()
	}
	return &DocumentService{
		catalog: deps.Catalog,
		objects: deps.Objects,
		vectors: deps.Vectors,
		indexer: deps.Indexer,
		limiter: deps.Limiter,
		policy:  deps.Policy,
		logger:  deps.Logger.Component("documents"),
	}
}

// ValidateSessionID 会话 ID 必须是 36 字符的 UUID；样例会话只能经由 admin 接口使用
func ValidateSessionID(sessionID string) error {
	if len(sessionID) != 36 {
		return apperrors.Validation("Invalid session_id. Must be a valid UUID.")
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return apperrors.Validation("Invalid session_id. Must be a valid UUID.")
	}
	if sessionID == common.SampleSessionID {
		return apperrors.Validation("session_id is reserved for sample documents")
	}
	return nil
}

// Upload 校验、存储并同步索引文档
func (s *DocumentService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if err := ValidateSessionID(req.SessionID); err != nil {
		return nil, err
	}
	if err := checkRate(ctx, s.limiter, "upload:"+req.SessionID); err != nil {
		return nil, err
	}
	if err := s.policy.Validate(req.Filename, req.ContentType, int64(len(req.Content))); err != nil {
		return nil, err
	}
	return s.store(ctx, req, false, "")
}

// store 写入对象存储与目录（pending），再运行索引
func (s *DocumentService) store(ctx context.Context, req UploadRequest, isSample bool, category string) (*UploadResult, error) {
	id := uuid.NewString()
	filename := path.Base(strings.ReplaceAll(req.Filename, "\\", "/"))
	contentType := req.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}
	key := fmt.Sprintf("documents/%s/%s", id, filename)

	if _, err := s.objects.Upload(ctx, key, req.Content, contentType); err != nil {
		return nil, apperrors.External(ingest.ObjectServiceName, err)
	}
	doc := &metadata.Document{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		FileSize:    int64(len(req.Content)),
		StoragePath: key,
		SessionID:   req.SessionID,
		Status:      common.StatusPending,
		IsSample:    isSample,
		Category:    category,
	}
	if err := s.catalog.Create(ctx, doc); err != nil {
		if derr := s.objects.Delete(ctx, key); derr != nil {
			s.logger.WarnContext(ctx, "清理对象失败", "key", key, "error", derr)
		}
		return nil, err
	}
	s.logger.InfoContext(ctx, "文档已登记", "document_id", id, "filename", filename, "size", doc.FileSize, "is_sample", isSample)

	res := s.indexer.Index(ctx, id)
	current, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &UploadResult{Document: current, Result: res}, nil
}

// List 列出会话可见的文档（含样例），按创建时间倒序
func (s *DocumentService) List(ctx context.Context, sessionID string, limit, offset int) ([]*metadata.Document, int, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.catalog.List(ctx, sessionID, limit, offset)
}

// Get 返回文档；不存在时返回 not_found
func (s *DocumentService) Get(ctx context.Context, id string) (*metadata.Document, error) {
	doc, err := s.catalog.Get(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("Document", id)
		}
		return nil, err
	}
	return doc, nil
}

// Delete 删除会话自己的文档：向量与对象尽力删除，目录删除级联切片
func (s *DocumentService) Delete(ctx context.Context, id, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	doc, err := s.owned(ctx, id, sessionID, "delete")
	if err != nil {
		return err
	}
	return s.remove(ctx, doc)
}

// Reindex 重新索引会话自己的文档
func (s *DocumentService) Reindex(ctx context.Context, id, sessionID string) (*UploadResult, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, id, sessionID, "reindex"); err != nil {
		return nil, err
	}
	res := s.indexer.Index(ctx, id)
	current, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &UploadResult{Document: current, Result: res}, nil
}

// owned 取文档并校验归属；越权访问写安全日志
func (s *DocumentService) owned(ctx context.Context, id, sessionID, action string) (*metadata.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.SessionID != sessionID {
		s.logger.Security(ctx, "Unauthorized document access attempt",
			"action", action,
			"document_id", id,
			"session_id", sessionID,
			"owner_session_id", doc.SessionID,
		)
		return nil, apperrors.Security(fmt.Sprintf("You can only %s your own documents", action))
	}
	return doc, nil
}

func (s *DocumentService) remove(ctx context.Context, doc *metadata.Document) error {
	if n, err := s.vectors.DeleteByDocument(ctx, doc.ID); err != nil {
		s.logger.WarnContext(ctx, "删除文档向量失败", "document_id", doc.ID, "error", err)
	} else {
		s.logger.DebugContext(ctx, "已删除文档向量", "document_id", doc.ID, "count", n)
	}
	if err := s.objects.Delete(ctx, doc.StoragePath); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		s.logger.WarnContext(ctx, "删除文档对象失败", "document_id", doc.ID, "key", doc.StoragePath, "error", err)
	}
	if err := s.catalog.Delete(ctx, doc.ID); err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("Document", doc.ID)
		}
		return err
	}
	s.logger.InfoContext(ctx, "文档已删除", "document_id", doc.ID, "filename", doc.Filename)
	return nil
}

// checkRate limiter 为空时放行
func checkRate(ctx context.Context, limiter ratelimit.Limiter, key string) error {
	if limiter == nil {
		return nil
	}
	_, err := limiter.CheckAndRecord(ctx, key)
	return err
}
