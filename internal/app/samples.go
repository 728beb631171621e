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
	"embed"
	"io/fs"
	"mime"
	"path"

	"rag-indexer/internal/pipeline/common"
	"rag-indexer/internal/pipeline/ingest"
	"rag-indexer/internal/storage/metadata"
	apperrors "rag-indexer/pkg/errors"
	"rag-indexer/pkg/log"
)

// DefaultSampleCategory 未指定分类时使用
const DefaultSampleCategory = "general"

//go:embed samples
var sampleCorpus embed.FS

// SampleService 样例文档：归属 SampleSessionID，对所有会话可见
type SampleService struct {
	docs    *DocumentService
	catalog metadata.Store
	corpus  fs.FS
	policy  ingest.UploadPolicy
	logger  *log.Logger
}

// NewSampleService corpus 为空时使用内置样例
func NewSampleService(docs *DocumentService, corpus fs.FS, maxSize int64, logger *log.Logger) *SampleService {
	if corpus == nil {
		corpus, _ = fs.Sub(sampleCorpus, "samples")
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &SampleService{
		docs:    docs,
		catalog: docs.catalog,
		corpus:  corpus,
		policy:  ingest.UploadPolicy{MaxSize: maxSize, AnyType: true},
		logger:  logger.Component("samples"),
	}
}

// Upload 上传并索引一个样例文档
func (s *SampleService) Upload(ctx context.Context, content []byte, filename, contentType, category string) (*UploadResult, error) {
	if filename == "" {
		filename = "unknown"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if category == "" {
		category = DefaultSampleCategory
	}
	if err := s.policy.Validate(filename, contentType, int64(len(content))); err != nil {
		return nil, err
	}
	res, err := s.docs.store(ctx, UploadRequest{
		Content:     content,
		Filename:    filename,
		ContentType: contentType,
		SessionID:   common.SampleSessionID,
	}, true, category)
	if err != nil {
		s.logger.ErrorContext(ctx, "样例文档上传失败", "filename", filename, "error", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "样例文档已上传", "document_id", res.Document.ID, "filename", filename, "category", category, "size", len(content))
	return res, nil
}

// List 全部样例文档，按创建时间倒序
func (s *SampleService) List(ctx context.Context) ([]*metadata.Document, error) {
	return s.catalog.ListSamples(ctx)
}

// Delete 删除一个样例文档；非样例文档返回 validation 错误
func (s *SampleService) Delete(ctx context.Context, id string) error {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return err
	}
	if !doc.IsSample {
		return apperrors.Validation("Only sample documents (is_sample=true) can be deleted via admin API")
	}
	return s.docs.remove(ctx, doc)
}

// DeleteAll 尽力删除全部样例文档，返回成功删除的数量
func (s *SampleService) DeleteAll(ctx context.Context) (int, error) {
	docs, err := s.catalog.ListSamples(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, doc := range docs {
		if err := s.docs.remove(ctx, doc); err != nil {
			s.logger.ErrorContext(ctx, "删除样例文档失败", "document_id", doc.ID, "error", err)
			continue
		}
		deleted++
	}
	s.logger.InfoContext(ctx, "样例文档已清空", "deleted", deleted)
	return deleted, nil
}

// Seed 目录中没有样例文档时导入内置语料；单个文件失败只记录日志。
// 一级子目录名作为分类
func (s *SampleService) Seed(ctx context.Context) (int, error) {
	n, err := s.catalog.CountSamples(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "已存在样例文档，跳过导入", "count", n)
		return 0, nil
	}

	seeded := 0
	err = fs.WalkDir(s.corpus, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		content, err := fs.ReadFile(s.corpus, p)
		if err != nil {
			s.logger.WarnContext(ctx, "读取样例文件失败", "path", p, "error", err)
			return nil
		}
		category := DefaultSampleCategory
		if dir := path.Dir(p); dir != "." {
			category = dir
		}
		res, err := s.Upload(ctx, content, path.Base(p), contentTypeOf(p), category)
		if err != nil {
			return nil
		}
		if !res.Result.OK() {
			s.logger.WarnContext(ctx, "样例文档索引失败", "path", p, "error", res.Result.Message)
			return nil
		}
		seeded++
		return nil
	})
	if err != nil {
		return seeded, err
	}
	s.logger.InfoContext(ctx, "样例文档导入完成", "count", seeded)
	return seeded, nil
}

func contentTypeOf(p string) string {
	switch path.Ext(p) {
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	}
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
