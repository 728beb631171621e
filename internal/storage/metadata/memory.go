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

package metadata

import (
	"context"
	"sort"
	"sync"
	"time"

	"rag-indexer/internal/pipeline/common"
	apperrors "rag-indexer/pkg/errors"
)

// MemoryStore 内存文档目录实现
type MemoryStore struct {
	docs   map[string]*Document
	chunks map[string][]common.Chunk
	mu     sync.RWMutex
	now    func() time.Time
}

// NewMemoryStore 创建新的内存文档目录
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]*Document),
		chunks: make(map[string][]common.Chunk),
		now:    time.Now,
	}
}

func notFound(id string) error {
	return apperrors.Wrapf(apperrors.ErrNotFound, "document %s", id)
}

func notProcessing(id string, status common.DocumentStatus) error {
	return apperrors.Wrapf(apperrors.ErrConflict, "document %s is %s, not processing", id, status)
}

// Create 创建文档
func (s *MemoryStore) Create(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; exists {
		return apperrors.Wrapf(apperrors.ErrConflict, "document %s", doc.ID)
	}
	now := s.now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = common.StatusPending
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

// Get 根据 ID 获取文档
func (s *MemoryStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.docs[id]
	if !exists {
		return nil, notFound(id)
	}
	return doc.Clone(), nil
}

// List 列出会话可见的文档
func (s *MemoryStore) List(ctx context.Context, sessionID string, limit, offset int) ([]*Document, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var visible []*Document
	for _, d := range s.docs {
		if d.SessionID == sessionID || d.IsSample {
			visible = append(visible, d.Clone())
		}
	}
	sortNewestFirst(visible)
	return paginate(visible, limit, offset), len(visible), nil
}

// ListSamples 列出样例文档
func (s *MemoryStore) ListSamples(ctx context.Context) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var samples []*Document
	for _, d := range s.docs {
		if d.IsSample {
			samples = append(samples, d.Clone())
		}
	}
	sortNewestFirst(samples)
	return samples, nil
}

// CountSamples 样例文档数量
func (s *MemoryStore) CountSamples(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, d := range s.docs {
		if d.IsSample {
			n++
		}
	}
	return n, nil
}

// BeginProcessing 进入 processing
func (s *MemoryStore) BeginProcessing(ctx context.Context, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[id]
	if !exists {
		return nil, notFound(id)
	}
	doc.Status = common.StatusProcessing
	doc.ErrorMessage = ""
	doc.UpdatedAt = s.now()
	return doc.Clone(), nil
}

// CompleteIndexing 替换切片并置为 indexed；仅允许从 processing 迁移
func (s *MemoryStore) CompleteIndexing(ctx context.Context, id string, chunks []common.Chunk) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[id]
	if !exists {
		return nil, notFound(id)
	}
	if doc.Status != common.StatusProcessing {
		return nil, notProcessing(id, doc.Status)
	}
	s.chunks[id] = append([]common.Chunk(nil), chunks...)
	doc.Status = common.StatusIndexed
	doc.ChunkCount = len(chunks)
	doc.ErrorMessage = ""
	doc.UpdatedAt = s.now()
	return doc.Clone(), nil
}

// MarkFailed 置为 failed；仅允许从 processing 迁移
func (s *MemoryStore) MarkFailed(ctx context.Context, id string, message string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[id]
	if !exists {
		return nil, notFound(id)
	}
	if doc.Status != common.StatusProcessing {
		return nil, notProcessing(id, doc.Status)
	}
	doc.Status = common.StatusFailed
	doc.ErrorMessage = message
	doc.UpdatedAt = s.now()
	return doc.Clone(), nil
}

// GetChunks 返回文档切片
func (s *MemoryStore) GetChunks(ctx context.Context, id string) ([]common.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.docs[id]; !exists {
		return nil, notFound(id)
	}
	return append([]common.Chunk(nil), s.chunks[id]...), nil
}

// Delete 删除文档及切片
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; !exists {
		return notFound(id)
	}
	delete(s.docs, id)
	delete(s.chunks, id)
	return nil
}

// Close 关闭存储连接
func (s *MemoryStore) Close() error {
	return nil
}

func sortNewestFirst(docs []*Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}

func paginate(docs []*Document, limit, offset int) []*Document {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(docs) {
		return []*Document{}
	}
	docs = docs[offset:]
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}
