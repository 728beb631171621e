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

package object

import (
	"context"
	"fmt"
	"sync"

	apperrors "rag-indexer/pkg/errors"
)

// MemoryStore 内存对象存储实现
type MemoryStore struct {
	objects map[string]*object
	mu      sync.RWMutex
}

type object struct {
	data        []byte
	contentType string
}

// NewMemoryStore 创建新的内存对象存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*object),
	}
}

// Upload 上传对象
func (s *MemoryStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = &object{
		data:        append([]byte(nil), data...),
		contentType: contentType,
	}
	return "memory://" + key, nil
}

// Download 下载对象
func (s *MemoryStore) Download(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[key]
	if !exists {
		return nil, fmt.Errorf("object %s: %w", key, apperrors.ErrNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

// Delete 删除对象，不存在时返回 ErrNotFound
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[key]; !exists {
		return fmt.Errorf("object %s: %w", key, apperrors.ErrNotFound)
	}
	delete(s.objects, key)
	return nil
}

// Exists 检查对象是否存在
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.objects[key]
	return exists, nil
}

// Close 关闭存储连接
func (s *MemoryStore) Close() error {
	return nil
}
