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
	"time"

	"rag-indexer/internal/pipeline/common"
)

// Store 文档目录（catalog）：文档与切片记录，删除文档时级联删除切片。
//
// 状态迁移只通过 BeginProcessing / CompleteIndexing / MarkFailed 完成；
// 不存在的文档返回包装了 errors.ErrNotFound 的错误。
type Store interface {
	// Create 创建文档（status=pending）
	Create(ctx context.Context, doc *Document) error
	// Get 根据 ID 获取文档
	Get(ctx context.Context, id string) (*Document, error)
	// List 列出会话可见的文档（本会话 + 样例），按创建时间倒序，返回总数
	List(ctx context.Context, sessionID string, limit, offset int) ([]*Document, int, error)
	// ListSamples 列出全部样例文档
	ListSamples(ctx context.Context) ([]*Document, error)
	// CountSamples 样例文档数量
	CountSamples(ctx context.Context) (int, error)
	// BeginProcessing 进入 processing 并清空 error_message，返回更新后的文档
	BeginProcessing(ctx context.Context, id string) (*Document, error)
	// CompleteIndexing 在一个事务内替换切片记录、写入 chunk_count 并置为 indexed
	CompleteIndexing(ctx context.Context, id string, chunks []common.Chunk) (*Document, error)
	// MarkFailed 置为 failed 并记录错误信息，chunk_count 不变
	MarkFailed(ctx context.Context, id string, message string) (*Document, error)
	// GetChunks 按序返回文档的切片记录
	GetChunks(ctx context.Context, id string) ([]common.Chunk, error)
	// Delete 删除文档及其切片
	Delete(ctx context.Context, id string) error
	// Close 关闭存储连接
	Close() error
}

// Document 文档目录条目
type Document struct {
	ID           string                `json:"id"`
	Filename     string                `json:"filename"`
	ContentType  string                `json:"content_type"`
	FileSize     int64                 `json:"file_size"`
	StoragePath  string                `json:"storage_path"`
	SessionID    string                `json:"session_id"`
	Status       common.DocumentStatus `json:"status"`
	ChunkCount   int                   `json:"chunk_count"`
	ErrorMessage string                `json:"error_message,omitempty"`
	IsSample     bool                  `json:"is_sample"`
	Category     string                `json:"category,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Clone 返回副本
func (d *Document) Clone() *Document {
	c := *d
	return &c
}
