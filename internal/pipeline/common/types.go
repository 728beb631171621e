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

package common

import (
	"fmt"

	"github.com/google/uuid"
)

// DocumentStatus 文档索引状态；只允许 pending→processing→{indexed,failed}
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusIndexed    DocumentStatus = "indexed"
	StatusFailed     DocumentStatus = "failed"
)

// SampleSessionID 示例文档的归属 session，对所有 session 可见
const SampleSessionID = "00000000-0000-0000-0000-000000000000"

// Chunk 文档切片（passage）：检索与向量化的基本单位
type Chunk struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	Index      int                    `json:"chunk_index"`
	Text       string                 `json:"text"`
	CharStart  int                    `json:"char_start"`
	CharEnd    int                    `json:"char_end"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ChunkID 由 (documentID, index) 派生确定性 ID（UUIDv5，DNS 命名空间）；同一文档重切片得到相同 ID，向量索引可按 ID 幂等 upsert
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fmt.Sprintf("%s_%d", documentID, index))).String()
}

// ChunkIDs 返回 [from, to) 区间内的确定性 ID
func ChunkIDs(documentID string, from, to int) []string {
	if to <= from {
		return nil
	}
	ids := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		ids = append(ids, ChunkID(documentID, i))
	}
	return ids
}
