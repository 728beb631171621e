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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-indexer/internal/pipeline/common"
	apperrors "rag-indexer/pkg/errors"
)

func newDoc(id, session string, sample bool, created time.Time) *Document {
	return &Document{
		ID:          id,
		Filename:    id + ".txt",
		ContentType: "text/plain",
		FileSize:    10,
		StoragePath: "documents/" + id + "/" + id + ".txt",
		SessionID:   session,
		IsSample:    sample,
		CreatedAt:   created,
	}
}

func TestMemoryStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newDoc("d1", "s1", false, time.Time{})))

	got, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, common.StatusPending, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	err = s.Create(ctx, newDoc("d1", "s1", false, time.Time{}))
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryStore_ListIncludesSamplesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, newDoc("mine-old", "s1", false, base)))
	require.NoError(t, s.Create(ctx, newDoc("sample", common.SampleSessionID, true, base.Add(time.Minute))))
	require.NoError(t, s.Create(ctx, newDoc("mine-new", "s1", false, base.Add(2*time.Minute))))
	require.NoError(t, s.Create(ctx, newDoc("other", "s2", false, base.Add(3*time.Minute))))

	docs, total, err := s.List(ctx, "s1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"mine-new", "sample", "mine-old"}, ids)

	page, total, err := s.List(ctx, "s1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "sample", page[0].ID)

	page, _, err = s.List(ctx, "s1", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, page)

	n, err := s.CountSamples(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_StateTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newDoc("d1", "s1", false, time.Time{})))

	// 未进入 processing 不允许直接完成
	_, err := s.CompleteIndexing(ctx, "d1", nil)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	assert.EqualError(t, err, "document d1 is pending, not processing: conflict")

	doc, err := s.BeginProcessing(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, common.StatusProcessing, doc.Status)

	chunks := []common.Chunk{
		{ID: common.ChunkID("d1", 0), DocumentID: "d1", Index: 0, Text: "a"},
		{ID: common.ChunkID("d1", 1), DocumentID: "d1", Index: 1, Text: "b"},
	}
	doc, err = s.CompleteIndexing(ctx, "d1", chunks)
	require.NoError(t, err)
	assert.Equal(t, common.StatusIndexed, doc.Status)
	assert.Equal(t, 2, doc.ChunkCount)

	// 重新索引失败：chunk_count 保持上次成功的值，error_message 仅在 failed 时存在
	_, err = s.BeginProcessing(ctx, "d1")
	require.NoError(t, err)
	doc, err = s.MarkFailed(ctx, "d1", "embedding error: boom")
	require.NoError(t, err)
	assert.Equal(t, common.StatusFailed, doc.Status)
	assert.Equal(t, 2, doc.ChunkCount)
	assert.Equal(t, "embedding error: boom", doc.ErrorMessage)

	doc, err = s.BeginProcessing(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, doc.ErrorMessage)

	_, err = s.MarkFailed(ctx, "missing", "x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newDoc("d1", "s1", false, time.Time{})))
	_, _ = s.BeginProcessing(ctx, "d1")
	var chunks []common.Chunk
	for i := 0; i < 3; i++ {
		chunks = append(chunks, common.Chunk{ID: common.ChunkID("d1", i), DocumentID: "d1", Index: i, Text: fmt.Sprint(i)})
	}
	_, err := s.CompleteIndexing(ctx, "d1", chunks)
	require.NoError(t, err)

	got, err := s.GetChunks(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	require.NoError(t, s.Delete(ctx, "d1"))
	_, err = s.GetChunks(ctx, "d1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "d1"), apperrors.ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newDoc("d1", "s1", false, time.Time{})))
	got, _ := s.Get(ctx, "d1")
	got.Status = common.StatusIndexed
	again, _ := s.Get(ctx, "d1")
	assert.Equal(t, common.StatusPending, again.Status)
}
