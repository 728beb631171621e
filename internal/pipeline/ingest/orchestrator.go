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

package ingest

import (
	"context"
	"errors"
	"time"

	"rag-indexer/internal/model/embedding"
	"rag-indexer/internal/pipeline/common"
	"rag-indexer/internal/storage/lock"
	"rag-indexer/internal/storage/metadata"
	"rag-indexer/internal/storage/object"
	apperrors "rag-indexer/pkg/errors"
	"rag-indexer/pkg/log"
	"rag-indexer/pkg/metrics"
	"rag-indexer/pkg/tracing"
)

// ObjectServiceName 对象存储在错误消息中的名称
const ObjectServiceName = "object_storage"

// Embedder 批量向量化，输出与输入一一对应
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorWriter 索引阶段对向量库的写操作
type VectorWriter interface {
	UpsertBatch(ctx context.Context, records []VectorRecord) error
	DeleteIDs(ctx context.Context, ids []string) error
}

// Result 单次索引的结果；Err 为空即成功
type Result struct {
	DocumentID string                `json:"document_id"`
	Status     common.DocumentStatus `json:"status"`
	ChunkCount int                   `json:"chunk_count"`
	Kind       apperrors.Kind        `json:"kind,omitempty"`
	Message    string                `json:"message,omitempty"`
	Err        error                 `json:"-"`
}

// OK 是否成功
func (r Result) OK() bool { return r.Err == nil }

// OrchestratorDeps 编排器依赖
type OrchestratorDeps struct {
	Catalog  metadata.Store
	Objects  object.Store
	Parser   Parser
	Chunker  *Chunker
	Embedder Embedder
	Vectors  VectorWriter
	Locker   lock.Locker
	LeaseTTL time.Duration
	Logger   *log.Logger
}

// Orchestrator 驱动单个文档走完 download → parse → chunk → embed → index → persist，
// 并保证文档最终停在 indexed 或 failed
type Orchestrator struct {
	catalog  metadata.Store
	objects  object.Store
	parser   Parser
	chunker  *Chunker
	embedder Embedder
	vectors  VectorWriter
	locker   lock.Locker
	leaseTTL time.Duration
	logger   *log.Logger
}

// NewOrchestrator 创建编排器
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Chunker == nil {
		deps.Chunker = NewChunker(DefaultMaxChunkSize, 0)
	}
	if deps.Parser == nil {
		deps.Parser = NewDocumentParser(deps.Logger)
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker()
	}
	if deps.LeaseTTL <= 0 {
		deps.LeaseTTL = lock.DefaultTTL
	}
	if deps.Logger == nil {
		deps.Logger = log.Nop()
	}
	return &Orchestrator{
		catalog:  deps.Catalog,
		objects:  deps.Objects,
		parser:   deps.Parser,
		chunker:  deps.Chunker,
		embedder: deps.Embedder,
		vectors:  deps.Vectors,
		locker:   deps.Locker,
		leaseTTL: deps.LeaseTTL,
		logger:   deps.Logger.Component("orchestrator"),
	}
}

// LeaseKey 文档索引租约的 key
func LeaseKey(documentID string) string { return "index:" + documentID }

// Index 索引一个已登记的文档。
// 文档不存在时不做任何状态变更；同一文档已有进行中的索引时返回 conflict。
// 失败只在目录中记录一次，并以失败结果返回，不向调用方抛出。
func (o *Orchestrator) Index(ctx context.Context, documentID string) Result {
	doc, err := o.catalog.Get(ctx, documentID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			err = apperrors.NotFound("Document", documentID)
		}
		return failure(documentID, "", 0, err)
	}

	lease, err := o.locker.Acquire(ctx, LeaseKey(documentID), o.leaseTTL)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			err = apperrors.Conflict("Document is already being indexed")
		} else {
			err = apperrors.External("lock", err)
		}
		return failure(documentID, doc.Status, doc.ChunkCount, err)
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			o.logger.Warn("释放索引租约失败", "document_id", documentID, "error", rerr)
		}
	}()

	ctx, span := tracing.StartIndexSpan(ctx, documentID)
	start := time.Now()

	doc, err = o.catalog.BeginProcessing(ctx, documentID)
	if err != nil {
		tracing.EndSpan(span, err)
		if apperrors.Is(err, apperrors.ErrNotFound) {
			err = apperrors.NotFound("Document", documentID)
		}
		return failure(documentID, "", 0, err)
	}
	previousCount := doc.ChunkCount
	o.logger.Info("开始索引文档", "document_id", documentID, "filename", doc.Filename)

	run := &indexRun{doc: doc}
	err = o.run(ctx, run)
	if err != nil {
		res := o.fail(ctx, run, err)
		tracing.EndSpan(span, err)
		o.observe("failed", start)
		return res
	}

	o.cleanupStale(ctx, documentID, run.chunkCount, previousCount)
	tracing.EndSpan(span, nil)
	o.observe("indexed", start)
	metrics.ChunksTotal.Add(float64(run.chunkCount))
	o.logger.Info("文档索引完成", "document_id", documentID, "chunks", run.chunkCount, "duration", time.Since(start))

	return Result{DocumentID: documentID, Status: common.StatusIndexed, ChunkCount: run.chunkCount}
}

// indexRun 单次运行的中间状态
type indexRun struct {
	doc        *metadata.Document
	upserted   []string
	chunkCount int
}

func (o *Orchestrator) run(ctx context.Context, r *indexRun) error {
	id := r.doc.ID

	var content []byte
	err := o.stage(ctx, common.StageDownload, id, func(ctx context.Context) error {
		var err error
		content, err = o.objects.Download(ctx, r.doc.StoragePath)
		if err != nil {
			return apperrors.External(ObjectServiceName, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var text string
	err = o.stage(ctx, common.StageParse, id, func(ctx context.Context) error {
		text = o.parser.Parse(ctx, content, r.doc.ContentType, r.doc.Filename)
		return nil
	})
	if err != nil {
		return err
	}

	var chunks []common.Chunk
	err = o.stage(ctx, common.StageChunk, id, func(ctx context.Context) error {
		chunks = o.chunker.Chunk(text, id, map[string]interface{}{"filename": r.doc.Filename})
		if len(chunks) == 0 {
			return &apperrors.AppError{Kind: apperrors.KindValidation, Message: common.ErrNoChunks.Error(), Err: common.ErrNoChunks}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var vectors [][]float64
	err = o.stage(ctx, common.StageEmbed, id, func(ctx context.Context) error {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
		}
		var err error
		vectors, err = o.embedder.Embed(ctx, texts)
		if err != nil && apperrors.KindOf(err) == apperrors.KindUnknown {
			err = apperrors.External(embedding.ServiceName, err)
		}
		return err
	})
	if err != nil {
		return err
	}

	err = o.stage(ctx, common.StageIndex, id, func(ctx context.Context) error {
		records := make([]VectorRecord, len(chunks))
		for i, ch := range chunks {
			records[i] = VectorRecord{
				ID:       ch.ID,
				Values:   vectors[i],
				Metadata: ChunkMetadata(ch, r.doc.Filename, r.doc.SessionID),
			}
			r.upserted = append(r.upserted, ch.ID)
		}
		return o.vectors.UpsertBatch(ctx, records)
	})
	if err != nil {
		return err
	}

	return o.stage(ctx, common.StagePersist, id, func(ctx context.Context) error {
		doc, err := o.catalog.CompleteIndexing(ctx, id, chunks)
		if err != nil {
			return err
		}
		r.chunkCount = doc.ChunkCount
		return nil
	})
}

// stage 在阶段 span 内执行 fn，错误包装为 PipelineError
func (o *Orchestrator) stage(ctx context.Context, name, documentID string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return common.NewPipelineError(name, "cancelled", err)
	}
	ctx, span := tracing.StartStageSpan(ctx, name, documentID)
	err := fn(ctx)
	tracing.EndSpan(span, err)
	if err != nil {
		return common.NewPipelineError(name, apperrors.MessageOf(err), err)
	}
	return nil
}

// fail 回滚本次写入的向量并把文档置为 failed
func (o *Orchestrator) fail(ctx context.Context, r *indexRun, err error) Result {
	ctx = context.WithoutCancel(ctx)
	id := r.doc.ID
	message := apperrors.MessageOf(err)
	stage := ""
	if pe, ok := common.GetPipelineError(err); ok {
		stage = pe.Stage
		message = pe.Message
	}
	o.logger.Error("文档索引失败", "document_id", id, "stage", stage, "error", err)

	if len(r.upserted) > 0 {
		if derr := o.vectors.DeleteIDs(ctx, r.upserted); derr != nil {
			o.logger.Warn("回滚向量失败", "document_id", id, "count", len(r.upserted), "error", derr)
		}
	}

	status := common.StatusFailed
	chunkCount := r.doc.ChunkCount
	if doc, merr := o.catalog.MarkFailed(ctx, id, message); merr != nil {
		o.logger.Error("记录失败状态出错", "document_id", id, "error", merr)
		status = r.doc.Status
	} else {
		chunkCount = doc.ChunkCount
	}
	res := failure(id, status, chunkCount, err)
	res.Message = message
	return res
}

// cleanupStale 删除上一次更长的运行留下、本次已不存在的向量
func (o *Orchestrator) cleanupStale(ctx context.Context, documentID string, newCount, previousCount int) {
	stale := common.ChunkIDs(documentID, newCount, previousCount)
	if len(stale) == 0 {
		return
	}
	if err := o.vectors.DeleteIDs(context.WithoutCancel(ctx), stale); err != nil {
		o.logger.Warn("清理过期向量失败", "document_id", documentID, "count", len(stale), "error", err)
	}
}

func (o *Orchestrator) observe(status string, start time.Time) {
	metrics.IndexingDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	metrics.IndexingTotal.WithLabelValues(status).Inc()
}

func failure(documentID string, status common.DocumentStatus, chunkCount int, err error) Result {
	return Result{
		DocumentID: documentID,
		Status:     status,
		ChunkCount: chunkCount,
		Kind:       apperrors.KindOf(err),
		Message:    apperrors.MessageOf(err),
		Err:        err,
	}
}
