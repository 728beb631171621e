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
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rag-indexer/internal/pipeline/common"
	apperrors "rag-indexer/pkg/errors"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
  id            UUID PRIMARY KEY,
  filename      TEXT NOT NULL,
  content_type  VARCHAR(100) NOT NULL,
  file_size     BIGINT NOT NULL,
  storage_path  TEXT NOT NULL,
  session_id    VARCHAR(36) NOT NULL,
  status        VARCHAR(20) NOT NULL DEFAULT 'pending',
  chunk_count   INTEGER NOT NULL DEFAULT 0,
  error_message TEXT,
  is_sample     BOOLEAN NOT NULL DEFAULT FALSE,
  category      TEXT,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_documents_session_id ON documents (session_id);
CREATE INDEX IF NOT EXISTS idx_documents_is_sample ON documents (is_sample);
CREATE TABLE IF NOT EXISTS document_chunks (
  id          UUID PRIMARY KEY,
  document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
  chunk_index INTEGER NOT NULL,
  text        TEXT NOT NULL,
  char_start  INTEGER NOT NULL,
  char_end    INTEGER NOT NULL,
  UNIQUE (document_id, chunk_index)
);
`

const documentColumns = `id, filename, content_type, file_size, storage_path, session_id, status,
chunk_count, error_message, is_sample, category, created_at, updated_at`

// pgStore PostgreSQL 文档目录：documents + document_chunks（ON DELETE CASCADE）
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 连接数据库并建表；poolSize<=0 使用 pgx 默认
func NewPostgresStore(ctx context.Context, dsn string, poolSize int) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if poolSize > 0 {
		config.MaxConns = int32(poolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, "初始化 catalog 表失败")
	}
	return &pgStore{pool: pool}, nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var (
		d        Document
		status   string
		errMsg   *string
		category *string
	)
	err := row.Scan(&d.ID, &d.Filename, &d.ContentType, &d.FileSize, &d.StoragePath, &d.SessionID, &status,
		&d.ChunkCount, &errMsg, &d.IsSample, &category, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = common.DocumentStatus(status)
	if errMsg != nil {
		d.ErrorMessage = *errMsg
	}
	if category != nil {
		d.Category = *category
	}
	return &d, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *pgStore) Create(ctx context.Context, doc *Document) error {
	if doc.Status == "" {
		doc.Status = common.StatusPending
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO documents (id, filename, content_type, file_size, storage_path, session_id, status, is_sample, category)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at`,
		doc.ID, doc.Filename, doc.ContentType, doc.FileSize, doc.StoragePath, doc.SessionID,
		string(doc.Status), doc.IsSample, nullable(doc.Category),
	)
	return row.Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

// validID 非 UUID 的 id 不可能存在
func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return notFound(id)
	}
	return nil
}

func (s *pgStore) Get(ctx context.Context, id string) (*Document, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	d, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	return d, err
}

func (s *pgStore) queryDocuments(ctx context.Context, sql string, args ...any) ([]*Document, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *pgStore) List(ctx context.Context, sessionID string, limit, offset int) ([]*Document, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM documents WHERE session_id = $1 OR is_sample`, sessionID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE session_id = $1 OR is_sample
ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		sessionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (s *pgStore) ListSamples(ctx context.Context) ([]*Document, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE is_sample ORDER BY created_at DESC, id DESC`)
}

func (s *pgStore) CountSamples(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE is_sample`).Scan(&n)
	return n, err
}

func (s *pgStore) BeginProcessing(ctx context.Context, id string) (*Document, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	d, err := scanDocument(s.pool.QueryRow(ctx,
		`UPDATE documents SET status = 'processing', error_message = NULL, updated_at = now()
WHERE id = $1 RETURNING `+documentColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	return d, err
}

// CompleteIndexing 切片替换与状态翻转同一事务提交
func (s *pgStore) CompleteIndexing(ctx context.Context, id string, chunks []common.Chunk) (*Document, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM documents WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	if status != string(common.StatusProcessing) {
		return nil, notProcessing(id, common.DocumentStatus(status))
	}

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, id); err != nil {
		return nil, err
	}
	docUUID, err := uuid.Parse(id)
	if err != nil {
		return nil, notFound(id)
	}
	// COPY 走二进制协议，uuid 列需传 uuid.UUID
	rows := make([][]any, len(chunks))
	for i, c := range chunks {
		chunkUUID, err := uuid.Parse(c.ID)
		if err != nil {
			return nil, err
		}
		rows[i] = []any{chunkUUID, docUUID, c.Index, c.Text, c.CharStart, c.CharEnd}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"document_chunks"},
		[]string{"id", "document_id", "chunk_index", "text", "char_start", "char_end"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return nil, apperrors.Wrap(err, "写入切片失败")
	}

	d, err := scanDocument(tx.QueryRow(ctx,
		`UPDATE documents SET status = 'indexed', chunk_count = $2, error_message = NULL, updated_at = now()
WHERE id = $1 RETURNING `+documentColumns, id, len(chunks)))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *pgStore) MarkFailed(ctx context.Context, id string, message string) (*Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx,
		`UPDATE documents SET status = 'failed', error_message = $2, updated_at = now()
WHERE id = $1 AND status = 'processing' RETURNING `+documentColumns, id, message))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := s.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, apperrors.Wrapf(apperrors.ErrConflict, "document %s is not processing", id)
	}
	return d, err
}

func (s *pgStore) GetChunks(ctx context.Context, id string) ([]common.Chunk, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, chunk_index, text, char_start, char_end
FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []common.Chunk
	for rows.Next() {
		var c common.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &c.CharStart, &c.CharEnd); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *pgStore) Delete(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}
