// postgres_chunks.go implements embedding-chunk, insight, and sync-debt
// operations for the Postgres backend.
//
// Chunks use a pgvector column; SearchSimilarChunks orders by the <=>
// cosine-distance operator so the nearest-neighbour index is used. Chunk
// plan application batches deletes and inserts inside one transaction.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// ChunksForDocument returns the current chunk set ordered by index.
func (s *PostgresStore) ChunksForDocument(ctx context.Context, docID uuid.UUID) ([]EmbeddingChunk, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, document_id, content_hash, chunk_index, content, embedding, created_at
		FROM embedding_chunks WHERE document_id = $1 ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()
	return scanChunksPg(rows)
}

func scanChunksPg(rows pgx.Rows) ([]EmbeddingChunk, error) {
	var out []EmbeddingChunk
	for rows.Next() {
		var c EmbeddingChunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ContentHash, &c.ChunkIndex, &c.Content, &vec, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = vec.Slice()
		out = append(out, c)
	}
	return out, rows.Err()
}

// ApplyChunkPlan applies inserts and deletes atomically in one transaction.
func (s *PostgresStore) ApplyChunkPlan(ctx context.Context, docID uuid.UUID, inserts []EmbeddingChunk, deletes []uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, id := range deletes {
		batch.Queue(`DELETE FROM embedding_chunks WHERE id = $1 AND document_id = $2`, id, docID)
	}
	for _, c := range inserts {
		batch.Queue(`INSERT INTO embedding_chunks (id, document_id, content_hash, chunk_index, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.DocumentID, c.ContentHash, c.ChunkIndex, c.Content, pgvector.NewVector(c.Embedding), c.CreatedAt)
	}
	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("apply chunk plan: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("apply chunk plan: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SearchSimilarChunks returns the chunks nearest to the query embedding
// using the pgvector cosine-distance operator.
func (s *PostgresStore) SearchSimilarChunks(ctx context.Context, embedding []float32, limit int) ([]EmbeddingChunk, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, document_id, content_hash, chunk_index, content, embedding, created_at
		FROM embedding_chunks
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()
	return scanChunksPg(rows)
}

// AddInsight stores an externally-produced insight record.
func (s *PostgresStore) AddInsight(ctx context.Context, in *Insight) error {
	if !in.Kind.Valid() {
		return fmt.Errorf("%w: unknown insight kind %q", ErrValidation, in.Kind)
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrValidation, in.Confidence)
	}
	meta, err := encodeJSON(in.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO insights (id, document_id, kind, content, confidence, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		in.ID, in.DocumentID, string(in.Kind), in.Content, in.Confidence, meta, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("add insight: %w", err)
	}
	return nil
}

// InsightsForDocument returns insights newest-first.
func (s *PostgresStore) InsightsForDocument(ctx context.Context, docID uuid.UUID) ([]Insight, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, document_id, kind, content, confidence, metadata, created_at
		FROM insights WHERE document_id = $1 ORDER BY created_at DESC, id`, docID)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	var out []Insight
	for rows.Next() {
		var in Insight
		var meta string
		if err := rows.Scan(&in.ID, &in.DocumentID, &in.Kind, &in.Content, &in.Confidence, &meta, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		if in.Metadata, err = decodeStringMap(meta); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// RecordDebt persists a new unresolved debt.
func (s *PostgresStore) RecordDebt(ctx context.Context, d *SyncDebt) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO sync_debts (id, document_id, stage, attempts, last_error, next_retry_at, surfaced, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`,
		d.ID, d.DocumentID, string(d.Stage), d.Attempts, d.LastError, d.NextRetryAt, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("record debt: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryDebtsPg(ctx context.Context, q string, args ...any) ([]SyncDebt, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	var out []SyncDebt
	for rows.Next() {
		var d SyncDebt
		var resolved *int64
		if err := rows.Scan(&d.ID, &d.DocumentID, &d.Stage, &d.Attempts, &d.LastError, &d.NextRetryAt, &d.Surfaced, &d.CreatedAt, &resolved); err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		d.ResolvedAt = resolved
		out = append(out, d)
	}
	return out, rows.Err()
}

// DueDebts returns unresolved, unsurfaced debts due at or before now.
// FOR UPDATE SKIP LOCKED lets multiple scheduler instances claim disjoint
// batches.
func (s *PostgresStore) DueDebts(ctx context.Context, now time.Time, limit int) ([]SyncDebt, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryDebtsPg(ctx, `SELECT id, document_id, stage, attempts, last_error, next_retry_at, surfaced, created_at, resolved_at
		FROM sync_debts
		WHERE resolved_at IS NULL AND NOT surfaced AND next_retry_at <= $1
		ORDER BY next_retry_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now.Unix(), limit)
}

// UnresolvedDebts returns open debts for one document.
func (s *PostgresStore) UnresolvedDebts(ctx context.Context, docID uuid.UUID) ([]SyncDebt, error) {
	return s.queryDebtsPg(ctx, `SELECT id, document_id, stage, attempts, last_error, next_retry_at, surfaced, created_at, resolved_at
		FROM sync_debts WHERE document_id = $1 AND resolved_at IS NULL ORDER BY created_at`, docID)
}

func (s *PostgresStore) execDebtUpdate(ctx context.Context, q string, args ...any) error {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update debt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveDebt marks a debt repaid.
func (s *PostgresStore) ResolveDebt(ctx context.Context, id uuid.UUID) error {
	return s.execDebtUpdate(ctx, `UPDATE sync_debts SET resolved_at = $1 WHERE id = $2 AND resolved_at IS NULL`,
		time.Now().Unix(), id)
}

// RescheduleDebt bumps the attempt counter and next retry time.
func (s *PostgresStore) RescheduleDebt(ctx context.Context, id uuid.UUID, attempts int, lastError string, next time.Time) error {
	return s.execDebtUpdate(ctx, `UPDATE sync_debts SET attempts = $1, last_error = $2, next_retry_at = $3
		WHERE id = $4 AND resolved_at IS NULL`, attempts, lastError, next.Unix(), id)
}

// SurfaceDebt marks a debt as exhausted.
func (s *PostgresStore) SurfaceDebt(ctx context.Context, id uuid.UUID) error {
	return s.execDebtUpdate(ctx, `UPDATE sync_debts SET surfaced = TRUE WHERE id = $1 AND resolved_at IS NULL`, id)
}
