// sqlite_chunks.go implements embedding-chunk operations for the SQLite
// backend.
//
// Design: ApplyChunkPlan runs all inserts and deletes in one transaction so
// a reconciliation is never observed half-applied. Similarity search is a
// brute-force cosine scan over decoded blobs; the Postgres backend uses a
// pgvector index for the same contract.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

const chunkColumns = `id, document_id, content_hash, chunk_index, content, embedding, created_at`

func scanChunk(sc scanner) (EmbeddingChunk, error) {
	var c EmbeddingChunk
	var id, docID string
	var blob []byte
	if err := sc.Scan(&id, &docID, &c.ContentHash, &c.ChunkIndex, &c.Content, &blob, &c.CreatedAt); err != nil {
		return c, err
	}
	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return c, fmt.Errorf("parse chunk id: %w", err)
	}
	if c.DocumentID, err = uuid.Parse(docID); err != nil {
		return c, fmt.Errorf("parse document id: %w", err)
	}
	c.Embedding = decodeVector(blob)
	return c, nil
}

// ChunksForDocument returns the current chunk set ordered by index.
func (s *SQLiteStore) ChunksForDocument(ctx context.Context, docID uuid.UUID) ([]EmbeddingChunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM embedding_chunks
		WHERE document_id = ? ORDER BY chunk_index`, docID.String())
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var out []EmbeddingChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ApplyChunkPlan applies inserts and deletes atomically.
func (s *SQLiteStore) ApplyChunkPlan(ctx context.Context, docID uuid.UUID, inserts []EmbeddingChunk, deletes []uuid.UUID) error {
	return s.Tx(ctx, func(tx *sql.Tx) error {
		for _, id := range deletes {
			if _, err := tx.ExecContext(ctx, `DELETE FROM embedding_chunks WHERE id = ? AND document_id = ?`,
				id.String(), docID.String()); err != nil {
				return fmt.Errorf("delete chunk %s: %w", id, err)
			}
		}
		for _, c := range inserts {
			if _, err := tx.ExecContext(ctx, `INSERT INTO embedding_chunks (`+chunkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				c.ID.String(), c.DocumentID.String(), c.ContentHash, c.ChunkIndex, c.Content,
				encodeVector(c.Embedding), c.CreatedAt); err != nil {
				return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
			}
		}
		return nil
	})
}

// SearchSimilarChunks returns the limit chunks nearest to the query
// embedding by cosine similarity. Full scan; fine at local scale.
func (s *SQLiteStore) SearchSimilarChunks(ctx context.Context, embedding []float32, limit int) ([]EmbeddingChunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM embedding_chunks`)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	type scored struct {
		chunk EmbeddingChunk
		score float64
	}
	var all []scored
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		all = append(all, scored{chunk: c, score: cosineSimilarity(embedding, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].chunk.ID.String() < all[j].chunk.ID.String()
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]EmbeddingChunk, len(all))
	for i, s := range all {
		out[i] = s.chunk
	}
	return out, nil
}
