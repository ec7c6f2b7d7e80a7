// indexer.go applies chunk reconciliation plans against the store.
//
// Ordering invariant: embeddings are computed before anything is persisted,
// and inserts+deletes are applied as one store batch. A provider failure
// therefore leaves the stored chunk set untouched and internally
// consistent; the coordinator records sync debt and retries later.

package chunk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/knostack/knosync/internal/embed"
	"github.com/knostack/knosync/internal/store"
)

// Indexer reconciles a document's stored chunk set with its content.
type Indexer struct {
	chunks   store.Chunks
	provider embed.Provider
	splitter Splitter
}

// NewIndexer creates an Indexer. A nil splitter uses ParagraphSplitter
// defaults.
func NewIndexer(chunks store.Chunks, provider embed.Provider, splitter Splitter) *Indexer {
	if splitter == nil {
		splitter = &ParagraphSplitter{}
	}
	return &Indexer{chunks: chunks, provider: provider, splitter: splitter}
}

// Reconcile brings the stored chunk set for a document in line with
// content. Unchanged chunks are kept without re-embedding; identical
// content is a no-op with zero provider calls.
func (ix *Indexer) Reconcile(ctx context.Context, docID uuid.UUID, content string) (Plan, error) {
	existing, err := ix.chunks.ChunksForDocument(ctx, docID)
	if err != nil {
		return Plan{}, fmt.Errorf("load chunks for %s: %w", docID, err)
	}

	plan := BuildPlan(existing, ix.splitter.Split(content))
	if plan.Empty() {
		return plan, nil
	}

	now := time.Now().Unix()
	inserts := make([]store.EmbeddingChunk, 0, len(plan.Inserts))
	for _, p := range plan.Inserts {
		vec, err := ix.provider.Embed(ctx, p.Text)
		if err != nil {
			return plan, fmt.Errorf("embed chunk %d of %s: %w", p.Index, docID, err)
		}
		inserts = append(inserts, store.EmbeddingChunk{
			ID:          uuid.New(),
			DocumentID:  docID,
			ContentHash: p.Hash,
			ChunkIndex:  p.Index,
			Content:     p.Text,
			Embedding:   vec,
			CreatedAt:   now,
		})
	}

	deletes := make([]uuid.UUID, 0, len(plan.Deletes))
	for _, c := range plan.Deletes {
		deletes = append(deletes, c.ID)
	}

	if err := ix.chunks.ApplyChunkPlan(ctx, docID, inserts, deletes); err != nil {
		return plan, fmt.Errorf("apply chunk plan for %s: %w", docID, err)
	}
	return plan, nil
}
