package chunk_test

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knostack/knosync/internal/chunk"
	"github.com/knostack/knosync/internal/store"
)

// fakeChunks is an in-memory store.Chunks for indexer tests.
type fakeChunks struct {
	chunks map[uuid.UUID][]store.EmbeddingChunk
}

func newFakeChunks() *fakeChunks {
	return &fakeChunks{chunks: map[uuid.UUID][]store.EmbeddingChunk{}}
}

func (f *fakeChunks) ChunksForDocument(_ context.Context, docID uuid.UUID) ([]store.EmbeddingChunk, error) {
	return append([]store.EmbeddingChunk(nil), f.chunks[docID]...), nil
}

func (f *fakeChunks) ApplyChunkPlan(_ context.Context, docID uuid.UUID, inserts []store.EmbeddingChunk, deletes []uuid.UUID) error {
	gone := map[uuid.UUID]struct{}{}
	for _, id := range deletes {
		gone[id] = struct{}{}
	}
	var kept []store.EmbeddingChunk
	for _, c := range f.chunks[docID] {
		if _, ok := gone[c.ID]; !ok {
			kept = append(kept, c)
		}
	}
	f.chunks[docID] = append(kept, inserts...)
	return nil
}

func (f *fakeChunks) SearchSimilarChunks(context.Context, []float32, int) ([]store.EmbeddingChunk, error) {
	return nil, nil
}

// countingProvider counts embedding calls and can be told to fail.
type countingProvider struct {
	calls atomic.Int64
	fail  bool
}

func (p *countingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if p.fail {
		return nil, fmt.Errorf("provider down")
	}
	return []float32{float32(len(text)), 1}, nil
}

// --- Splitter Tests ---

func TestParagraphSplitter_Deterministic(t *testing.T) {
	content := "First paragraph here.\n\nSecond paragraph here.\n\nThird."
	s := &chunk.ParagraphSplitter{}

	a := s.Split(content)
	b := s.Split(content)
	require.Equal(t, a, b)
	require.Len(t, a, 3)
	for i, p := range a {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, chunk.Hash(p.Text), p.Hash)
	}
}

func TestParagraphSplitter_WindowsLongParagraphs(t *testing.T) {
	words := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		words = append(words, fmt.Sprintf("word%d", i))
	}
	content := strings.Join(words, " ")

	s := &chunk.ParagraphSplitter{WindowWords: 10}
	pieces := s.Split(content)
	require.Len(t, pieces, 3)
	assert.Len(t, strings.Fields(pieces[0].Text), 10)
	assert.Len(t, strings.Fields(pieces[2].Text), 5)
}

func TestParagraphSplitter_EmptyContent(t *testing.T) {
	s := &chunk.ParagraphSplitter{}
	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("\n\n  \n\n"))
}

// --- Plan Tests ---

func TestBuildPlan_KeepsUnchangedChunks(t *testing.T) {
	docID := uuid.New()
	pieces := (&chunk.ParagraphSplitter{}).Split("alpha\n\nbeta")

	existing := []store.EmbeddingChunk{
		{ID: uuid.New(), DocumentID: docID, ContentHash: pieces[0].Hash, ChunkIndex: 0, Content: "alpha"},
	}

	plan := chunk.BuildPlan(existing, pieces)
	assert.Len(t, plan.Keeps, 1)
	require.Len(t, plan.Inserts, 1)
	assert.Equal(t, "beta", plan.Inserts[0].Text)
	assert.Empty(t, plan.Deletes)
}

func TestBuildPlan_DeletesStaleChunks(t *testing.T) {
	pieces := (&chunk.ParagraphSplitter{}).Split("only this")
	existing := []store.EmbeddingChunk{
		{ID: uuid.New(), ContentHash: "stale-hash", ChunkIndex: 0, Content: "old"},
		{ID: uuid.New(), ContentHash: "stale-hash-2", ChunkIndex: 1, Content: "older"},
	}

	plan := chunk.BuildPlan(existing, pieces)
	assert.Len(t, plan.Inserts, 1)
	assert.Len(t, plan.Deletes, 2)
	assert.False(t, plan.Empty())
}

func TestBuildPlan_IdenticalContentIsEmpty(t *testing.T) {
	pieces := (&chunk.ParagraphSplitter{}).Split("alpha\n\nbeta")
	existing := make([]store.EmbeddingChunk, len(pieces))
	for i, p := range pieces {
		existing[i] = store.EmbeddingChunk{ID: uuid.New(), ContentHash: p.Hash, ChunkIndex: p.Index, Content: p.Text}
	}

	plan := chunk.BuildPlan(existing, pieces)
	assert.True(t, plan.Empty())
	assert.Len(t, plan.Keeps, len(pieces))
}

// --- Indexer Tests ---

func TestIndexer_ReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	chunks := newFakeChunks()
	provider := &countingProvider{}
	ix := chunk.NewIndexer(chunks, provider, nil)
	docID := uuid.New()

	plan, err := ix.Reconcile(ctx, docID, "first paragraph\n\nsecond paragraph")
	require.NoError(t, err)
	assert.Len(t, plan.Inserts, 2)
	assert.Equal(t, int64(2), provider.calls.Load())

	// Same content again: zero embedding calls, nothing changes.
	plan, err = ix.Reconcile(ctx, docID, "first paragraph\n\nsecond paragraph")
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, int64(2), provider.calls.Load())
}

func TestIndexer_OnlyChangedChunksReembedded(t *testing.T) {
	ctx := context.Background()
	chunks := newFakeChunks()
	provider := &countingProvider{}
	ix := chunk.NewIndexer(chunks, provider, nil)
	docID := uuid.New()

	_, err := ix.Reconcile(ctx, docID, "stable paragraph\n\noriginal paragraph")
	require.NoError(t, err)
	require.Equal(t, int64(2), provider.calls.Load())

	plan, err := ix.Reconcile(ctx, docID, "stable paragraph\n\nedited paragraph")
	require.NoError(t, err)
	assert.Len(t, plan.Keeps, 1)
	assert.Len(t, plan.Inserts, 1)
	assert.Len(t, plan.Deletes, 1)
	assert.Equal(t, int64(3), provider.calls.Load())

	stored, err := chunks.ChunksForDocument(ctx, docID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestIndexer_ProviderFailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	chunks := newFakeChunks()
	provider := &countingProvider{}
	ix := chunk.NewIndexer(chunks, provider, nil)
	docID := uuid.New()

	_, err := ix.Reconcile(ctx, docID, "original content")
	require.NoError(t, err)

	provider.fail = true
	_, err = ix.Reconcile(ctx, docID, "replacement content")
	require.Error(t, err)

	// The old chunk set is intact, including the chunk the failed plan
	// wanted to delete.
	stored, err := chunks.ChunksForDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "original content", stored[0].Content)
}
