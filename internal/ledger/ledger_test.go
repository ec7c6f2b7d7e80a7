package ledger_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knostack/knosync/internal/ledger"
	"github.com/knostack/knosync/internal/store"
)

func setupLedger(t *testing.T) (*ledger.Ledger, *store.SQLiteStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "knosync-ledger-test-*")
	require.NoError(t, err)

	s, err := store.OpenSQLite(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Init())

	cleanup := func() {
		s.Close()
		os.RemoveAll(tmpDir)
	}
	return ledger.New(s, ledger.Limits{}), s, cleanup
}

func commitReq(id uuid.UUID, title, content string) ledger.CommitRequest {
	return ledger.CommitRequest{
		DocumentID: id,
		Title:      title,
		Content:    content,
		Author:     "alice",
	}
}

// --- Commit Tests ---

func TestLedger_CreateDocument(t *testing.T) {
	l, _, cleanup := setupLedger(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	res, err := l.Commit(ctx, commitReq(id, "First", "hello"))
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.False(t, res.NoOp)
	assert.Equal(t, 1, res.Document.CurrentVersion)
	assert.Equal(t, store.StatusDraft, res.Document.Status)
	require.Len(t, res.Records, 1)
	assert.Equal(t, store.ChangeCreated, res.Records[0].Kind)
}

func TestLedger_GaplessVersions(t *testing.T) {
	l, s, cleanup := setupLedger(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	for i := 1; i <= 5; i++ {
		content := strings.Repeat("x", i)
		res, err := l.Commit(ctx, commitReq(id, "Doc", content))
		require.NoError(t, err)
		assert.Equal(t, i, res.Document.CurrentVersion)
	}

	history, err := s.History(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, v := range history {
		assert.Equal(t, 5-i, v.Version) // newest first, gapless
	}
}

func TestLedger_NoOpCommit(t *testing.T) {
	l, _, cleanup := setupLedger(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	_, err := l.Commit(ctx, commitReq(id, "Stable", "unchanged"))
	require.NoError(t, err)

	res, err := l.Commit(ctx, commitReq(id, "Stable", "unchanged"))
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, 1, res.Document.CurrentVersion)
	assert.Equal(t, 1, res.Version.Version)
}

func TestLedger_BaseVersionConflict(t *testing.T) {
	l, _, cleanup := setupLedger(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	_, err := l.Commit(ctx, commitReq(id, "Doc", "v1"))
	require.NoError(t, err)
	_, err = l.Commit(ctx, commitReq(id, "Doc", "v2"))
	require.NoError(t, err)

	// An edit based on version 1 arrives after version 2 landed.
	req := commitReq(id, "Doc", "stale edit")
	req.BaseVersion = 1
	_, err = l.Commit(ctx, req)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
}

func TestLedger_ConcurrentCommitsOneWinner(t *testing.T) {
	l, s, cleanup := setupLedger(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	_, err := l.Commit(ctx, commitReq(id, "Contested", "base"))
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := commitReq(id, "Contested", strings.Repeat("w", i+1))
			req.BaseVersion = 1
			_, errs[i] = l.Commit(ctx, req)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, store.ErrVersionConflict)
		}
	}
	assert.Equal(t, 1, winners)

	doc, err := s.Document(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.CurrentVersion)
}

func TestLedger_ValidationErrors(t *testing.T) {
	l, _, cleanup := setupLedger(t)
	defer cleanup()
	ctx := context.Background()

	_, err := l.Commit(ctx, commitReq(uuid.Nil, "Doc", "content"))
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = l.Commit(ctx, commitReq(uuid.New(), "", "content"))
	assert.ErrorIs(t, err, store.ErrValidation)

	req := commitReq(uuid.New(), "Doc", "content")
	req.Status = "limbo"
	_, err = l.Commit(ctx, req)
	assert.ErrorIs(t, err, store.ErrValidation)
}

// --- Delete and Restore Tests ---

func TestLedger_DeleteAndRestore(t *testing.T) {
	l, s, cleanup := setupLedger(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	_, err := l.Commit(ctx, commitReq(id, "Doomed", "body"))
	require.NoError(t, err)

	res, err := l.Delete(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, store.StatusDeleted, res.Document.Status)
	assert.Equal(t, 2, res.Document.CurrentVersion)
	require.Len(t, res.Records, 1)
	assert.Equal(t, store.ChangeDeleted, res.Records[0].Kind)

	// Commits against a deleted document are rejected.
	_, err = l.Commit(ctx, commitReq(id, "Doomed", "necromancy"))
	assert.ErrorIs(t, err, store.ErrDocumentDeleted)

	// History survives the delete.
	history, err := s.History(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	restored, err := l.Restore(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, store.StatusDraft, restored.Document.Status)
	assert.Equal(t, 3, restored.Document.CurrentVersion)
	assert.Equal(t, "body", restored.Document.Content)
}

func TestLedger_DeleteTwice(t *testing.T) {
	l, _, cleanup := setupLedger(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	_, err := l.Commit(ctx, commitReq(id, "Doomed", "body"))
	require.NoError(t, err)
	_, err = l.Delete(ctx, id, "bob")
	require.NoError(t, err)

	_, err = l.Delete(ctx, id, "bob")
	assert.ErrorIs(t, err, store.ErrDocumentDeleted)
}

func TestLedger_RestoreLiveDocument(t *testing.T) {
	l, _, cleanup := setupLedger(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	_, err := l.Commit(ctx, commitReq(id, "Alive", "body"))
	require.NoError(t, err)

	_, err = l.Restore(ctx, id, "bob")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestLedger_WorkspacePreserved(t *testing.T) {
	l, _, cleanup := setupLedger(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	req := commitReq(id, "Homed", "v1")
	req.WorkspaceID = "ws-9"
	_, err := l.Commit(ctx, req)
	require.NoError(t, err)

	// Later commits without a workspace keep the original.
	res, err := l.Commit(ctx, commitReq(id, "Homed", "v2"))
	require.NoError(t, err)
	assert.Equal(t, "ws-9", res.Document.WorkspaceID)
}
