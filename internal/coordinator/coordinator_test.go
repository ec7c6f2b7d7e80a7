package coordinator_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knostack/knosync/internal/chunk"
	"github.com/knostack/knosync/internal/coordinator"
	"github.com/knostack/knosync/internal/graph"
	"github.com/knostack/knosync/internal/ledger"
	"github.com/knostack/knosync/internal/store"
)

// flakyProvider fails while down is set.
type flakyProvider struct {
	down  bool
	calls int
}

func (p *flakyProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.calls++
	if p.down {
		return nil, fmt.Errorf("embedding server down")
	}
	return []float32{float32(len(text)), 1}, nil
}

type fixture struct {
	store    *store.SQLiteStore
	graph    *graph.Memory
	provider *flakyProvider
	coord    *coordinator.Coordinator
	sched    *coordinator.Scheduler
}

func setup(t *testing.T) (*fixture, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "knosync-coord-test-*")
	require.NoError(t, err)

	s, err := store.OpenSQLite(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Init())

	g := graph.NewMemory()
	provider := &flakyProvider{}
	led := ledger.New(s, ledger.Limits{})
	ix := chunk.NewIndexer(s, provider, nil)
	topo := graph.NewSynchronizer(g, nil)

	coord := coordinator.New(s, led, ix, topo, nil, coordinator.Options{
		RetryDelay: time.Nanosecond, // debts are due immediately in tests
	})
	sched := coordinator.NewScheduler(s, coord, nil, coordinator.SchedulerOptions{
		MaxAttempts: 3,
	})

	cleanup := func() {
		s.Close()
		os.RemoveAll(tmpDir)
	}
	return &fixture{store: s, graph: g, provider: provider, coord: coord, sched: sched}, cleanup
}

func req(id uuid.UUID, title, content string) ledger.CommitRequest {
	return ledger.CommitRequest{
		DocumentID: id,
		Title:      title,
		Content:    content,
		Author:     "alice",
	}
}

// --- Mutation Tests ---

func TestCoordinator_MutateSyncsAllStores(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	res, err := f.coord.Mutate(ctx, req(id, "Guide", "All about [[indexing]]."))
	require.NoError(t, err)
	assert.True(t, res.Synced())

	chunks, err := f.store.ChunksForDocument(ctx, id)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	contains, err := f.graph.EdgesFrom(ctx, graph.NodeDocument, id.String(), graph.EdgeContains)
	require.NoError(t, err)
	assert.Len(t, contains, 1)

	st, err := f.coord.Status(ctx, id)
	require.NoError(t, err)
	assert.True(t, st.InSync())
}

func TestCoordinator_RelationalFailureAborts(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	_, err := f.coord.Mutate(ctx, req(id, "Doc", "v1"))
	require.NoError(t, err)

	stale := req(id, "Doc", "stale")
	stale.BaseVersion = 99
	_, err = f.coord.Mutate(ctx, stale)
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	// The conflicting mutation touched nothing: no debt, no new version.
	st, err := f.coord.Status(ctx, id)
	require.NoError(t, err)
	assert.True(t, st.InSync())
	assert.Equal(t, 1, st.Version)
}

func TestCoordinator_ProviderFailureBecomesDebt(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	f.provider.down = true
	id := uuid.New()
	res, err := f.coord.Mutate(ctx, req(id, "Doc", "embed me"))
	require.NoError(t, err) // the mutation still succeeds
	assert.Equal(t, []store.DebtStage{store.StageEmbeddings}, res.Pending)

	// Relational commit landed despite the failed stage.
	doc, err := f.store.Document(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.CurrentVersion)

	st, err := f.coord.Status(ctx, id)
	require.NoError(t, err)
	assert.False(t, st.InSync())
	assert.Equal(t, []store.DebtStage{store.StageEmbeddings}, st.Pending)
}

func TestCoordinator_NoOpSkipsDerivedStores(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	_, err := f.coord.Mutate(ctx, req(id, "Doc", "same content"))
	require.NoError(t, err)
	calls := f.provider.calls

	res, err := f.coord.Mutate(ctx, req(id, "Doc", "same content"))
	require.NoError(t, err)
	assert.True(t, res.Ledger.NoOp)
	assert.Equal(t, calls, f.provider.calls)
}

// gatedProvider parks every Embed call until release is closed, to model
// a slow embedding server.
type gatedProvider struct {
	entered chan struct{}
	release chan struct{}
}

func (p *gatedProvider) Embed(context.Context, string) ([]float32, error) {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	<-p.release
	return []float32{1, 2}, nil
}

func TestCoordinator_CommitNotBlockedByEmbedding(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "knosync-coord-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	s, err := store.OpenSQLite(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Init())

	p := &gatedProvider{entered: make(chan struct{}, 2), release: make(chan struct{})}
	coord := coordinator.New(s, ledger.New(s, ledger.Limits{}), chunk.NewIndexer(s, p, nil),
		graph.NewSynchronizer(graph.NewMemory(), nil), nil, coordinator.Options{})

	ctx := context.Background()
	id := uuid.New()
	done := make(chan struct{}, 2)
	go func() {
		_, _ = coord.Mutate(ctx, req(id, "Doc", "first draft"))
		done <- struct{}{}
	}()
	<-p.entered // the first mutation is parked inside its embedding call

	go func() {
		_, _ = coord.Mutate(ctx, req(id, "Doc", "second draft"))
		done <- struct{}{}
	}()

	// The second commit lands while the first embedding is still in flight:
	// only the version critical section is exclusive, never provider I/O.
	require.Eventually(t, func() bool {
		doc, derr := s.Document(ctx, id)
		return derr == nil && doc.CurrentVersion == 2
	}, 2*time.Second, 10*time.Millisecond)

	close(p.release)
	<-done
	<-done

	// Both stage runs derive from current truth, so chunks hold v2 content.
	chunks, err := s.ChunksForDocument(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "second draft", chunks[0].Content)
}

func TestCoordinator_StatusDedupesStages(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	f.provider.down = true
	id := uuid.New()
	_, err := f.coord.Mutate(ctx, req(id, "Doc", "v1"))
	require.NoError(t, err)
	_, err = f.coord.Mutate(ctx, req(id, "Doc", "v2"))
	require.NoError(t, err)

	// Two open debts, one stage.
	debts, err := f.store.UnresolvedDebts(ctx, id)
	require.NoError(t, err)
	require.Len(t, debts, 2)

	st, err := f.coord.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []store.DebtStage{store.StageEmbeddings}, st.Pending)
	assert.Empty(t, st.Surfaced)
}

// --- Retry Tests ---

func TestScheduler_RepaysDebtAfterRecovery(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	f.provider.down = true
	id := uuid.New()
	_, err := f.coord.Mutate(ctx, req(id, "Doc", "embed me"))
	require.NoError(t, err)

	// Still down: the sweep reschedules, nothing resolves.
	resolved, err := f.sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, resolved)

	f.provider.down = false

	// Backoff pushed the retry into the future; it is repaid once due.
	// Tests drive the clock by sweeping against a store whose debt is
	// rescheduled with the default backoff, so force it due again.
	debts, err := f.store.UnresolvedDebts(ctx, id)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	require.NoError(t, f.store.RescheduleDebt(ctx, debts[0].ID, debts[0].Attempts, debts[0].LastError, time.Now().Add(-time.Second)))

	resolved, err = f.sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	chunks, err := f.store.ChunksForDocument(ctx, id)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	st, err := f.coord.Status(ctx, id)
	require.NoError(t, err)
	assert.True(t, st.InSync())
}

func TestScheduler_RepairUsesCurrentState(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	f.provider.down = true
	id := uuid.New()
	_, err := f.coord.Mutate(ctx, req(id, "Doc", "first version"))
	require.NoError(t, err)

	// The document moves on while the debt is open.
	_, err = f.coord.Mutate(ctx, req(id, "Doc", "second version"))
	require.NoError(t, err)

	f.provider.down = false
	_, err = f.sched.Sweep(ctx)
	require.NoError(t, err)

	// The repair embedded current content, not the content that failed.
	chunks, err := f.store.ChunksForDocument(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "second version", chunks[0].Content)
}

func TestScheduler_ExhaustionSurfacesDebt(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	sched := coordinator.NewScheduler(f.store, f.coord, nil, coordinator.SchedulerOptions{
		MaxAttempts: 1,
	})

	f.provider.down = true
	id := uuid.New()
	_, err := f.coord.Mutate(ctx, req(id, "Doc", "embed me"))
	require.NoError(t, err)

	resolved, err := sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, resolved)

	// Surfaced: no longer due, but visible in status.
	due, err := f.store.DueDebts(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	st, err := f.coord.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []store.DebtStage{store.StageEmbeddings}, st.Surfaced)
}

// --- Delete and Rebuild Tests ---

func TestCoordinator_DeleteDetachesGraph(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	_, err := f.coord.Mutate(ctx, req(id, "Doomed", "Mentions [[caching]]."))
	require.NoError(t, err)

	res, err := f.coord.Delete(ctx, id, "bob")
	require.NoError(t, err)
	assert.True(t, res.Synced())

	edges, err := f.graph.EdgesFrom(ctx, graph.NodeDocument, id.String())
	require.NoError(t, err)
	assert.Empty(t, edges)

	// Chunks survive the soft delete.
	chunks, err := f.store.ChunksForDocument(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestCoordinator_RestoreResyncsGraph(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.New()
	_, err := f.coord.Mutate(ctx, req(id, "Phoenix", "Mentions [[recovery]]."))
	require.NoError(t, err)
	_, err = f.coord.Delete(ctx, id, "bob")
	require.NoError(t, err)

	res, err := f.coord.Restore(ctx, id, "bob")
	require.NoError(t, err)
	assert.True(t, res.Synced())

	contains, err := f.graph.EdgesFrom(ctx, graph.NodeDocument, id.String(), graph.EdgeContains)
	require.NoError(t, err)
	assert.Len(t, contains, 1)
}

func TestCoordinator_RebuildFromRelationalTruth(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	a := uuid.New()
	b := uuid.New()
	_, err := f.coord.Mutate(ctx, req(a, "One", "About [[alpha]]."))
	require.NoError(t, err)
	_, err = f.coord.Mutate(ctx, req(b, "Two", "About [[beta]]."))
	require.NoError(t, err)

	// Lose the whole graph, then rebuild it.
	require.NoError(t, f.graph.DetachNode(ctx, graph.NodeDocument, a.String()))
	require.NoError(t, f.graph.DetachNode(ctx, graph.NodeDocument, b.String()))

	calls := f.provider.calls
	n, err := f.coord.Rebuild(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Chunks were already current, so the rebuild embedded nothing.
	assert.Equal(t, calls, f.provider.calls)

	edges, err := f.graph.EdgesFrom(ctx, graph.NodeDocument, a.String(), graph.EdgeContains)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}
