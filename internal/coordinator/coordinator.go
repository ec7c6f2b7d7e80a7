// Package coordinator orchestrates mutations across the three stores.
//
// Ordering is fixed: the relational commit happens first and alone decides
// whether the mutation succeeded. Derived-store work (embedding chunks,
// graph projection) runs afterwards; a failure there never rolls back the
// relational commit, it becomes a persisted sync debt that the scheduler
// retries by re-deriving from relational truth.
//
// Locking is two-phase and per document. A commit lock covers only the
// relational critical section, so a second edit never waits on the first
// edit's embedding calls. A separate stage lock serializes derived-store
// work; whoever holds it re-reads relational truth before writing, so a
// stale snapshot cannot overwrite a newer projection.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/knostack/knosync/internal/chunk"
	"github.com/knostack/knosync/internal/graph"
	"github.com/knostack/knosync/internal/ledger"
	"github.com/knostack/knosync/internal/store"
)

// DefaultStageTimeout bounds one derived-store stage per mutation. The
// relational commit is not subject to it.
const DefaultStageTimeout = 30 * time.Second

// Coordinator applies mutations and keeps the derived stores in sync.
type Coordinator struct {
	store   store.Store
	ledger  *ledger.Ledger
	indexer *chunk.Indexer
	topo    *graph.Synchronizer
	log     *zap.Logger

	stageTimeout time.Duration
	retryDelay   time.Duration

	commitLocks *keyedMutex // relational critical section only
	syncLocks   *keyedMutex // derived-store reconciliation
}

// Options tunes coordinator behaviour. Zero values apply defaults.
type Options struct {
	StageTimeout time.Duration
	RetryDelay   time.Duration // initial delay before a recorded debt is due
}

// New creates a Coordinator. log may be nil for a no-op logger.
func New(s store.Store, l *ledger.Ledger, ix *chunk.Indexer, topo *graph.Synchronizer, log *zap.Logger, opts Options) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultStageTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 30 * time.Second
	}
	return &Coordinator{
		store:        s,
		ledger:       l,
		indexer:      ix,
		topo:         topo,
		log:          log,
		stageTimeout: opts.StageTimeout,
		retryDelay:   opts.RetryDelay,
		commitLocks:  newKeyedMutex(),
		syncLocks:    newKeyedMutex(),
	}
}

// Result is the outcome of a coordinated mutation. Pending lists the
// derived-store stages that failed and were recorded as debt; the mutation
// itself still succeeded.
type Result struct {
	Ledger  *ledger.Result
	Pending []store.DebtStage
}

// Synced reports whether all derived stores were updated inline.
func (r *Result) Synced() bool { return len(r.Pending) == 0 }

// Mutate commits a document mutation and synchronizes the derived stores.
// A relational failure (validation, version conflict, deleted document)
// aborts the whole mutation. Derived-store failures are recorded as sync
// debt and reported in Result.Pending.
func (c *Coordinator) Mutate(ctx context.Context, req ledger.CommitRequest) (*Result, error) {
	c.commitLocks.Lock(req.DocumentID)
	res, err := c.ledger.Commit(ctx, req)
	c.commitLocks.Unlock(req.DocumentID)
	if err != nil {
		return nil, err
	}
	if res.NoOp {
		return &Result{Ledger: res}, nil
	}
	return c.syncDerived(ctx, res)
}

// Delete soft-deletes a document and detaches its graph node. Embedding
// chunks are retained for audit alongside the version history.
func (c *Coordinator) Delete(ctx context.Context, docID uuid.UUID, author string) (*Result, error) {
	c.commitLocks.Lock(docID)
	res, err := c.ledger.Delete(ctx, docID, author)
	c.commitLocks.Unlock(docID)
	if err != nil {
		return nil, err
	}

	c.syncLocks.Lock(docID)
	defer c.syncLocks.Unlock(docID)

	out := &Result{Ledger: res}
	if err := c.runStage(ctx, func(ctx context.Context) error {
		return c.topo.Detach(ctx, docID.String())
	}); err != nil {
		c.recordDebt(ctx, docID, store.StageGraph, err)
		out.Pending = append(out.Pending, store.StageGraph)
	}
	return out, nil
}

// Restore recovers a soft-deleted document and rebuilds its derived state.
func (c *Coordinator) Restore(ctx context.Context, docID uuid.UUID, author string) (*Result, error) {
	c.commitLocks.Lock(docID)
	res, err := c.ledger.Restore(ctx, docID, author)
	c.commitLocks.Unlock(docID)
	if err != nil {
		return nil, err
	}
	return c.syncDerived(ctx, res)
}

// syncDerived runs the embedding and graph stages in parallel under the
// document's stage lock. Each failed stage becomes one debt; both stores
// converge on relational truth when the scheduler repays it.
func (c *Coordinator) syncDerived(ctx context.Context, res *ledger.Result) (*Result, error) {
	out := &Result{Ledger: res}
	docID := res.Document.ID

	c.syncLocks.Lock(docID)
	defer c.syncLocks.Unlock(docID)

	// Another mutation may have committed while this one waited for the
	// stage lock, so sync from current relational state, the same way the
	// scheduler repays a debt. The commit snapshot is the fallback.
	doc, ver := res.Document, res.Version
	if cur, err := c.store.Document(ctx, docID); err == nil {
		doc = cur
		if v, verr := c.store.LatestVersion(ctx, docID); verr == nil {
			ver = v
		}
	}

	var pendingMu sync.Mutex
	fail := func(stage store.DebtStage, err error) {
		c.recordDebt(ctx, docID, stage, err)
		pendingMu.Lock()
		out.Pending = append(out.Pending, stage)
		pendingMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if doc.Status == store.StatusDeleted {
			return nil // chunks are retained on soft delete
		}
		err := c.runStage(gctx, func(ctx context.Context) error {
			_, err := c.indexer.Reconcile(ctx, doc.ID, doc.Content)
			return err
		})
		if err != nil {
			fail(store.StageEmbeddings, err)
		}
		return nil
	})
	g.Go(func() error {
		err := c.runStage(gctx, func(ctx context.Context) error {
			if doc.Status == store.StatusDeleted {
				return c.topo.Detach(ctx, doc.ID.String())
			}
			return c.topo.Sync(ctx, doc, ver)
		})
		if err != nil {
			fail(store.StageGraph, err)
		}
		return nil
	})
	_ = g.Wait() // stage errors become debts, never group errors

	if len(out.Pending) > 0 {
		c.log.Warn("mutation committed with pending sync",
			zap.String("document", doc.ID.String()),
			zap.Int("version", doc.CurrentVersion),
			zap.Any("pending", out.Pending))
	}
	return out, nil
}

func (c *Coordinator) runStage(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.stageTimeout)
	defer cancel()
	return fn(ctx)
}

// recordDebt persists a retryable failure. Recording failure itself is only
// logged: the rebuild command can still restore consistency, and failing
// the mutation at this point would lose a committed version.
func (c *Coordinator) recordDebt(ctx context.Context, docID uuid.UUID, stage store.DebtStage, cause error) {
	now := time.Now()
	debt := &store.SyncDebt{
		ID:          uuid.New(),
		DocumentID:  docID,
		Stage:       stage,
		Attempts:    0,
		LastError:   cause.Error(),
		NextRetryAt: now.Add(c.retryDelay).Unix(),
		CreatedAt:   now.Unix(),
	}
	if err := c.store.RecordDebt(context.WithoutCancel(ctx), debt); err != nil {
		c.log.Error("record sync debt failed",
			zap.String("document", docID.String()),
			zap.String("stage", string(stage)),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	c.log.Warn("sync debt recorded",
		zap.String("document", docID.String()),
		zap.String("stage", string(stage)),
		zap.Error(cause))
}

// SyncStatus reports a document's consistency across the stores.
type SyncStatus struct {
	DocumentID uuid.UUID
	Version    int
	Status     store.Status
	Pending    []store.DebtStage // stages with open, retryable debt
	Surfaced   []store.DebtStage // stages whose retries are exhausted
}

// InSync reports whether the derived stores match the relational state.
func (s *SyncStatus) InSync() bool {
	return len(s.Pending) == 0 && len(s.Surfaced) == 0
}

// Status reports whether a document's derived stores are caught up.
func (c *Coordinator) Status(ctx context.Context, docID uuid.UUID) (*SyncStatus, error) {
	doc, err := c.store.Document(ctx, docID)
	if err != nil {
		return nil, err
	}
	debts, err := c.store.UnresolvedDebts(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load debts for %s: %w", docID, err)
	}

	st := &SyncStatus{DocumentID: docID, Version: doc.CurrentVersion, Status: doc.Status}
	pending := make(map[store.DebtStage]bool)
	surfaced := make(map[store.DebtStage]bool)
	for _, d := range debts {
		// Several open debts can share one stage; report the stage once.
		if d.Surfaced {
			if !surfaced[d.Stage] {
				surfaced[d.Stage] = true
				st.Surfaced = append(st.Surfaced, d.Stage)
			}
		} else if !pending[d.Stage] {
			pending[d.Stage] = true
			st.Pending = append(st.Pending, d.Stage)
		}
	}
	return st, nil
}

// Rebuild re-derives the embedding and graph projections for every
// document in a workspace (all workspaces when empty) from relational
// truth. Used after restoring a derived store from nothing.
func (c *Coordinator) Rebuild(ctx context.Context, workspaceID string) (int, error) {
	docs, err := c.store.Documents(ctx, workspaceID, true)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}

	rebuilt := 0
	for i := range docs {
		doc := &docs[i]
		if err := ctx.Err(); err != nil {
			return rebuilt, err
		}
		if err := c.rebuildOne(ctx, doc); err != nil {
			return rebuilt, fmt.Errorf("rebuild %s: %w", doc.ID, err)
		}
		rebuilt++
	}
	return rebuilt, nil
}

func (c *Coordinator) rebuildOne(ctx context.Context, doc *store.Document) error {
	c.syncLocks.Lock(doc.ID)
	defer c.syncLocks.Unlock(doc.ID)

	if doc.Status == store.StatusDeleted {
		return c.topo.Detach(ctx, doc.ID.String())
	}
	if _, err := c.indexer.Reconcile(ctx, doc.ID, doc.Content); err != nil {
		return err
	}
	ver, err := c.store.LatestVersion(ctx, doc.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return c.topo.Sync(ctx, doc, ver)
}
