// retry.go repays sync debt in the background.
//
// A repair never replays the failed write: it re-derives the stage from the
// document's current relational state, so a debt recorded at version 3 and
// repaid at version 7 still converges on version 7. Backoff doubles per
// attempt up to a cap; exhausted debts are surfaced and logged, never
// dropped.

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knostack/knosync/internal/store"
)

// Retry policy defaults.
const (
	DefaultSweepInterval = 15 * time.Second
	DefaultMaxAttempts   = 8
	DefaultBaseBackoff   = 30 * time.Second
	DefaultMaxBackoff    = 30 * time.Minute
	defaultSweepBatch    = 50
)

// Scheduler periodically repays due sync debts.
type Scheduler struct {
	store store.Store
	coord *Coordinator
	log   *zap.Logger

	interval    time.Duration
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	batch       int
}

// SchedulerOptions tunes the retry policy. Zero values apply defaults.
type SchedulerOptions struct {
	Interval    time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Batch       int
}

// NewScheduler creates a Scheduler repaying debts through c.
func NewScheduler(s store.Store, c *Coordinator, log *zap.Logger, opts SchedulerOptions) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultSweepInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = DefaultBaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.Batch <= 0 {
		opts.Batch = defaultSweepBatch
	}
	return &Scheduler{
		store:       s,
		coord:       c,
		log:         log,
		interval:    opts.Interval,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		maxBackoff:  opts.MaxBackoff,
		batch:       opts.Batch,
	}
}

// Run sweeps until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("debt sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep repays all currently due debts once and returns how many were
// resolved. Exported so tests and the CLI can drive retries without the
// ticker.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	due, err := s.store.DueDebts(ctx, time.Now(), s.batch)
	if err != nil {
		return 0, fmt.Errorf("load due debts: %w", err)
	}

	resolved := 0
	for i := range due {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if s.repay(ctx, &due[i]) {
			resolved++
		}
	}
	return resolved, nil
}

// repay attempts one debt and reports whether it was resolved.
func (s *Scheduler) repay(ctx context.Context, d *store.SyncDebt) bool {
	err := s.repair(ctx, d)
	if err == nil {
		if rerr := s.store.ResolveDebt(ctx, d.ID); rerr != nil {
			s.log.Error("resolve debt failed",
				zap.String("debt", d.ID.String()), zap.Error(rerr))
			return false
		}
		s.log.Info("sync debt repaid",
			zap.String("document", d.DocumentID.String()),
			zap.String("stage", string(d.Stage)),
			zap.Int("attempts", d.Attempts+1))
		return true
	}

	attempts := d.Attempts + 1
	if attempts >= s.maxAttempts {
		if serr := s.store.SurfaceDebt(ctx, d.ID); serr != nil {
			s.log.Error("surface debt failed",
				zap.String("debt", d.ID.String()), zap.Error(serr))
			return false
		}
		s.log.Error("sync debt exhausted",
			zap.String("document", d.DocumentID.String()),
			zap.String("stage", string(d.Stage)),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return false
	}

	next := time.Now().Add(s.backoff(attempts))
	if rerr := s.store.RescheduleDebt(ctx, d.ID, attempts, err.Error(), next); rerr != nil {
		s.log.Error("reschedule debt failed",
			zap.String("debt", d.ID.String()), zap.Error(rerr))
		return false
	}
	s.log.Warn("sync debt retry failed",
		zap.String("document", d.DocumentID.String()),
		zap.String("stage", string(d.Stage)),
		zap.Int("attempts", attempts),
		zap.Time("next_retry", next),
		zap.Error(err))
	return false
}

// backoff returns baseBackoff doubled per attempt, capped at maxBackoff.
func (s *Scheduler) backoff(attempts int) time.Duration {
	d := s.baseBackoff
	for i := 1; i < attempts && d < s.maxBackoff; i++ {
		d *= 2
	}
	return min(d, s.maxBackoff)
}

// repair re-derives one stage from current relational state. It takes the
// document's stage lock so a repay cannot interleave with an in-flight
// mutation's derived sync.
func (s *Scheduler) repair(ctx context.Context, d *store.SyncDebt) error {
	s.coord.syncLocks.Lock(d.DocumentID)
	defer s.coord.syncLocks.Unlock(d.DocumentID)

	doc, err := s.store.Document(ctx, d.DocumentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil // document gone, nothing to repair
	}
	if err != nil {
		return fmt.Errorf("load document %s: %w", d.DocumentID, err)
	}

	switch d.Stage {
	case store.StageEmbeddings:
		if doc.Status == store.StatusDeleted {
			return nil // chunks are retained on soft delete
		}
		_, err := s.coord.indexer.Reconcile(ctx, doc.ID, doc.Content)
		return err
	case store.StageGraph:
		return s.coord.rebuildGraphFor(ctx, doc)
	default:
		// Unknown stages resolve immediately; retrying can never help.
		s.log.Warn("unknown debt stage", zap.String("stage", string(d.Stage)))
		return nil
	}
}

// rebuildGraphFor re-projects one document onto the graph.
func (c *Coordinator) rebuildGraphFor(ctx context.Context, doc *store.Document) error {
	if doc.Status == store.StatusDeleted {
		return c.topo.Detach(ctx, doc.ID.String())
	}
	ver, err := c.store.LatestVersion(ctx, doc.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return c.topo.Sync(ctx, doc, ver)
}

// ResolveSurfaced manually resolves a surfaced debt after an operator
// repaired the underlying issue, typically via the rebuild command.
func (s *Scheduler) ResolveSurfaced(ctx context.Context, id uuid.UUID) error {
	return s.store.ResolveDebt(ctx, id)
}
