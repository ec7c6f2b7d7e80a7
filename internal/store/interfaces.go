// interfaces.go defines the storage abstraction for the relational source
// of truth.
//
// Separated from the backend implementations to enable testing and
// alternative backends. The interfaces are intentionally granular
// (Documents, Versions, Chunks, etc.) to support interface segregation -
// consumers only depend on the capabilities they need: the ledger needs
// Documents+Versions, the chunk indexer needs Chunks, the retry scheduler
// needs Debts.
//
// Design: documents use soft-delete semantics. A deleted document keeps its
// versions, change records, and chunks for audit; only its status changes.

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Documents defines read operations over live document rows.
type Documents interface {
	// Document retrieves the live row for a document. Soft-deleted
	// documents are returned with StatusDeleted; callers decide whether
	// that is an error. Returns ErrNotFound if the id is unknown.
	Document(ctx context.Context, id uuid.UUID) (*Document, error)

	// Documents lists live rows, optionally filtered by workspace
	// (empty string for all). Used by rebuild and listings.
	Documents(ctx context.Context, workspaceID string, includeDeleted bool) ([]Document, error)
}

// Versions defines version-history operations. CommitVersion is the single
// mutation entry point for document state.
type Versions interface {
	// CommitVersion atomically persists a new version snapshot, its change
	// records, and the matching live-row update. The live row is updated
	// with compare-and-swap semantics on current_version = ver.Version-1
	// (0 for a new document); if another commit won the race the whole
	// transaction is rolled back and ErrVersionConflict is returned.
	CommitVersion(ctx context.Context, doc *Document, ver *DocumentVersion, records []ChangeRecord) error

	// LatestVersion returns the highest-numbered version for a document,
	// or ErrNotFound if it has none.
	LatestVersion(ctx context.Context, docID uuid.UUID) (*DocumentVersion, error)

	// Version retrieves a specific historical version for audit or rollback.
	Version(ctx context.Context, docID uuid.UUID, version int) (*DocumentVersion, error)

	// History returns versions newest-first. limit 0 means all.
	History(ctx context.Context, docID uuid.UUID, limit int) ([]DocumentVersion, error)
}

// Changes defines read operations over the change log.
type Changes interface {
	// ChangesForDocument returns all change records for a document in
	// commit order (oldest first), enabling replay.
	ChangesForDocument(ctx context.Context, docID uuid.UUID) ([]ChangeRecord, error)

	// ChangesForVersion returns the records that accompanied one version
	// transition.
	ChangesForVersion(ctx context.Context, versionID uuid.UUID) ([]ChangeRecord, error)
}

// Chunks defines embedding-chunk operations for the vector projection.
type Chunks interface {
	// ChunksForDocument returns the current chunk set ordered by index.
	ChunksForDocument(ctx context.Context, docID uuid.UUID) ([]EmbeddingChunk, error)

	// ApplyChunkPlan applies inserts and deletes as one transaction so the
	// chunk set never observes a partially-applied reconciliation.
	ApplyChunkPlan(ctx context.Context, docID uuid.UUID, inserts []EmbeddingChunk, deletes []uuid.UUID) error

	// SearchSimilarChunks returns the chunks nearest to the query embedding.
	SearchSimilarChunks(ctx context.Context, embedding []float32, limit int) ([]EmbeddingChunk, error)
}

// Insights defines storage for externally-produced insight records.
type Insights interface {
	AddInsight(ctx context.Context, in *Insight) error
	InsightsForDocument(ctx context.Context, docID uuid.UUID) ([]Insight, error)
}

// Debts defines the sync-debt ledger used by the retry scheduler.
type Debts interface {
	// RecordDebt persists a new unresolved debt.
	RecordDebt(ctx context.Context, d *SyncDebt) error

	// DueDebts returns unresolved, unsurfaced debts whose NextRetryAt is
	// at or before now, oldest first.
	DueDebts(ctx context.Context, now time.Time, limit int) ([]SyncDebt, error)

	// UnresolvedDebts returns open debts for one document, for sync status.
	UnresolvedDebts(ctx context.Context, docID uuid.UUID) ([]SyncDebt, error)

	// ResolveDebt marks a debt repaid.
	ResolveDebt(ctx context.Context, id uuid.UUID) error

	// RescheduleDebt bumps the attempt counter and next retry time after
	// a failed retry.
	RescheduleDebt(ctx context.Context, id uuid.UUID, attempts int, lastError string, next time.Time) error

	// SurfaceDebt marks a debt as exhausted so it stops being retried and
	// shows up as an alert. Surfaced debts remain unresolved.
	SurfaceDebt(ctx context.Context, id uuid.UUID) error
}

// Maintainer defines lifecycle and operational operations.
type Maintainer interface {
	// Ping verifies connectivity, for health checks.
	Ping(ctx context.Context) error

	// Stats returns aggregate statistics for operational dashboards.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the underlying connections.
	Close() error
}

// Store is the full persistence interface for the relational source of truth.
type Store interface {
	Documents
	Versions
	Changes
	Chunks
	Insights
	Debts
	Maintainer
}
