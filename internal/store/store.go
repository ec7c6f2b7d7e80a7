// Package store defines the relational persistence types and the Store
// interface for the knowledge synchronizer. The relational store is the
// single source of truth: the graph and vector projections are always
// derived from the rows defined here and can be rebuilt from them.
//
// Implementations handle the actual database operations while consumers
// depend only on the interface, enabling testing and alternative backends.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a document.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

// Valid reports whether s is a known document status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// ChangeKind classifies a change record.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeRestored ChangeKind = "restored"
)

// InsightKind classifies an insight record.
type InsightKind string

const (
	InsightSummary     InsightKind = "summary"
	InsightSuggestion  InsightKind = "suggestion"
	InsightSimilarity  InsightKind = "similarity"
	InsightImprovement InsightKind = "improvement"
)

// Valid reports whether k is a known insight kind.
func (k InsightKind) Valid() bool {
	switch k {
	case InsightSummary, InsightSuggestion, InsightSimilarity, InsightImprovement:
		return true
	}
	return false
}

// DebtStage identifies which derived-store stage a sync debt belongs to.
type DebtStage string

const (
	StageEmbeddings DebtStage = "embeddings"
	StageGraph      DebtStage = "graph"
)

// Document is the live row for a versioned document. It always mirrors the
// highest committed version; mutation happens only through the coordinator.
type Document struct {
	ID             uuid.UUID
	WorkspaceID    string
	Title          string
	Content        string
	ContentKind    string // e.g. "markdown"
	Status         Status
	Tags           []string
	Metadata       map[string]string
	CurrentVersion int
	CreatedAt      int64 // Unix timestamp
	UpdatedAt      int64 // Unix timestamp
}

// DocumentVersion is an immutable snapshot of a document at one version.
// Version numbers are gapless per document, starting at 1, never reused.
type DocumentVersion struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Version    int
	Title      string
	Content    string
	Metadata   map[string]string
	Author     string
	Summary    string // human-readable change summary
	CreatedAt  int64
}

// ChangeRecord is a field-level change derived from a version transition.
// Multiple records may share a version id when several fields changed at once.
type ChangeRecord struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	VersionID  uuid.UUID
	Kind       ChangeKind
	Field      string // empty for created/deleted/restored records
	OldValue   string
	NewValue   string
	Author     string
	CreatedAt  int64
}

// EmbeddingChunk is one embedded slice of document content. The content hash
// detects unchanged chunks across edits so their vectors are not recomputed.
// Unique per (DocumentID, ContentHash, ChunkIndex).
type EmbeddingChunk struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID
	ContentHash string // hex sha256 of Content
	ChunkIndex  int
	Content     string
	Embedding   []float32
	CreatedAt   int64
}

// Insight is an AI-produced annotation for a document. The core stores
// insights but never synthesizes them; they arrive from an external producer.
type Insight struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Kind       InsightKind
	Content    string
	Confidence float64 // [0,1]
	Metadata   map[string]string
	CreatedAt  int64
}

// SyncDebt records a failed derived-store write after a successful relational
// commit. Debts are persisted so retries survive process restarts; exhausted
// debts are surfaced rather than silently dropped.
type SyncDebt struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID
	Stage       DebtStage
	Attempts    int
	LastError   string
	NextRetryAt int64
	Surfaced    bool
	CreatedAt   int64
	ResolvedAt  *int64 // nil while unresolved
}

// Resolved reports whether the debt has been repaid.
func (d *SyncDebt) Resolved() bool {
	return d.ResolvedAt != nil
}

// Stats provides aggregate store statistics for operational visibility.
type Stats struct {
	Documents     int64 // non-deleted document count
	DeletedDocs   int64
	TotalVersions int64 // history depth across all documents
	ChangeRecords int64
	Chunks        int64
	Insights      int64
	OpenDebts     int64 // unresolved sync debts
}

// DocJSON is the API-friendly representation of a Document with RFC3339
// timestamps, used for CLI output.
type DocJSON struct {
	ID        string            `json:"id"`
	Workspace string            `json:"workspace,omitempty"`
	Title     string            `json:"title"`
	Content   string            `json:"content,omitempty"`
	Status    string            `json:"status"`
	Tags      []string          `json:"tags,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Version   int               `json:"version"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

// ToJSON converts a Document to its API representation. The content parameter
// controls whether document content is included, allowing efficient listings.
func (d *Document) ToJSON(content bool) DocJSON {
	j := DocJSON{
		ID:        d.ID.String(),
		Workspace: d.WorkspaceID,
		Title:     d.Title,
		Status:    string(d.Status),
		Tags:      d.Tags,
		Metadata:  d.Metadata,
		Version:   d.CurrentVersion,
		CreatedAt: time.Unix(d.CreatedAt, 0).UTC().Format(time.RFC3339),
		UpdatedAt: time.Unix(d.UpdatedAt, 0).UTC().Format(time.RFC3339),
	}
	if content {
		j.Content = d.Content
	}
	return j
}

// MarshalJSON encodes a value with indentation for human-readable CLI output.
func MarshalJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
