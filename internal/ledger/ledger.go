// Package ledger implements the version ledger: the append-only history of
// document states with monotonic, gapless version numbers.
//
// Commit reads the document's current version, computes latest+1, and hands
// the snapshot plus derived change records to the store, whose CommitVersion
// performs the read-then-write atomically (row lock on Postgres, single
// transaction on SQLite). When two commits race, exactly one succeeds; the
// loser receives store.ErrVersionConflict and is expected to re-read current
// state and retry.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/knostack/knosync/internal/changes"
	"github.com/knostack/knosync/internal/store"
	"github.com/knostack/knosync/internal/validate"
)

// DefaultAuthor is used when a mutation arrives without an author.
const DefaultAuthor = "unknown"

// Limits bounds commit input sizes. Zero values apply validate defaults.
type Limits struct {
	MaxTitle   int
	MaxContent int64
}

// Ledger commits document versions against a relational store.
type Ledger struct {
	store  store.Store
	limits Limits
}

// New creates a Ledger backed by s.
func New(s store.Store, limits Limits) *Ledger {
	return &Ledger{store: s, limits: limits}
}

// CommitRequest describes one document mutation.
type CommitRequest struct {
	DocumentID  uuid.UUID
	WorkspaceID string
	Title       string
	Content     string
	ContentKind string
	Metadata    map[string]string
	Tags        []string
	Status      store.Status
	Author      string
	Summary     string // optional; derived from the content diff when empty

	// BaseVersion is the version the caller read before editing. When set,
	// a commit against a document that has since moved on fails with
	// ErrVersionConflict instead of silently overwriting.
	BaseVersion int
}

// Result is the outcome of a successful commit.
type Result struct {
	Document *store.Document
	Version  *store.DocumentVersion
	Records  []store.ChangeRecord
	Created  bool // true when this commit created the document
	NoOp     bool // true when nothing changed and no version was written
}

// Commit validates the request and appends a new version. Returns
// store.ErrVersionConflict when a concurrent commit wins the race, and
// store.ErrDocumentDeleted for commits against soft-deleted documents.
func (l *Ledger) Commit(ctx context.Context, req CommitRequest) (*Result, error) {
	if req.Author == "" {
		req.Author = DefaultAuthor
	}
	if req.Status == "" {
		req.Status = store.StatusDraft
	}
	if req.ContentKind == "" {
		req.ContentKind = "markdown"
	}
	if err := l.validateRequest(req); err != nil {
		return nil, err
	}

	doc, err := l.store.Document(ctx, req.DocumentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load document %s: %w", req.DocumentID, err)
	}

	var old *changes.Snapshot
	if doc != nil {
		if doc.Status == store.StatusDeleted {
			return nil, fmt.Errorf("commit %s: %w", req.DocumentID, store.ErrDocumentDeleted)
		}
		if req.BaseVersion > 0 && req.BaseVersion != doc.CurrentVersion {
			return nil, fmt.Errorf("commit %s: base version %d behind current %d: %w",
				req.DocumentID, req.BaseVersion, doc.CurrentVersion, store.ErrVersionConflict)
		}
		old = snapshotOf(doc)
	}

	next := changes.Snapshot{
		Title:    req.Title,
		Content:  req.Content,
		Metadata: req.Metadata,
		Tags:     req.Tags,
		Status:   req.Status,
	}
	derived := changes.Derive(old, next)
	if doc != nil && len(derived) == 0 {
		ver, err := l.store.LatestVersion(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("load latest version: %w", err)
		}
		return &Result{Document: doc, Version: ver, NoOp: true}, nil
	}

	return l.append(ctx, doc, req, derived)
}

// Delete soft-deletes a document: its status flips to deleted through a new
// version with a single deleted change record. Versions, change records,
// and chunks are all retained for audit.
func (l *Ledger) Delete(ctx context.Context, docID uuid.UUID, author string) (*Result, error) {
	doc, err := l.store.Document(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", docID, err)
	}
	if doc.Status == store.StatusDeleted {
		return nil, fmt.Errorf("delete %s: %w", docID, store.ErrDocumentDeleted)
	}

	req := requestFrom(doc, author)
	req.Status = store.StatusDeleted
	req.Summary = "deleted"
	derived := changes.Derive(snapshotOf(doc), changes.Snapshot{
		Title: doc.Title, Content: doc.Content, Metadata: doc.Metadata, Tags: doc.Tags,
		Status: store.StatusDeleted,
	})
	return l.append(ctx, doc, req, derived)
}

// Restore recovers a soft-deleted document back to draft status.
func (l *Ledger) Restore(ctx context.Context, docID uuid.UUID, author string) (*Result, error) {
	doc, err := l.store.Document(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", docID, err)
	}
	if doc.Status != store.StatusDeleted {
		return nil, fmt.Errorf("%w: restore %s: document is not deleted", store.ErrValidation, docID)
	}

	req := requestFrom(doc, author)
	req.Status = store.StatusDraft
	req.Summary = "restored"
	derived := changes.Derive(snapshotOf(doc), changes.Snapshot{
		Title: doc.Title, Content: doc.Content, Metadata: doc.Metadata, Tags: doc.Tags,
		Status: store.StatusDraft,
	})
	return l.append(ctx, doc, req, derived)
}

// append builds the version snapshot and change records and commits them
// through the store's atomic CommitVersion.
func (l *Ledger) append(ctx context.Context, doc *store.Document, req CommitRequest, derived []changes.Change) (*Result, error) {
	now := time.Now().Unix()
	created := doc == nil

	nextVersion := 1
	oldContent := ""
	if doc != nil {
		nextVersion = doc.CurrentVersion + 1
		oldContent = doc.Content
	}

	summary := req.Summary
	if summary == "" {
		summary = changes.Summary(oldContent, req.Content)
	}

	ver := &store.DocumentVersion{
		ID:         uuid.New(),
		DocumentID: req.DocumentID,
		Version:    nextVersion,
		Title:      req.Title,
		Content:    req.Content,
		Metadata:   req.Metadata,
		Author:     req.Author,
		Summary:    summary,
		CreatedAt:  now,
	}

	records := make([]store.ChangeRecord, 0, len(derived))
	for _, c := range derived {
		records = append(records, store.ChangeRecord{
			ID:         uuid.New(),
			DocumentID: req.DocumentID,
			VersionID:  ver.ID,
			Kind:       c.Kind,
			Field:      c.Field,
			OldValue:   c.OldValue,
			NewValue:   c.NewValue,
			Author:     req.Author,
			CreatedAt:  now,
		})
	}

	next := &store.Document{
		ID:             req.DocumentID,
		WorkspaceID:    req.WorkspaceID,
		Title:          req.Title,
		Content:        req.Content,
		ContentKind:    req.ContentKind,
		Status:         req.Status,
		Tags:           req.Tags,
		Metadata:       req.Metadata,
		CurrentVersion: nextVersion,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if doc != nil {
		next.WorkspaceID = doc.WorkspaceID
		next.CreatedAt = doc.CreatedAt
	}

	if err := l.store.CommitVersion(ctx, next, ver, records); err != nil {
		return nil, err
	}
	return &Result{Document: next, Version: ver, Records: records, Created: created}, nil
}

func (l *Ledger) validateRequest(req CommitRequest) error {
	if req.DocumentID == uuid.Nil {
		return fmt.Errorf("%w: document id must not be nil", store.ErrValidation)
	}
	if err := validate.Title(req.Title, l.limits.MaxTitle); err != nil {
		return err
	}
	if err := validate.Content(req.Content, l.limits.MaxContent); err != nil {
		return err
	}
	if err := validate.Status(req.Status); err != nil {
		return err
	}
	if err := validate.Author(req.Author); err != nil {
		return err
	}
	return validate.Tags(req.Tags)
}

func snapshotOf(doc *store.Document) *changes.Snapshot {
	return &changes.Snapshot{
		Title:    doc.Title,
		Content:  doc.Content,
		Metadata: doc.Metadata,
		Tags:     doc.Tags,
		Status:   doc.Status,
	}
}

// requestFrom builds a same-content request used by Delete and Restore,
// which change only the status.
func requestFrom(doc *store.Document, author string) CommitRequest {
	if author == "" {
		author = DefaultAuthor
	}
	return CommitRequest{
		DocumentID:  doc.ID,
		WorkspaceID: doc.WorkspaceID,
		Title:       doc.Title,
		Content:     doc.Content,
		ContentKind: doc.ContentKind,
		Metadata:    doc.Metadata,
		Tags:        doc.Tags,
		Author:      author,
	}
}
