// postgres_docs.go implements document, version, and change-log operations
// for the Postgres backend.
//
// Design: CommitVersion takes a transaction-level row lock on the document
// (SELECT ... FOR UPDATE) before reading current_version, which serialises
// concurrent commits on the same document across processes. A race that
// slips past the lock (new-document creation) is caught by the unique
// (document_id, version) constraint and reported as ErrVersionConflict.

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *PostgresStore) scanDocPg(row pgx.Row) (*Document, error) {
	var d Document
	var tags, meta string
	err := row.Scan(&d.ID, &d.WorkspaceID, &d.Title, &d.Content, &d.ContentKind, &d.Status,
		&tags, &meta, &d.CurrentVersion, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if d.Tags, err = decodeStringSlice(tags); err != nil {
		return nil, err
	}
	if d.Metadata, err = decodeStringMap(meta); err != nil {
		return nil, err
	}
	return &d, nil
}

// Document retrieves the live row for a document.
func (s *PostgresStore) Document(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.scanDocPg(s.pool.QueryRow(ctx,
		`SELECT id, workspace_id, title, content, content_kind, status, tags, metadata, current_version, created_at, updated_at
		 FROM documents WHERE id = $1`, id))
}

// Documents lists live rows, optionally filtered by workspace.
func (s *PostgresStore) Documents(ctx context.Context, workspaceID string, includeDeleted bool) ([]Document, error) {
	q := `SELECT id, workspace_id, title, content, content_kind, status, tags, metadata, current_version, created_at, updated_at
		FROM documents WHERE ($1 = '' OR workspace_id = $1)`
	if !includeDeleted {
		q += ` AND status != 'deleted'`
	}
	q += ` ORDER BY title, id`

	rows, err := s.pool.Query(ctx, q, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var tags, meta string
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.Title, &d.Content, &d.ContentKind, &d.Status,
			&tags, &meta, &d.CurrentVersion, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if d.Tags, err = decodeStringSlice(tags); err != nil {
			return nil, err
		}
		if d.Metadata, err = decodeStringMap(meta); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// CommitVersion atomically persists a version snapshot, its change records,
// and the live-row update, under a per-document row lock.
func (s *PostgresStore) CommitVersion(ctx context.Context, doc *Document, ver *DocumentVersion, records []ChangeRecord) error {
	tags, err := encodeJSON(doc.Tags)
	if err != nil {
		return err
	}
	docMeta, err := encodeJSON(doc.Metadata)
	if err != nil {
		return err
	}
	verMeta, err := encodeJSON(ver.Metadata)
	if err != nil {
		return err
	}
	expected := ver.Version - 1

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // no-op after commit

	var current int
	err = tx.QueryRow(ctx, `SELECT current_version FROM documents WHERE id = $1 FOR UPDATE`, doc.ID).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if expected != 0 {
			return fmt.Errorf("commit %s: %w", doc.ID, ErrVersionConflict)
		}
		_, err = tx.Exec(ctx, `INSERT INTO documents (id, workspace_id, title, content, content_kind, status, tags, metadata, current_version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			doc.ID, doc.WorkspaceID, doc.Title, doc.Content, doc.ContentKind, string(doc.Status),
			tags, docMeta, ver.Version, doc.CreatedAt, doc.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("commit %s: %w", doc.ID, ErrVersionConflict)
			}
			return fmt.Errorf("insert document: %w", err)
		}
	case err != nil:
		return fmt.Errorf("get current version: %w", err)
	default:
		if current != expected {
			return fmt.Errorf("commit %s at version %d (current %d): %w", doc.ID, ver.Version, current, ErrVersionConflict)
		}
		_, err = tx.Exec(ctx, `UPDATE documents
			SET title = $1, content = $2, content_kind = $3, status = $4, tags = $5, metadata = $6, current_version = $7, updated_at = $8
			WHERE id = $9`,
			doc.Title, doc.Content, doc.ContentKind, string(doc.Status), tags, docMeta,
			ver.Version, doc.UpdatedAt, doc.ID)
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `INSERT INTO document_versions (id, document_id, version, title, content, metadata, author, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ver.ID, ver.DocumentID, ver.Version, ver.Title, ver.Content, verMeta, ver.Author, ver.Summary, ver.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("commit %s: %w", doc.ID, ErrVersionConflict)
		}
		return fmt.Errorf("insert version: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`INSERT INTO change_records (id, document_id, version_id, kind, field, old_value, new_value, author, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.ID, r.DocumentID, r.VersionID, string(r.Kind), r.Field, r.OldValue, r.NewValue, r.Author, r.CreatedAt)
	}
	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert change record: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("insert change records: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanVersionPg(row pgx.Row) (*DocumentVersion, error) {
	var v DocumentVersion
	var meta string
	err := row.Scan(&v.ID, &v.DocumentID, &v.Version, &v.Title, &v.Content, &meta, &v.Author, &v.Summary, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan version: %w", err)
	}
	if v.Metadata, err = decodeStringMap(meta); err != nil {
		return nil, err
	}
	return &v, nil
}

// LatestVersion returns the highest-numbered version for a document.
func (s *PostgresStore) LatestVersion(ctx context.Context, docID uuid.UUID) (*DocumentVersion, error) {
	return s.scanVersionPg(s.pool.QueryRow(ctx,
		`SELECT id, document_id, version, title, content, metadata, author, summary, created_at
		 FROM document_versions WHERE document_id = $1 ORDER BY version DESC LIMIT 1`, docID))
}

// Version retrieves a specific historical version.
func (s *PostgresStore) Version(ctx context.Context, docID uuid.UUID, version int) (*DocumentVersion, error) {
	return s.scanVersionPg(s.pool.QueryRow(ctx,
		`SELECT id, document_id, version, title, content, metadata, author, summary, created_at
		 FROM document_versions WHERE document_id = $1 AND version = $2`, docID, version))
}

// History returns versions newest-first. limit 0 means all.
func (s *PostgresStore) History(ctx context.Context, docID uuid.UUID, limit int) ([]DocumentVersion, error) {
	q := `SELECT id, document_id, version, title, content, metadata, author, summary, created_at
		FROM document_versions WHERE document_id = $1 ORDER BY version DESC`
	args := []any{docID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []DocumentVersion
	for rows.Next() {
		var v DocumentVersion
		var meta string
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Version, &v.Title, &v.Content, &meta, &v.Author, &v.Summary, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		if v.Metadata, err = decodeStringMap(meta); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) queryChangesPg(ctx context.Context, q string, args ...any) ([]ChangeRecord, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var out []ChangeRecord
	for rows.Next() {
		var c ChangeRecord
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.VersionID, &c.Kind, &c.Field, &c.OldValue, &c.NewValue, &c.Author, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChangesForDocument returns change records in commit order, oldest first.
func (s *PostgresStore) ChangesForDocument(ctx context.Context, docID uuid.UUID) ([]ChangeRecord, error) {
	return s.queryChangesPg(ctx, `SELECT c.id, c.document_id, c.version_id, c.kind, c.field, c.old_value, c.new_value, c.author, c.created_at
		FROM change_records c
		JOIN document_versions v ON v.id = c.version_id
		WHERE c.document_id = $1
		ORDER BY v.version, c.field`, docID)
}

// ChangesForVersion returns the records for one version transition.
func (s *PostgresStore) ChangesForVersion(ctx context.Context, versionID uuid.UUID) ([]ChangeRecord, error) {
	return s.queryChangesPg(ctx, `SELECT id, document_id, version_id, kind, field, old_value, new_value, author, created_at
		FROM change_records WHERE version_id = $1 ORDER BY field`, versionID)
}

// Stats returns aggregate statistics for operational dashboards.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM documents WHERE status != 'deleted'),
		(SELECT COUNT(*) FROM documents WHERE status = 'deleted'),
		(SELECT COUNT(*) FROM document_versions),
		(SELECT COUNT(*) FROM change_records),
		(SELECT COUNT(*) FROM embedding_chunks),
		(SELECT COUNT(*) FROM insights),
		(SELECT COUNT(*) FROM sync_debts WHERE resolved_at IS NULL)`).
		Scan(&st.Documents, &st.DeletedDocs, &st.TotalVersions, &st.ChangeRecords, &st.Chunks, &st.Insights, &st.OpenDebts)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &st, nil
}
