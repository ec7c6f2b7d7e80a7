// sqlite_docs.go implements document, version, and change-log operations
// for the SQLite backend.
//
// Design: CommitVersion is the only mutation path for document state. It
// runs the latest-version read, the snapshot insert, the change-record
// inserts, and the live-row update in one transaction with compare-and-swap
// on current_version, so two concurrent commits on the same document can
// never both succeed with the same version number.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const docColumns = `id, workspace_id, title, content, content_kind, status, tags, metadata, current_version, created_at, updated_at`

func scanDocRow(sc scanner) (Document, error) {
	var d Document
	var id, tags, meta string
	if err := sc.Scan(&id, &d.WorkspaceID, &d.Title, &d.Content, &d.ContentKind, &d.Status, &tags, &meta, &d.CurrentVersion, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return d, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return d, fmt.Errorf("parse document id: %w", err)
	}
	d.ID = parsed
	if d.Tags, err = decodeStringSlice(tags); err != nil {
		return d, err
	}
	if d.Metadata, err = decodeStringMap(meta); err != nil {
		return d, err
	}
	return d, nil
}

// Document retrieves the live row for a document.
func (s *SQLiteStore) Document(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+docColumns+` FROM documents WHERE id = ?`, id.String())
	d, err := scanDocRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &d, nil
}

// Documents lists live rows, optionally filtered by workspace.
func (s *SQLiteStore) Documents(ctx context.Context, workspaceID string, includeDeleted bool) ([]Document, error) {
	q := `SELECT ` + docColumns + ` FROM documents WHERE 1=1`
	args := []any{}
	if workspaceID != "" {
		q += ` AND workspace_id = ?`
		args = append(args, workspaceID)
	}
	if !includeDeleted {
		q += ` AND status != ?`
		args = append(args, string(StatusDeleted))
	}
	q += ` ORDER BY title, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// CommitVersion atomically persists a version snapshot, its change records,
// and the live-row update. See interfaces.go for the CAS contract.
func (s *SQLiteStore) CommitVersion(ctx context.Context, doc *Document, ver *DocumentVersion, records []ChangeRecord) error {
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

	return s.Tx(ctx, func(tx *sql.Tx) error {
		var current int
		err := tx.QueryRowContext(ctx, `SELECT current_version FROM documents WHERE id = ?`, doc.ID.String()).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if expected != 0 {
				return fmt.Errorf("commit %s: %w", doc.ID, ErrVersionConflict)
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO documents (`+docColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				doc.ID.String(), doc.WorkspaceID, doc.Title, doc.Content, doc.ContentKind, string(doc.Status),
				tags, docMeta, ver.Version, doc.CreatedAt, doc.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert document: %w", err)
			}
		case err != nil:
			return fmt.Errorf("get current version: %w", err)
		default:
			if current != expected {
				return fmt.Errorf("commit %s at version %d (current %d): %w", doc.ID, ver.Version, current, ErrVersionConflict)
			}
			_, err = tx.ExecContext(ctx, `UPDATE documents
				SET title = ?, content = ?, content_kind = ?, status = ?, tags = ?, metadata = ?, current_version = ?, updated_at = ?
				WHERE id = ? AND current_version = ?`,
				doc.Title, doc.Content, doc.ContentKind, string(doc.Status), tags, docMeta,
				ver.Version, doc.UpdatedAt, doc.ID.String(), expected)
			if err != nil {
				return fmt.Errorf("update document: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO document_versions (id, document_id, version, title, content, metadata, author, summary, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ver.ID.String(), ver.DocumentID.String(), ver.Version, ver.Title, ver.Content, verMeta, ver.Author, ver.Summary, ver.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert version: %w", err)
		}

		for _, r := range records {
			_, err = tx.ExecContext(ctx, `INSERT INTO change_records (id, document_id, version_id, kind, field, old_value, new_value, author, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID.String(), r.DocumentID.String(), r.VersionID.String(), string(r.Kind), r.Field, r.OldValue, r.NewValue, r.Author, r.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert change record: %w", err)
			}
		}
		return nil
	})
}

const verColumns = `id, document_id, version, title, content, metadata, author, summary, created_at`

func scanVersion(sc scanner) (DocumentVersion, error) {
	var v DocumentVersion
	var id, docID, meta string
	if err := sc.Scan(&id, &docID, &v.Version, &v.Title, &v.Content, &meta, &v.Author, &v.Summary, &v.CreatedAt); err != nil {
		return v, err
	}
	var err error
	if v.ID, err = uuid.Parse(id); err != nil {
		return v, fmt.Errorf("parse version id: %w", err)
	}
	if v.DocumentID, err = uuid.Parse(docID); err != nil {
		return v, fmt.Errorf("parse document id: %w", err)
	}
	if v.Metadata, err = decodeStringMap(meta); err != nil {
		return v, err
	}
	return v, nil
}

// LatestVersion returns the highest-numbered version for a document.
func (s *SQLiteStore) LatestVersion(ctx context.Context, docID uuid.UUID) (*DocumentVersion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+verColumns+` FROM document_versions
		WHERE document_id = ? ORDER BY version DESC LIMIT 1`, docID.String())
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan version: %w", err)
	}
	return &v, nil
}

// Version retrieves a specific historical version.
func (s *SQLiteStore) Version(ctx context.Context, docID uuid.UUID, version int) (*DocumentVersion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+verColumns+` FROM document_versions
		WHERE document_id = ? AND version = ?`, docID.String(), version)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan version: %w", err)
	}
	return &v, nil
}

// History returns versions newest-first. limit 0 means all.
func (s *SQLiteStore) History(ctx context.Context, docID uuid.UUID, limit int) ([]DocumentVersion, error) {
	q := `SELECT ` + verColumns + ` FROM document_versions WHERE document_id = ? ORDER BY version DESC`
	args := []any{docID.String()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []DocumentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const changeColumns = `id, document_id, version_id, kind, field, old_value, new_value, author, created_at`

func scanChange(sc scanner) (ChangeRecord, error) {
	var c ChangeRecord
	var id, docID, verID string
	if err := sc.Scan(&id, &docID, &verID, &c.Kind, &c.Field, &c.OldValue, &c.NewValue, &c.Author, &c.CreatedAt); err != nil {
		return c, err
	}
	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return c, fmt.Errorf("parse change id: %w", err)
	}
	if c.DocumentID, err = uuid.Parse(docID); err != nil {
		return c, fmt.Errorf("parse document id: %w", err)
	}
	if c.VersionID, err = uuid.Parse(verID); err != nil {
		return c, fmt.Errorf("parse version id: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) queryChanges(ctx context.Context, q string, args ...any) ([]ChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var out []ChangeRecord
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChangesForDocument returns change records in commit order, oldest first.
// Ordering joins on the version number so replay is deterministic even when
// several commits share a timestamp.
func (s *SQLiteStore) ChangesForDocument(ctx context.Context, docID uuid.UUID) ([]ChangeRecord, error) {
	return s.queryChanges(ctx, `SELECT c.id, c.document_id, c.version_id, c.kind, c.field, c.old_value, c.new_value, c.author, c.created_at
		FROM change_records c
		JOIN document_versions v ON v.id = c.version_id
		WHERE c.document_id = ?
		ORDER BY v.version, c.field`, docID.String())
}

// ChangesForVersion returns the records for one version transition.
func (s *SQLiteStore) ChangesForVersion(ctx context.Context, versionID uuid.UUID) ([]ChangeRecord, error) {
	return s.queryChanges(ctx, `SELECT `+changeColumns+` FROM change_records WHERE version_id = ? ORDER BY field`, versionID.String())
}

// Stats returns aggregate statistics for operational dashboards.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	queries := []struct {
		dest *int64
		q    string
	}{
		{&st.Documents, `SELECT COUNT(*) FROM documents WHERE status != 'deleted'`},
		{&st.DeletedDocs, `SELECT COUNT(*) FROM documents WHERE status = 'deleted'`},
		{&st.TotalVersions, `SELECT COUNT(*) FROM document_versions`},
		{&st.ChangeRecords, `SELECT COUNT(*) FROM change_records`},
		{&st.Chunks, `SELECT COUNT(*) FROM embedding_chunks`},
		{&st.Insights, `SELECT COUNT(*) FROM insights`},
		{&st.OpenDebts, `SELECT COUNT(*) FROM sync_debts WHERE resolved_at IS NULL`},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.q).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}
	return &st, nil
}
