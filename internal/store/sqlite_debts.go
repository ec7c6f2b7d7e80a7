// sqlite_debts.go implements the sync-debt ledger and insight storage for
// the SQLite backend.
//
// Debts are persisted rows, not in-memory state, so pending retries survive
// process restarts and exhausted debts stay visible until resolved.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const debtColumns = `id, document_id, stage, attempts, last_error, next_retry_at, surfaced, created_at, resolved_at`

func scanDebt(sc scanner) (SyncDebt, error) {
	var d SyncDebt
	var id, docID string
	var surfaced int
	var resolved sql.NullInt64
	if err := sc.Scan(&id, &docID, &d.Stage, &d.Attempts, &d.LastError, &d.NextRetryAt, &surfaced, &d.CreatedAt, &resolved); err != nil {
		return d, err
	}
	var err error
	if d.ID, err = uuid.Parse(id); err != nil {
		return d, fmt.Errorf("parse debt id: %w", err)
	}
	if d.DocumentID, err = uuid.Parse(docID); err != nil {
		return d, fmt.Errorf("parse document id: %w", err)
	}
	d.Surfaced = surfaced != 0
	if resolved.Valid {
		d.ResolvedAt = &resolved.Int64
	}
	return d, nil
}

// RecordDebt persists a new unresolved debt.
func (s *SQLiteStore) RecordDebt(ctx context.Context, d *SyncDebt) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sync_debts (id, document_id, stage, attempts, last_error, next_retry_at, surfaced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		d.ID.String(), d.DocumentID.String(), string(d.Stage), d.Attempts, d.LastError, d.NextRetryAt, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("record debt: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryDebts(ctx context.Context, q string, args ...any) ([]SyncDebt, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	var out []SyncDebt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DueDebts returns unresolved, unsurfaced debts due at or before now.
func (s *SQLiteStore) DueDebts(ctx context.Context, now time.Time, limit int) ([]SyncDebt, error) {
	q := `SELECT ` + debtColumns + ` FROM sync_debts
		WHERE resolved_at IS NULL AND surfaced = 0 AND next_retry_at <= ?
		ORDER BY next_retry_at`
	args := []any{now.Unix()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryDebts(ctx, q, args...)
}

// UnresolvedDebts returns open debts for one document.
func (s *SQLiteStore) UnresolvedDebts(ctx context.Context, docID uuid.UUID) ([]SyncDebt, error) {
	return s.queryDebts(ctx, `SELECT `+debtColumns+` FROM sync_debts
		WHERE document_id = ? AND resolved_at IS NULL ORDER BY created_at`, docID.String())
}

// ResolveDebt marks a debt repaid.
func (s *SQLiteStore) ResolveDebt(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `UPDATE sync_debts SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		time.Now().Unix(), id.String())
	if err != nil {
		return fmt.Errorf("resolve debt %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve debt %s: %w", id, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// RescheduleDebt bumps the attempt counter and next retry time.
func (s *SQLiteStore) RescheduleDebt(ctx context.Context, id uuid.UUID, attempts int, lastError string, next time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE sync_debts SET attempts = ?, last_error = ?, next_retry_at = ?
		WHERE id = ? AND resolved_at IS NULL`,
		attempts, lastError, next.Unix(), id.String())
	if err != nil {
		return fmt.Errorf("reschedule debt %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reschedule debt %s: %w", id, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SurfaceDebt marks a debt as exhausted.
func (s *SQLiteStore) SurfaceDebt(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `UPDATE sync_debts SET surfaced = 1 WHERE id = ? AND resolved_at IS NULL`, id.String())
	if err != nil {
		return fmt.Errorf("surface debt %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("surface debt %s: %w", id, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AddInsight stores an externally-produced insight record.
func (s *SQLiteStore) AddInsight(ctx context.Context, in *Insight) error {
	if !in.Kind.Valid() {
		return fmt.Errorf("%w: unknown insight kind %q", ErrValidation, in.Kind)
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrValidation, in.Confidence)
	}
	meta, err := encodeJSON(in.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO insights (id, document_id, kind, content, confidence, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ID.String(), in.DocumentID.String(), string(in.Kind), in.Content, in.Confidence, meta, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("add insight: %w", err)
	}
	return nil
}

// InsightsForDocument returns insights newest-first.
func (s *SQLiteStore) InsightsForDocument(ctx context.Context, docID uuid.UUID) ([]Insight, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, kind, content, confidence, metadata, created_at
		FROM insights WHERE document_id = ? ORDER BY created_at DESC, id`, docID.String())
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	var out []Insight
	for rows.Next() {
		var in Insight
		var id, dID, meta string
		if err := rows.Scan(&id, &dID, &in.Kind, &in.Content, &in.Confidence, &meta, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		if in.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse insight id: %w", err)
		}
		if in.DocumentID, err = uuid.Parse(dID); err != nil {
			return nil, fmt.Errorf("parse document id: %w", err)
		}
		if in.Metadata, err = decodeStringMap(meta); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
