package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/medquiz/keeper/internal/core/domain"
)

// AuditRepo persists CRITICAL error records to the error_audit table.
// It implements errlog.Sink.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a repo over db.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Write inserts a record. Context is stored as JSONB; records are
// sanitized before they reach any sink, so raw values never land here.
func (r *AuditRepo) Write(ctx context.Context, rec domain.ErrorRecord) error {
	var contextJSON []byte
	if rec.Context != nil {
		var err error
		contextJSON, err = json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal context: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO error_audit
			(id, occurred_at, kind, severity, message, context, hashed_user_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Timestamp, rec.Kind, rec.Severity,
		rec.Message, contextJSON, nullable(rec.HashedUserID), rec.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Recent returns the n most recent audit records, newest first.
func (r *AuditRepo) Recent(ctx context.Context, n int) ([]domain.ErrorRecord, error) {
	var rows []domain.ErrorRecord
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, occurred_at, kind, severity, message,
			COALESCE(hashed_user_id, '') AS hashed_user_id, session_id
		FROM error_audit
		ORDER BY occurred_at DESC
		LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	return rows, nil
}

// Count returns the total number of audit records.
func (r *AuditRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM error_audit`); err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	return count, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
