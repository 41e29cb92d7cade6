package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

// SQLiteAuditRepo appends to the audit_log table; triggers reject UPDATE
// and DELETE.
type SQLiteAuditRepo struct {
	db *sql.DB
}

func NewSQLiteAuditRepo(db *sql.DB) *SQLiteAuditRepo {
	return &SQLiteAuditRepo{db: db}
}

func (r *SQLiteAuditRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, occurred_at, account_id, origin, action, detail, seal)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Timestamp.UnixMicro(), e.AccountID, e.Origin, string(e.Action), e.Detail, e.Seal)
	if err != nil {
		return sqliteErr(err)
	}
	return nil
}

func (r *SQLiteAuditRepo) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != "" {
		where, args = append(where, "account_id = ?"), append(args, f.AccountID)
	}
	if f.Action != "" {
		where, args = append(where, "action = ?"), append(args, string(f.Action))
	}
	if !f.From.IsZero() {
		where, args = append(where, "occurred_at >= ?"), append(args, f.From.UnixMicro())
	}
	if !f.To.IsZero() {
		where, args = append(where, "occurred_at < ?"), append(args, f.To.UnixMicro())
	}

	query := `SELECT id, occurred_at, account_id, origin, action, detail, seal FROM audit_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY occurred_at, seq`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteErr(err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e      domain.AuditEntry
			at     int64
			action string
		)
		if err := rows.Scan(&e.ID, &at, &e.AccountID, &e.Origin, &action, &e.Detail, &e.Seal); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		e.Timestamp = time.UnixMicro(at).UTC()
		e.Action = domain.AuditAction(action)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return out, nil
}
