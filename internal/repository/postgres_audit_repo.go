package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

// PostgresAuditRepo appends to the audit_log table. The table carries
// triggers that reject UPDATE, DELETE and TRUNCATE.
type PostgresAuditRepo struct {
	db *sql.DB
}

func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// Append inserts an immutable record into the audit_log table.
func (r *PostgresAuditRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, occurred_at, account_id, origin, action, detail, seal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	// Anonymous events (e.g. a failed login for an unknown handle) carry a NULL account.
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Timestamp, nullString(e.AccountID), e.Origin, string(e.Action), e.Detail, e.Seal)
	if err != nil {
		return postgresErr(err)
	}
	return nil
}

func (r *PostgresAuditRepo) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.AccountID != "" {
		add("account_id = $%d", f.AccountID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To)
	}

	query := `SELECT id, occurred_at, COALESCE(account_id::text, ''), origin, action, detail, seal FROM audit_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY occurred_at, seq`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		if err = postgresErr(err); errors.Is(err, domain.ErrNotFound) {
			// A malformed account id matches nothing.
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var action string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.AccountID, &e.Origin, &action, &e.Detail, &e.Seal); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		e.Action = domain.AuditAction(action)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return out, nil
}
