package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

const accountColumns = `id, handle, password_hash, display_name, contact, role, enabled,
		failed_attempts, locked_until, password_changed_at, COALESCE(mfa_secret, ''), mfa_enabled,
		backup_codes, last_login_at, last_origin, created_at, updated_at`

// PostgresAccountRepo implements domain.AccountRepository using PostgreSQL.
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo creates a new repository instance.
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresAccount(row rowScanner) (*domain.Account, error) {
	a := &domain.Account{}
	var lockedUntil, lastLogin sql.NullTime
	err := row.Scan(
		&a.ID,
		&a.Handle,
		&a.PasswordHash,
		&a.DisplayName,
		&a.Contact,
		&a.Role,
		&a.Enabled,
		&a.FailedAttempts,
		&lockedUntil,
		&a.PasswordChangedAt,
		&a.MFASecret,
		&a.MFAEnabled,
		pq.Array(&a.BackupCodes),
		&lastLogin,
		&a.LastOrigin,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.LockedUntil = fromNullTime(lockedUntil)
	a.LastLoginAt = fromNullTime(lastLogin)
	return a, nil
}

// GetByHandle retrieves an account by its login handle.
func (r *PostgresAccountRepo) GetByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE handle = $1`
	a, err := scanPostgresAccount(r.db.QueryRowContext(ctx, query, handle))
	if err != nil {
		return nil, postgresErr(err)
	}
	return a, nil
}

// GetByID retrieves an account by its UUID.
func (r *PostgresAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err := scanPostgresAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, postgresErr(err)
	}
	return a, nil
}

// Create inserts a new account. The id is assigned here when empty.
func (r *PostgresAccountRepo) Create(ctx context.Context, a *domain.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	query := `
		INSERT INTO accounts (id, handle, password_hash, display_name, contact, role, enabled,
			failed_attempts, locked_until, password_changed_at, mfa_secret, mfa_enabled,
			backup_codes, last_login_at, last_origin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.Handle,
		a.PasswordHash,
		a.DisplayName,
		a.Contact,
		a.Role,
		a.Enabled,
		a.FailedAttempts,
		toNullTime(a.LockedUntil),
		a.PasswordChangedAt,
		nullString(a.MFASecret),
		a.MFAEnabled,
		pq.Array(nonNil(a.BackupCodes)),
		toNullTime(a.LastLoginAt),
		a.LastOrigin,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return postgresErr(err)
	}
	return nil
}

// Count returns the number of stored accounts.
func (r *PostgresAccountRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, postgresErr(err)
	}
	return n, nil
}

// Update locks the row with SELECT ... FOR UPDATE for the length of the
// transaction, so concurrent logins against one account are serialised.
func (r *PostgresAccountRepo) Update(ctx context.Context, id string, fn func(*domain.Account) error) (*domain.Account, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	current, err := scanPostgresAccount(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, postgresErr(err)
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID, working.Handle, working.Contact, working.CreatedAt = current.ID, current.Handle, current.Contact, current.CreatedAt
	working.UpdatedAt = time.Now().UTC()

	update := `
		UPDATE accounts
		SET password_hash = $2, display_name = $3, role = $4, enabled = $5,
			failed_attempts = $6, locked_until = $7, password_changed_at = $8,
			mfa_secret = $9, mfa_enabled = $10, backup_codes = $11,
			last_login_at = $12, last_origin = $13, updated_at = $14
		WHERE id = $1
	`
	_, err = tx.ExecContext(ctx, update,
		working.ID,
		working.PasswordHash,
		working.DisplayName,
		working.Role,
		working.Enabled,
		working.FailedAttempts,
		toNullTime(working.LockedUntil),
		working.PasswordChangedAt,
		nullString(working.MFASecret),
		working.MFAEnabled,
		pq.Array(nonNil(working.BackupCodes)),
		toNullTime(working.LastLoginAt),
		working.LastOrigin,
		working.UpdatedAt,
	)
	if err != nil {
		return nil, postgresErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return working, nil
}

// postgresErr maps driver errors onto the domain's storage errors.
func postgresErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return domain.ErrConflict
		case "22P02": // invalid_text_representation, e.g. a malformed uuid
			return domain.ErrNotFound
		}
	}
	return fmt.Errorf("database error: %w", err)
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return codes
}
