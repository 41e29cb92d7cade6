package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

// SQLite has no native timestamp or array types: times are stored as unix
// microseconds and backup codes as a JSON array.

const sqliteAccountColumns = `id, handle, password_hash, display_name, contact, role, enabled,
		failed_attempts, locked_until, password_changed_at, mfa_secret, mfa_enabled,
		backup_codes, last_login_at, last_origin, created_at, updated_at`

// SQLiteAccountRepo implements domain.AccountRepository for single-node
// deployments. It expects a *sql.DB limited to one open connection.
type SQLiteAccountRepo struct {
	db *sql.DB
}

func NewSQLiteAccountRepo(db *sql.DB) *SQLiteAccountRepo {
	return &SQLiteAccountRepo{db: db}
}

func scanSQLiteAccount(row rowScanner) (*domain.Account, error) {
	a := &domain.Account{}
	var (
		lockedUntil, lastLogin          sql.NullInt64
		changedAt, createdAt, updatedAt int64
		codes                           string
	)
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
		&changedAt,
		&a.MFASecret,
		&a.MFAEnabled,
		&codes,
		&lastLogin,
		&a.LastOrigin,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(codes), &a.BackupCodes); err != nil {
		return nil, fmt.Errorf("decode backup codes: %w", err)
	}
	a.LockedUntil = fromMicros(lockedUntil)
	a.LastLoginAt = fromMicros(lastLogin)
	a.PasswordChangedAt = time.UnixMicro(changedAt).UTC()
	a.CreatedAt = time.UnixMicro(createdAt).UTC()
	a.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return a, nil
}

func (r *SQLiteAccountRepo) GetByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	query := `SELECT ` + sqliteAccountColumns + ` FROM accounts WHERE handle = ?`
	a, err := scanSQLiteAccount(r.db.QueryRowContext(ctx, query, handle))
	if err != nil {
		return nil, sqliteErr(err)
	}
	return a, nil
}

func (r *SQLiteAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + sqliteAccountColumns + ` FROM accounts WHERE id = ?`
	a, err := scanSQLiteAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, sqliteErr(err)
	}
	return a, nil
}

func (r *SQLiteAccountRepo) Create(ctx context.Context, a *domain.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	codes, err := json.Marshal(nonNil(a.BackupCodes))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (` + sqliteAccountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		a.ID,
		a.Handle,
		a.PasswordHash,
		a.DisplayName,
		a.Contact,
		a.Role,
		a.Enabled,
		a.FailedAttempts,
		toMicros(a.LockedUntil),
		a.PasswordChangedAt.UnixMicro(),
		a.MFASecret,
		a.MFAEnabled,
		string(codes),
		toMicros(a.LastLoginAt),
		a.LastOrigin,
		a.CreatedAt.UnixMicro(),
		a.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		return sqliteErr(err)
	}
	return nil
}

func (r *SQLiteAccountRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, sqliteErr(err)
	}
	return n, nil
}

// Update runs inside a transaction on the pool's single connection, which
// excludes every other reader and writer until it commits.
func (r *SQLiteAccountRepo) Update(ctx context.Context, id string, fn func(*domain.Account) error) (*domain.Account, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `SELECT ` + sqliteAccountColumns + ` FROM accounts WHERE id = ?`
	current, err := scanSQLiteAccount(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, sqliteErr(err)
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID, working.Handle, working.Contact, working.CreatedAt = current.ID, current.Handle, current.Contact, current.CreatedAt
	working.UpdatedAt = time.Now().UTC()

	codes, err := json.Marshal(nonNil(working.BackupCodes))
	if err != nil {
		return nil, err
	}

	update := `
		UPDATE accounts
		SET password_hash = ?, display_name = ?, role = ?, enabled = ?,
			failed_attempts = ?, locked_until = ?, password_changed_at = ?,
			mfa_secret = ?, mfa_enabled = ?, backup_codes = ?,
			last_login_at = ?, last_origin = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = tx.ExecContext(ctx, update,
		working.PasswordHash,
		working.DisplayName,
		working.Role,
		working.Enabled,
		working.FailedAttempts,
		toMicros(working.LockedUntil),
		working.PasswordChangedAt.UnixMicro(),
		working.MFASecret,
		working.MFAEnabled,
		string(codes),
		toMicros(working.LastLoginAt),
		working.LastOrigin,
		working.UpdatedAt.UnixMicro(),
		working.ID,
	)
	if err != nil {
		return nil, sqliteErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return working, nil
}

func sqliteErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) && (se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
		return domain.ErrConflict
	}
	return fmt.Errorf("database error: %w", err)
}

func toMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}

func fromMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMicro(v.Int64).UTC()
	return &t
}
