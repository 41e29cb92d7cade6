package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

var accountRowColumns = []string{
	"id", "handle", "password_hash", "display_name", "contact", "role", "enabled",
	"failed_attempts", "locked_until", "password_changed_at", "mfa_secret", "mfa_enabled",
	"backup_codes", "last_login_at", "last_origin", "created_at", "updated_at",
}

func newPostgresMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func accountRow(id, handle string, failed int) *sqlmock.Rows {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(accountRowColumns).AddRow(
		id, handle, "$argon2id$hash", "Alice", handle+"@example.com", "medico", true,
		failed, nil, now, "JBSWY3DPEHPK3PXP", true,
		"{AAAA1111,BBBB2222}", nil, "", now, now,
	)
}

func TestPostgresAccountRepo_GetByHandle(t *testing.T) {
	db, mock := newPostgresMock(t)
	repo := NewPostgresAccountRepo(db)

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*handle,.*FROM\s+accounts\s+WHERE\s+handle\s*=\s*\$1$`).
		WithArgs("alice").
		WillReturnRows(accountRow("u-1", "alice", 2))

	a, err := repo.GetByHandle(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "u-1", a.ID)
	assert.Equal(t, 2, a.FailedAttempts)
	assert.Nil(t, a.LockedUntil)
	assert.True(t, a.MFAEnabled)
	assert.Equal(t, []string{"AAAA1111", "BBBB2222"}, a.BackupCodes)
}

func TestPostgresAccountRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newPostgresMock(t)
	repo := NewPostgresAccountRepo(db)

	mock.ExpectQuery(`FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02"})

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresAccountRepo_Create(t *testing.T) {
	db, mock := newPostgresMock(t)
	repo := NewPostgresAccountRepo(db)

	args := make([]driver.Value, 17)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+accounts\s*\(`).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+accounts\s*\(`).
		WithArgs(args...).
		WillReturnError(&pq.Error{Code: "23505"})

	a := &domain.Account{Handle: "alice", Contact: "alice@example.com", Role: "medico", Enabled: true}
	require.NoError(t, repo.Create(context.Background(), a))
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	err := repo.Create(context.Background(), &domain.Account{Handle: "alice", Contact: "other@example.com"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPostgresAccountRepo_UpdateLocksRow(t *testing.T) {
	db, mock := newPostgresMock(t)
	repo := NewPostgresAccountRepo(db)

	args := make([]driver.Value, 14)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[0] = "u-1"
	args[5] = 3 // failed_attempts

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE$`).
		WithArgs("u-1").
		WillReturnRows(accountRow("u-1", "alice", 2))
	mock.ExpectExec(`(?s)^\s*UPDATE\s+accounts\s+SET\s+password_hash\s*=\s*\$2,.*WHERE\s+id\s*=\s*\$1`).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Update(context.Background(), "u-1", func(a *domain.Account) error {
		a.FailedAttempts++
		a.Handle = "mallory"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, got.FailedAttempts)
	assert.Equal(t, "alice", got.Handle, "identity fields are immutable")
}

func TestPostgresAccountRepo_UpdateAbortRollsBack(t *testing.T) {
	db, mock := newPostgresMock(t)
	repo := NewPostgresAccountRepo(db)
	abort := errors.New("abort")

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR\s+UPDATE`).
		WithArgs("u-1").
		WillReturnRows(accountRow("u-1", "alice", 0))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "u-1", func(*domain.Account) error { return abort })
	assert.ErrorIs(t, err, abort)
}

func TestPostgresAccountRepo_Count(t *testing.T) {
	db, mock := newPostgresMock(t)
	repo := NewPostgresAccountRepo(db)

	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM accounts$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPostgresAuditRepo_List(t *testing.T) {
	db, mock := newPostgresMock(t)
	repo := NewPostgresAuditRepo(db)
	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)FROM\s+audit_log\s+WHERE\s+account_id\s*=\s*\$1\s+AND\s+action\s*=\s*\$2\s+AND\s+occurred_at\s*>=\s*\$3\s+ORDER\s+BY\s+occurred_at,\s*seq\s+LIMIT\s+\$4$`).
		WithArgs("u-1", "LOGIN_FAILED", from, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "occurred_at", "account_id", "origin", "action", "detail", "seal"}).
			AddRow("e-1", from.Add(time.Minute), "u-1", "10.0.0.1", "LOGIN_FAILED", "invalid password", "abcd"))

	entries, err := repo.List(context.Background(), domain.AuditFilter{
		AccountID: "u-1",
		Action:    domain.AuditLoginFailed,
		From:      from,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditLoginFailed, entries[0].Action)
	assert.Equal(t, "10.0.0.1", entries[0].Origin)
}

func TestPostgresAuditRepo_AppendAnonymous(t *testing.T) {
	db, mock := newPostgresMock(t)
	repo := NewPostgresAuditRepo(db)
	at := time.Now().UTC()

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+audit_log`).
		WithArgs("e-1", at, nil, "10.0.0.9", "LOGIN_FAILED", "unknown handle", "seal").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), &domain.AuditEntry{
		ID: "e-1", Timestamp: at, Origin: "10.0.0.9",
		Action: domain.AuditLoginFailed, Detail: "unknown handle", Seal: "seal",
	})
	require.NoError(t, err)
}
