package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

func TestAuthenticatePassword_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.provision(t, "alice")

	_, err := f.store.AuthenticatePassword(ctx, "alice", "wrong", "10.0.0.1")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	got, err := f.store.AuthenticatePassword(ctx, "alice", testPassword, "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Zero(t, got.FailedAttempts)
	assert.Nil(t, got.LockedUntil)
	require.NotNil(t, got.LastLoginAt)
	assert.Equal(t, "10.0.0.2", got.LastOrigin)
}

func TestAuthenticatePassword_LockoutAndRecovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.provision(t, "bob")

	for i := 0; i < 3; i++ {
		_, err := f.store.AuthenticatePassword(ctx, "bob", "nope", "10.0.0.1")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials, "attempt %d", i+1)
	}

	// Correct password is refused for the whole window.
	_, err := f.store.AuthenticatePassword(ctx, "bob", testPassword, "10.0.0.1")
	var locked *domain.LockedError
	require.True(t, errors.As(err, &locked), "want LockedError, got %v", err)
	assert.Equal(t, 15*time.Minute, locked.Remaining)
	assert.Equal(t, 15, locked.RemainingMinutes())

	f.clock.Advance(15*time.Minute - time.Second)
	_, err = f.store.AuthenticatePassword(ctx, "bob", testPassword, "10.0.0.1")
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, 0, locked.RemainingMinutes())

	f.clock.Advance(time.Second)
	got, err := f.store.AuthenticatePassword(ctx, "bob", testPassword, "10.0.0.1")
	require.NoError(t, err)
	assert.Zero(t, got.FailedAttempts)
	assert.Nil(t, got.LockedUntil)

	assert.Contains(t, f.actions(t, a.ID), domain.AuditLockoutApplied)
}

func TestAuthenticatePassword_FailureAfterExpiryStartsOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provision(t, "carol")

	for i := 0; i < 3; i++ {
		_, _ = f.store.AuthenticatePassword(ctx, "carol", "nope", "")
	}
	f.clock.Advance(16 * time.Minute)

	_, err := f.store.AuthenticatePassword(ctx, "carol", "nope", "")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	a, err := f.accounts.GetByHandle(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 1, a.FailedAttempts)
	assert.Nil(t, a.LockedUntil)
}

func TestAuthenticatePassword_WarnsBeforeLastAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provision(t, "dave")

	_, err := f.store.AuthenticatePassword(ctx, "dave", "nope", "")
	var warn *domain.AttemptsWarningError
	assert.False(t, errors.As(err, &warn), "no warning on the first failure")

	_, err = f.store.AuthenticatePassword(ctx, "dave", "nope", "")
	require.True(t, errors.As(err, &warn), "want warning, got %v", err)
	assert.Equal(t, 1, warn.Remaining)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "1 attempt(s) left")
}

func TestAuthenticatePassword_EnumerationResistance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provision(t, "erin")

	_, errUnknown := f.store.AuthenticatePassword(ctx, "nobody", "Whatever1!", "10.0.0.9")
	_, errWrong := f.store.AuthenticatePassword(ctx, "erin", "Whatever1!", "10.0.0.9")

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, errUnknown, errWrong)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())

	// The unknown handle is still audited, without an account.
	entries, err := f.audits.List(ctx, domain.AuditFilter{Action: domain.AuditLoginFailed})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].AccountID)
	assert.Equal(t, "10.0.0.9", entries[0].Origin)
}

func TestAuthenticatePassword_Disabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.provision(t, "frank")

	_, err := f.store.SetEnabled(ctx, a.ID, false, "admin-id", "")
	require.NoError(t, err)

	_, err = f.store.AuthenticatePassword(ctx, "frank", testPassword, "")
	require.ErrorIs(t, err, domain.ErrAccountDisabled)

	got, err := f.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedAttempts, "disabled accounts do not count failures")
}

func TestAuthenticatePassword_ConcurrentFailuresNeverUndercount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.provision(t, "grace")

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.store.AuthenticatePassword(ctx, "grace", "nope", "")
		}()
	}
	wg.Wait()

	got, err := f.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.FailedAttempts)
	require.NotNil(t, got.LockedUntil)

	lockouts := 0
	for _, action := range f.actions(t, a.ID) {
		if action == domain.AuditLockoutApplied {
			lockouts++
		}
	}
	assert.Equal(t, 1, lockouts)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.provision(t, "heidi")

	err := f.store.ChangePassword(ctx, a.ID, "wrong", "NewPass123!", "")
	require.ErrorIs(t, err, domain.ErrWrongCurrentPassword)

	err = f.store.ChangePassword(ctx, a.ID, testPassword, "weak", "")
	var pe *domain.PolicyError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Reason, "at least 8 characters")

	f.clock.Advance(100 * 24 * time.Hour)
	stale, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, f.store.PasswordExpired(stale))

	require.NoError(t, f.store.ChangePassword(ctx, a.ID, testPassword, "NewPass123!", ""))

	fresh, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, f.store.IsPasswordExpired(fresh, f.clock.Now()))

	_, err = f.store.AuthenticatePassword(ctx, "heidi", testPassword, "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.store.AuthenticatePassword(ctx, "heidi", "NewPass123!", "")
	assert.NoError(t, err)

	assert.Equal(t, []domain.AuditAction{
		domain.AuditPasswordRejected,
		domain.AuditPasswordRejected,
		domain.AuditPasswordChanged,
		domain.AuditLoginFailed,
	}, f.actions(t, a.ID))
}

func TestIsPasswordExpired(t *testing.T) {
	f := newFixture(t)
	changed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &domain.Account{PasswordChangedAt: changed}

	assert.False(t, f.store.IsPasswordExpired(a, changed.Add(89*24*time.Hour)))
	assert.False(t, f.store.IsPasswordExpired(a, changed.Add(90*24*time.Hour)))
	assert.True(t, f.store.IsPasswordExpired(a, changed.Add(90*24*time.Hour+time.Second)))
}

func TestProvision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Provision(ctx, NewAccount{Handle: "x", Password: "short", Contact: "x@x", Role: "medico"}, "", "")
	var pe *domain.PolicyError
	require.True(t, errors.As(err, &pe))

	_, err = f.store.Provision(ctx, NewAccount{Handle: "", Password: testPassword, Contact: "x@x", Role: "medico"}, "", "")
	require.True(t, errors.As(err, &pe))

	f.provision(t, "ivan")
	_, err = f.store.Provision(ctx, NewAccount{Handle: "ivan", Password: testPassword, Contact: "other@x", Role: "medico"}, "", "")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSeedDefaultAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := NewAccount{Handle: "admin", Password: "admin123", DisplayName: "Administrator", Contact: "admin@sistema.com", Role: "admin"}

	created, err := f.store.SeedDefaultAdmin(ctx, admin)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.store.SeedDefaultAdmin(ctx, admin)
	require.NoError(t, err)
	assert.False(t, created)

	a, err := f.store.AuthenticatePassword(ctx, "admin", "admin123", "")
	require.NoError(t, err)
	assert.Equal(t, "admin", a.Role)
	assert.True(t, f.store.PasswordExpired(a), "seeded password must be changed")
}

func TestTwoFactorConfiguration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.provision(t, "judy")

	_, err := f.store.RegenerateBackupCodes(ctx, a.ID, "000000", "")
	require.ErrorIs(t, err, domain.ErrTwoFactorNotConfigured)

	err = f.store.EnableTwoFactor(ctx, a.ID, "000000", "")
	require.ErrorIs(t, err, domain.ErrTwoFactorNotConfigured)

	secret, codes := f.enableMFA(t, a.ID)
	assert.NotEmpty(t, secret)
	assert.Len(t, codes, 8)

	_, err = f.store.ConfigureTwoFactor(ctx, a.ID, "")
	require.ErrorIs(t, err, domain.ErrTwoFactorAlreadyConfigured)

	// Account creation is recorded against the provisioning actor.
	assert.Equal(t, []domain.AuditAction{
		domain.AuditMFASetup,
		domain.AuditMFAEnabled,
	}, f.actions(t, a.ID))
}
