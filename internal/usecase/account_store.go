package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
	"github.com/FilipeAphrody/sentinel-accounts/pkg/security"
)

const DefaultMaxPasswordAge = 90 * 24 * time.Hour

// NewAccount carries what is needed to provision an account.
type NewAccount struct {
	Handle      string
	Password    string
	DisplayName string
	Contact     string
	Role        string
}

type AccountStoreConfig struct {
	Lockout        LockoutPolicy
	MaxPasswordAge time.Duration
}

// AccountStore owns account records and orchestrates credential checks,
// lockout bookkeeping and password expiry.
type AccountStore struct {
	accounts domain.AccountRepository
	vault    *SecretVault
	audit    *AuditLog
	policy   PasswordPolicy
	lockout  LockoutPolicy
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewAccountStore(accounts domain.AccountRepository, vault *SecretVault, audit *AuditLog, cfg AccountStoreConfig, logger *slog.Logger) *AccountStore {
	if cfg.Lockout.Threshold <= 0 {
		cfg.Lockout = DefaultLockoutPolicy()
	}
	if cfg.MaxPasswordAge <= 0 {
		cfg.MaxPasswordAge = DefaultMaxPasswordAge
	}
	return &AccountStore{
		accounts: accounts,
		vault:    vault,
		audit:    audit,
		lockout:  cfg.Lockout,
		maxAge:   cfg.MaxPasswordAge,
		logger:   logger,
		now:      time.Now,
	}
}

// AuthenticatePassword verifies a handle/password pair. Unknown handles and
// wrong passwords both yield domain.ErrInvalidCredentials. Failures are
// audit-logged here; the caller records the success once it knows whether
// the login completes or waits for a second factor.
func (s *AccountStore) AuthenticatePassword(ctx context.Context, handle, candidate, origin string) (*domain.Account, error) {
	account, err := s.accounts.GetByHandle(ctx, handle)
	if errors.Is(err, domain.ErrNotFound) {
		security.BurnPasswordCheck(candidate)
		s.logger.WarnContext(ctx, "login attempt for unknown handle", "handle", handle, "origin", origin)
		s.audit.Record(ctx, "", origin, domain.AuditLoginFailed, fmt.Sprintf("unknown handle %q", handle))
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !account.Enabled {
		s.audit.Record(ctx, account.ID, origin, domain.AuditLoginFailed, "account disabled")
		return nil, domain.ErrAccountDisabled
	}

	if now := s.now(); s.lockout.IsLocked(account, now) {
		s.audit.Record(ctx, account.ID, origin, domain.AuditLoginFailed, "attempt while locked")
		return nil, &domain.LockedError{Remaining: s.lockout.Remaining(account, now)}
	}

	match, err := security.ComparePassword(candidate, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password for %s: %w", account.ID, err)
	}

	var lockedNow bool
	updated, err := s.accounts.Update(ctx, account.ID, func(a *domain.Account) error {
		now := s.now()
		// A concurrent failure may have locked the account since the read above.
		if s.lockout.IsLocked(a, now) {
			return &domain.LockedError{Remaining: s.lockout.Remaining(a, now)}
		}
		if !match {
			lockedNow = s.lockout.RecordFailure(a, now)
			return nil
		}
		s.lockout.Reset(a)
		a.LastLoginAt = &now
		a.LastOrigin = origin
		return nil
	})

	var locked *domain.LockedError
	if errors.As(err, &locked) {
		s.audit.Record(ctx, account.ID, origin, domain.AuditLoginFailed, "attempt while locked")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if match {
		return updated, nil
	}

	s.audit.Record(ctx, updated.ID, origin, domain.AuditLoginFailed,
		fmt.Sprintf("wrong password, attempt %d of %d", updated.FailedAttempts, s.lockout.Threshold))
	if lockedNow {
		s.logger.WarnContext(ctx, "account locked", "account_id", updated.ID, "until", updated.LockedUntil)
		s.audit.Record(ctx, updated.ID, origin, domain.AuditLockoutApplied,
			fmt.Sprintf("locked for %s after %d failed attempts", s.lockout.Duration, updated.FailedAttempts))
	}

	if left := s.lockout.AttemptsLeft(updated); left == 1 && s.lockout.Threshold > 1 {
		return nil, &domain.AttemptsWarningError{Remaining: left}
	}
	return nil, domain.ErrInvalidCredentials
}

// ChangePassword re-verifies the current password, applies the policy and
// restarts the password-age clock.
func (s *AccountStore) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword, origin string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	match, err := security.ComparePassword(currentPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password for %s: %w", account.ID, err)
	}
	if !match {
		s.audit.Record(ctx, accountID, origin, domain.AuditPasswordRejected, "current password incorrect")
		return domain.ErrWrongCurrentPassword
	}

	if err := s.policy.Validate(newPassword); err != nil {
		s.audit.Record(ctx, accountID, origin, domain.AuditPasswordRejected, err.Error())
		return err
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if _, err := s.accounts.Update(ctx, accountID, func(a *domain.Account) error {
		a.PasswordHash = hash
		a.PasswordChangedAt = s.now()
		return nil
	}); err != nil {
		return err
	}

	s.audit.Record(ctx, accountID, origin, domain.AuditPasswordChanged, "password changed")
	return nil
}

// IsPasswordExpired is true once the password is older than the maximum age.
func (s *AccountStore) IsPasswordExpired(a *domain.Account, now time.Time) bool {
	return now.Sub(a.PasswordChangedAt) > s.maxAge
}

// PasswordExpired evaluates IsPasswordExpired at the current instant.
func (s *AccountStore) PasswordExpired(a *domain.Account) bool {
	return s.IsPasswordExpired(a, s.now())
}

func (s *AccountStore) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.accounts.GetByID(ctx, accountID)
}

// Provision creates an enabled account after applying the password policy.
func (s *AccountStore) Provision(ctx context.Context, in NewAccount, actorID, origin string) (*domain.Account, error) {
	in.Handle = strings.TrimSpace(in.Handle)
	in.Contact = strings.TrimSpace(in.Contact)
	if in.Handle == "" || in.Contact == "" || in.Role == "" {
		return nil, &domain.PolicyError{Reason: "handle, contact and role are required"}
	}
	if err := s.policy.Validate(in.Password); err != nil {
		return nil, err
	}

	account, err := s.create(ctx, in, s.now())
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actorID, origin, domain.AuditAccountCreated,
		fmt.Sprintf("account %s (%s) created with role %s", account.ID, account.Handle, account.Role))
	return account, nil
}

// SeedDefaultAdmin creates the administrative account when the store is
// empty. The seeded password is marked as never changed, so the first
// authenticated request demands a new one.
func (s *AccountStore) SeedDefaultAdmin(ctx context.Context, in NewAccount) (bool, error) {
	n, err := s.accounts.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	account, err := s.create(ctx, in, time.Time{})
	if errors.Is(err, domain.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.logger.InfoContext(ctx, "default administrator seeded", "handle", account.Handle)
	s.audit.Record(ctx, account.ID, "", domain.AuditAccountCreated, "default administrator seeded")
	return true, nil
}

func (s *AccountStore) create(ctx context.Context, in NewAccount, passwordChangedAt time.Time) (*domain.Account, error) {
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	account := &domain.Account{
		Handle:            in.Handle,
		PasswordHash:      hash,
		DisplayName:       in.DisplayName,
		Contact:           in.Contact,
		Role:              in.Role,
		Enabled:           true,
		PasswordChangedAt: passwordChangedAt,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// SetEnabled toggles the enabled flag. Accounts are never deleted.
func (s *AccountStore) SetEnabled(ctx context.Context, accountID string, enabled bool, actorID, origin string) (*domain.Account, error) {
	account, err := s.accounts.Update(ctx, accountID, func(a *domain.Account) error {
		a.Enabled = enabled
		return nil
	})
	if err != nil {
		return nil, err
	}

	action, verb := domain.AuditAccountDisabled, "disabled"
	if enabled {
		action, verb = domain.AuditAccountEnabled, "enabled"
	}
	s.audit.Record(ctx, actorID, origin, action, fmt.Sprintf("account %s %s", accountID, verb))
	return account, nil
}

// ConfigureTwoFactor issues a fresh secret and backup codes. It fails once
// 2FA has been enabled.
func (s *AccountStore) ConfigureTwoFactor(ctx context.Context, accountID, origin string) (*Enrollment, error) {
	enrollment, err := s.vault.Enroll(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, accountID, origin, domain.AuditMFASetup, "two-factor setup started")
	return enrollment, nil
}

// EnableTwoFactor confirms a pending enrollment with a current code.
func (s *AccountStore) EnableTwoFactor(ctx context.Context, accountID, code, origin string) error {
	if err := s.vault.ConfirmEnrollment(ctx, accountID, code); err != nil {
		if errors.Is(err, domain.ErrInvalidTwoFactorCode) {
			s.audit.Record(ctx, accountID, origin, domain.AuditMFAFailed, "enrollment confirmation code rejected")
		}
		return err
	}
	s.audit.Record(ctx, accountID, origin, domain.AuditMFAEnabled, "two-factor authentication enabled")
	return nil
}

// RegenerateBackupCodes replaces the unused backup codes.
func (s *AccountStore) RegenerateBackupCodes(ctx context.Context, accountID, code, origin string) ([]string, error) {
	codes, err := s.vault.RegenerateBackupCodes(ctx, accountID, code)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTwoFactorCode) {
			s.audit.Record(ctx, accountID, origin, domain.AuditMFAFailed, "backup code regeneration code rejected")
		}
		return nil, err
	}
	s.audit.Record(ctx, accountID, origin, domain.AuditBackupCodesReset, "backup codes regenerated")
	return codes, nil
}
