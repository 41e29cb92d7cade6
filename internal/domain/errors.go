package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials         = errors.New("invalid handle or password")
	ErrAccountDisabled            = errors.New("this account is disabled, contact an administrator")
	ErrWrongCurrentPassword       = errors.New("current password is incorrect")
	ErrInvalidTwoFactorCode       = errors.New("invalid two-factor code")
	ErrInvalidOrExpiredHandshake  = errors.New("invalid or expired two-factor session")
	ErrTwoFactorAlreadyConfigured = errors.New("two-factor authentication is already configured")
	ErrTwoFactorNotConfigured     = errors.New("two-factor authentication is not configured")
	ErrPasswordExpired            = errors.New("password expired, change it to continue")
	ErrUnauthenticated            = errors.New("authentication required")
	ErrForbidden                  = errors.New("access denied: insufficient permissions")

	// Storage-level outcomes.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// LockedError reports a temporarily locked account.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account temporarily locked, try again in %d minutes", e.RemainingMinutes())
}

// RemainingMinutes rounds down, matching what the user is told.
func (e *LockedError) RemainingMinutes() int {
	return int(e.Remaining / time.Minute)
}

// PolicyError reports the first password rule a candidate failed.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return e.Reason
}

// AttemptsWarningError is an invalid-credentials outcome that also tells the
// caller how many attempts remain before a lockout.
type AttemptsWarningError struct {
	Remaining int
}

func (e *AttemptsWarningError) Error() string {
	return fmt.Sprintf("%s. %d attempt(s) left before temporary lockout", ErrInvalidCredentials.Error(), e.Remaining)
}

func (e *AttemptsWarningError) Unwrap() error {
	return ErrInvalidCredentials
}
