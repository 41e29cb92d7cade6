package usecase

import (
	"time"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

const (
	DefaultLockoutThreshold = 3
	DefaultLockoutDuration  = 15 * time.Minute
)

// LockoutPolicy holds the pure state transitions on an account's
// failed-attempt counter and lock window. Callers are responsible for
// applying them inside AccountRepository.Update so the read-modify-write is
// atomic per account.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: DefaultLockoutThreshold, Duration: DefaultLockoutDuration}
}

// IsLocked is true iff a lock expiry is set and still in the future.
func (p LockoutPolicy) IsLocked(a *domain.Account, now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// Remaining is the time left on an active lock, zero otherwise.
func (p LockoutPolicy) Remaining(a *domain.Account, now time.Time) time.Duration {
	if !p.IsLocked(a, now) {
		return 0
	}
	return a.LockedUntil.Sub(now)
}

// RecordFailure counts one failed attempt and reports whether this failure
// applied a new lock. An elapsed lock is cleared first so the account starts
// counting from zero again.
func (p LockoutPolicy) RecordFailure(a *domain.Account, now time.Time) bool {
	if a.LockedUntil != nil && !a.LockedUntil.After(now) {
		p.Reset(a)
	}

	a.FailedAttempts++
	if a.FailedAttempts >= p.Threshold && a.LockedUntil == nil {
		until := now.Add(p.Duration)
		a.LockedUntil = &until
		return true
	}
	return false
}

// Reset zeroes the counter and clears the lock.
func (p LockoutPolicy) Reset(a *domain.Account) {
	a.FailedAttempts = 0
	a.LockedUntil = nil
}

// AttemptsLeft is how many more failures the account can take before locking.
func (p LockoutPolicy) AttemptsLeft(a *domain.Account) int {
	if left := p.Threshold - a.FailedAttempts; left > 0 {
		return left
	}
	return 0
}
