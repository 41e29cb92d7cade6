package domain

import (
	"context"
	"time"
)

// AuditAction tags a security-relevant event.
type AuditAction string

const (
	AuditLoginSuccess     AuditAction = "LOGIN_SUCCESS"
	AuditLoginFailed      AuditAction = "LOGIN_FAILED"
	AuditLockoutApplied   AuditAction = "LOCKOUT_APPLIED"
	AuditMFASetup         AuditAction = "MFA_SETUP"
	AuditMFAEnabled       AuditAction = "MFA_ENABLED"
	AuditMFASuccess       AuditAction = "MFA_SUCCESS"
	AuditMFAFailed        AuditAction = "MFA_FAILED"
	AuditBackupCodesReset AuditAction = "MFA_BACKUP_CODES_RESET"
	AuditPasswordChanged  AuditAction = "PASSWORD_CHANGED"
	AuditPasswordRejected AuditAction = "PASSWORD_CHANGE_FAILED"
	AuditHandshakeStarted AuditAction = "HANDSHAKE_STARTED"
	AuditLogout           AuditAction = "LOGOUT"
	AuditAccountCreated   AuditAction = "ACCOUNT_CREATED"
	AuditAccountDisabled  AuditAction = "ACCOUNT_DISABLED"
	AuditAccountEnabled   AuditAction = "ACCOUNT_ENABLED"
)

// AuditEntry is an immutable fact in the audit log.
type AuditEntry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	AccountID string      `json:"account_id,omitempty"` // empty for anonymous events
	Origin    string      `json:"origin"`
	Action    AuditAction `json:"action"`
	Detail    string      `json:"detail"`
	Seal      string      `json:"seal"`
}

// AuditFilter narrows an audit log read. Zero values mean "no constraint".
type AuditFilter struct {
	AccountID string
	Action    AuditAction
	From      time.Time
	To        time.Time
	Limit     int
}

// Matches reports whether e satisfies the filter. From is inclusive, To is
// exclusive.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.AccountID != "" && e.AccountID != f.AccountID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	return true
}

// AuditRepository is append-only: there is deliberately no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}
