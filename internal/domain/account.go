package domain

import (
	"context"
	"slices"
	"time"
)

// Account represents the central identity entity of the system.
type Account struct {
	ID                string     `json:"id"`
	Handle            string     `json:"handle"`
	PasswordHash      string     `json:"-"` // Never expose the password hash in JSON
	DisplayName       string     `json:"display_name"`
	Contact           string     `json:"contact"`
	Role              string     `json:"role"`
	Enabled           bool       `json:"enabled"`
	FailedAttempts    int        `json:"failed_attempts"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	PasswordChangedAt time.Time  `json:"password_changed_at"`
	MFASecret         string     `json:"-"` // TOTP secret key, empty when never configured
	MFAEnabled        bool       `json:"mfa_enabled"`
	BackupCodes       []string   `json:"-"` // Unused backup codes, in issue order
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
	LastOrigin        string     `json:"last_origin,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate it without aliasing
// the slices and pointers of the original.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.BackupCodes = slices.Clone(a.BackupCodes)
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		c.LockedUntil = &t
	}
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

// Session is an established, fully authenticated login.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandshakeToken binds a password-verified login attempt to its pending
// second factor. It only ever lives in the ephemeral token store.
type HandshakeToken struct {
	AccountID string
	Value     string
	CreatedAt time.Time
}

// AuthResponse defines the payload returned after a successful login.
type AuthResponse struct {
	AccessToken     string `json:"access_token"`
	ExpiresIn       int64  `json:"expires_in"`
	Role            string `json:"role"`
	PasswordExpired bool   `json:"password_expired"`
}

// AccountRepository defines the contract for account persistence.
type AccountRepository interface {
	GetByHandle(ctx context.Context, handle string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	Count(ctx context.Context) (int, error)

	// Update runs fn against the freshest copy of the account while holding
	// a per-account lock and persists whatever fn leaves behind. If fn
	// returns an error nothing is written and the error is returned as is.
	Update(ctx context.Context, id string, fn func(*Account) error) (*Account, error)
}

// HandshakeRepository stores pending second-factor handshakes keyed by an
// opaque handshake session id.
type HandshakeRepository interface {
	Save(ctx context.Context, sessionID string, token HandshakeToken, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*HandshakeToken, error)

	// Consume deletes the handshake only if it still carries tokenValue.
	// Exactly one of any number of concurrent callers observes true.
	Consume(ctx context.Context, sessionID, tokenValue string) (bool, error)
	Delete(ctx context.Context, sessionID string) error
}

// SessionRepository handles established sessions (usually in Redis).
type SessionRepository interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}
