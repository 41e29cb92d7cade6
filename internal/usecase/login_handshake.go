package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
	"github.com/FilipeAphrody/sentinel-accounts/pkg/security"
)

const (
	DefaultSessionTTL   = 30 * time.Minute
	DefaultHandshakeTTL = 5 * time.Minute

	handshakeTokenBytes = 32
)

type LoginStatus string

const (
	LoginSuccess LoginStatus = "success"
	LoginPending LoginStatus = "pending_2fa"
)

// LoginResult is the outcome of either login phase. When Status is
// LoginPending only the Handshake fields are set.
type LoginResult struct {
	Status         LoginStatus
	Account        *domain.Account
	Session        *domain.Session
	Auth           *domain.AuthResponse
	HandshakeID    string
	HandshakeToken string
}

type HandshakeConfig struct {
	JWTSecret    string
	SessionTTL   time.Duration
	HandshakeTTL time.Duration
}

// LoginHandshake runs the two-phase login: password first, then an
// optional second factor bound to a server-side handshake token.
//
// Phase-2 attempts are not counted against the lockout policy; the
// upstream request-rate gate is what bounds guessing there.
type LoginHandshake struct {
	store      *AccountStore
	vault      *SecretVault
	handshakes domain.HandshakeRepository
	sessions   domain.SessionRepository
	audit      *AuditLog
	cfg        HandshakeConfig
	logger     *slog.Logger
	now        func() time.Time
}

func NewLoginHandshake(
	store *AccountStore,
	vault *SecretVault,
	handshakes domain.HandshakeRepository,
	sessions domain.SessionRepository,
	audit *AuditLog,
	cfg HandshakeConfig,
	logger *slog.Logger,
) *LoginHandshake {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.HandshakeTTL <= 0 {
		cfg.HandshakeTTL = DefaultHandshakeTTL
	}
	return &LoginHandshake{
		store:      store,
		vault:      vault,
		handshakes: handshakes,
		sessions:   sessions,
		audit:      audit,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Begin is phase 1. Accounts without 2FA get a session straight away;
// the others get a pending handshake.
func (h *LoginHandshake) Begin(ctx context.Context, handle, password, origin string) (*LoginResult, error) {
	account, err := h.store.AuthenticatePassword(ctx, handle, password, origin)
	if err != nil {
		return nil, err
	}

	if !account.MFAEnabled {
		result, err := h.establish(ctx, account, origin)
		if err != nil {
			return nil, err
		}
		h.audit.Record(ctx, account.ID, origin, domain.AuditLoginSuccess, "login succeeded")
		return result, nil
	}

	value, err := security.RandomToken(handshakeTokenBytes)
	if err != nil {
		return nil, err
	}
	handshakeID := uuid.NewString()
	token := domain.HandshakeToken{AccountID: account.ID, Value: value, CreatedAt: h.now()}
	if err := h.handshakes.Save(ctx, handshakeID, token, h.cfg.HandshakeTTL); err != nil {
		return nil, fmt.Errorf("store handshake: %w", err)
	}

	h.audit.Record(ctx, account.ID, origin, domain.AuditHandshakeStarted, "password verified, awaiting second factor")

	return &LoginResult{
		Status:         LoginPending,
		Account:        account,
		HandshakeID:    handshakeID,
		HandshakeToken: value,
	}, nil
}

// Complete is phase 2. The account comes from the server-side handshake,
// never from the caller. A wrong token or code leaves the handshake alive;
// success consumes it exactly once, and only then is a backup code spent.
func (h *LoginHandshake) Complete(ctx context.Context, handshakeID, tokenValue, code, origin string) (*LoginResult, error) {
	if handshakeID == "" || tokenValue == "" {
		return nil, domain.ErrInvalidOrExpiredHandshake
	}

	pending, err := h.handshakes.Get(ctx, handshakeID)
	if errors.Is(err, domain.ErrNotFound) {
		h.audit.Record(ctx, "", origin, domain.AuditMFAFailed, "unknown or expired handshake")
		return nil, domain.ErrInvalidOrExpiredHandshake
	}
	if err != nil {
		return nil, err
	}

	if h.now().Sub(pending.CreatedAt) > h.cfg.HandshakeTTL {
		if err := h.handshakes.Delete(ctx, handshakeID); err != nil {
			h.logger.WarnContext(ctx, "failed to drop expired handshake", "err", err)
		}
		h.audit.Record(ctx, pending.AccountID, origin, domain.AuditMFAFailed, "handshake expired")
		return nil, domain.ErrInvalidOrExpiredHandshake
	}

	if !security.ConstantTimeEqual(tokenValue, pending.Value) {
		h.audit.Record(ctx, pending.AccountID, origin, domain.AuditMFAFailed, "handshake token mismatch")
		return nil, domain.ErrInvalidOrExpiredHandshake
	}

	account, err := h.store.Get(ctx, pending.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.Enabled {
		_ = h.handshakes.Delete(ctx, handshakeID)
		h.audit.Record(ctx, account.ID, origin, domain.AuditMFAFailed, "account disabled during handshake")
		return nil, domain.ErrAccountDisabled
	}

	kind, err := h.vault.CheckCode(ctx, account.ID, code)
	if err != nil {
		return nil, err
	}
	if kind == CodeNone {
		h.audit.Record(ctx, account.ID, origin, domain.AuditMFAFailed, "invalid two-factor code")
		return nil, domain.ErrInvalidTwoFactorCode
	}

	// A backup code is spent only after the handshake is claimed and the
	// session exists.
	consumed, err := h.handshakes.Consume(ctx, handshakeID, pending.Value)
	if err != nil {
		return nil, err
	}
	if !consumed {
		h.audit.Record(ctx, account.ID, origin, domain.AuditMFAFailed, "handshake already consumed")
		return nil, domain.ErrInvalidOrExpiredHandshake
	}

	result, err := h.establish(ctx, account, origin)
	if err != nil {
		return nil, err
	}

	if kind == CodeBackup {
		if err := h.vault.RedeemBackupCode(ctx, account.ID, code); err != nil {
			if dropErr := h.sessions.Delete(ctx, result.Session.ID); dropErr != nil {
				h.logger.WarnContext(ctx, "failed to drop session after backup code redemption failed", "err", dropErr)
			}
			if errors.Is(err, domain.ErrInvalidTwoFactorCode) {
				h.audit.Record(ctx, account.ID, origin, domain.AuditMFAFailed, "backup code already used")
			}
			return nil, err
		}
	}

	h.audit.Record(ctx, account.ID, origin, domain.AuditMFASuccess, "login completed with second factor")
	return result, nil
}

// Abandon drops a pending handshake.
func (h *LoginHandshake) Abandon(ctx context.Context, handshakeID string) error {
	if handshakeID == "" {
		return nil
	}
	return h.handshakes.Delete(ctx, handshakeID)
}

// ResolveSession maps an access token's session id back to a live session
// and its account.
func (h *LoginHandshake) ResolveSession(ctx context.Context, sessionID, accountID string) (*domain.Session, *domain.Account, error) {
	session, err := h.sessions.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, nil, err
	}
	if session.AccountID != accountID || !h.now().Before(session.ExpiresAt) {
		return nil, nil, domain.ErrUnauthenticated
	}

	account, err := h.store.Get(ctx, session.AccountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, nil, err
	}
	if !account.Enabled {
		_ = h.sessions.Delete(ctx, sessionID)
		return nil, nil, domain.ErrAccountDisabled
	}
	return session, account, nil
}

// Logout ends a session.
func (h *LoginHandshake) Logout(ctx context.Context, session *domain.Session, origin string) error {
	if err := h.sessions.Delete(ctx, session.ID); err != nil {
		return err
	}
	h.audit.Record(ctx, session.AccountID, origin, domain.AuditLogout, "logged out")
	return nil
}

func (h *LoginHandshake) establish(ctx context.Context, account *domain.Account, origin string) (*LoginResult, error) {
	now := h.now()
	session := &domain.Session{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Origin:    origin,
		CreatedAt: now,
		ExpiresAt: now.Add(h.cfg.SessionTTL),
	}
	if err := h.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	accessToken, err := security.GenerateAccessToken(account.ID, account.Role, session.ID, h.cfg.JWTSecret, h.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Status:  LoginSuccess,
		Account: account,
		Session: session,
		Auth: &domain.AuthResponse{
			AccessToken:     accessToken,
			ExpiresIn:       int64(h.cfg.SessionTTL.Seconds()),
			Role:            account.Role,
			PasswordExpired: h.store.IsPasswordExpired(account, now),
		},
	}, nil
}
