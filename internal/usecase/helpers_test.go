package usecase

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
	"github.com/FilipeAphrody/sentinel-accounts/internal/repository/memory"
	"github.com/FilipeAphrody/sentinel-accounts/pkg/security"
)

func TestMain(m *testing.M) {
	// Cheap hashing keeps the suite fast; the format is unchanged.
	security.DefaultParams.Memory = 1024
	security.DefaultParams.Iterations = 1
	os.Exit(m.Run())
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	accounts   *memory.AccountRepo
	audits     *memory.AuditRepo
	handshakes *memory.HandshakeRepo
	sessions   *memory.SessionRepo

	audit *AuditLog
	vault *SecretVault
	store *AccountStore
	login *LoginHandshake
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		accounts:   memory.NewAccountRepo(),
		audits:     memory.NewAuditRepo(),
		handshakes: memory.NewHandshakeRepo(),
		sessions:   memory.NewSessionRepo(),
		clock:      &fakeClock{t: time.Now()},
	}

	f.audit = NewAuditLog(f.audits, "test-seal-key", logger)
	f.vault = NewSecretVault(f.accounts, "Sentinel")
	f.store = NewAccountStore(f.accounts, f.vault, f.audit, AccountStoreConfig{
		Lockout:        DefaultLockoutPolicy(),
		MaxPasswordAge: DefaultMaxPasswordAge,
	}, logger)
	f.login = NewLoginHandshake(f.store, f.vault, f.handshakes, f.sessions, f.audit, HandshakeConfig{
		JWTSecret: "test-jwt-secret",
	}, logger)

	f.audit.now = f.clock.Now
	f.vault.now = f.clock.Now
	f.store.now = f.clock.Now
	f.login.now = f.clock.Now
	return f
}

const testPassword = "Valid123!"

func (f *fixture) provision(t *testing.T, handle string) *domain.Account {
	t.Helper()
	a, err := f.store.Provision(context.Background(), NewAccount{
		Handle:      handle,
		Password:    testPassword,
		DisplayName: handle,
		Contact:     handle + "@example.com",
		Role:        "medico",
	}, "", "127.0.0.1")
	require.NoError(t, err)
	return a
}

// enableMFA runs the configure + confirm flow and returns the secret and
// backup codes.
func (f *fixture) enableMFA(t *testing.T, accountID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enrollment, err := f.store.ConfigureTwoFactor(ctx, accountID, "127.0.0.1")
	require.NoError(t, err)

	code, err := security.TOTPCode(enrollment.Secret, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.store.EnableTwoFactor(ctx, accountID, code, "127.0.0.1"))

	return enrollment.Secret, enrollment.BackupCodes
}

func (f *fixture) actions(t *testing.T, accountID string) []domain.AuditAction {
	t.Helper()
	entries, err := f.audits.List(context.Background(), domain.AuditFilter{AccountID: accountID})
	require.NoError(t, err)
	out := make([]domain.AuditAction, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

// wrongCode returns a six digit code guaranteed not to match the current step.
func wrongCode(t *testing.T, secret string, now time.Time) string {
	t.Helper()
	code, err := security.TOTPCode(secret, now)
	require.NoError(t, err)
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
