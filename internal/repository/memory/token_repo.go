package memory

import (
	"context"
	"sync"
	"time"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

type handshakeEntry struct {
	token     domain.HandshakeToken
	expiresAt time.Time
}

// HandshakeRepo keeps pending handshakes in process memory.
type HandshakeRepo struct {
	mu      sync.Mutex
	entries map[string]handshakeEntry
	now     func() time.Time
}

func NewHandshakeRepo() *HandshakeRepo {
	return &HandshakeRepo{entries: make(map[string]handshakeEntry), now: time.Now}
}

func (r *HandshakeRepo) Save(_ context.Context, sessionID string, token domain.HandshakeToken, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[sessionID] = handshakeEntry{token: token, expiresAt: r.now().Add(ttl)}
	return nil
}

func (r *HandshakeRepo) Get(_ context.Context, sessionID string) (*domain.HandshakeToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live(sessionID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	t := e.token
	return &t, nil
}

func (r *HandshakeRepo) Consume(_ context.Context, sessionID, tokenValue string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live(sessionID)
	if !ok || e.token.Value != tokenValue {
		return false, nil
	}
	delete(r.entries, sessionID)
	return true, nil
}

func (r *HandshakeRepo) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
	return nil
}

// live must be called with mu held. Expired entries are evicted lazily.
func (r *HandshakeRepo) live(sessionID string) (handshakeEntry, bool) {
	e, ok := r.entries[sessionID]
	if !ok {
		return e, false
	}
	if !r.now().Before(e.expiresAt) {
		delete(r.entries, sessionID)
		return e, false
	}
	return e, true
}

// SessionRepo keeps established sessions in process memory.
type SessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	now      func() time.Time
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{sessions: make(map[string]domain.Session), now: time.Now}
}

func (r *SessionRepo) Save(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

func (r *SessionRepo) Get(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !r.now().Before(s.ExpiresAt) {
		delete(r.sessions, id)
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *SessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}
