package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

// AccountRepo is an in-memory domain.AccountRepository.
// It is intended for use in tests and dev environments.
type AccountRepo struct {
	mu        sync.Mutex
	byID      map[string]*domain.Account
	byHandle  map[string]string
	byContact map[string]string
}

func NewAccountRepo() *AccountRepo {
	return &AccountRepo{
		byID:      make(map[string]*domain.Account),
		byHandle:  make(map[string]string),
		byContact: make(map[string]string),
	}
}

func (r *AccountRepo) GetByHandle(_ context.Context, handle string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byHandle[handle]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *AccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *AccountRepo) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byHandle[account.Handle]; taken {
		return domain.ErrConflict
	}
	if _, taken := r.byContact[account.Contact]; taken {
		return domain.ErrConflict
	}

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	r.byID[account.ID] = account.Clone()
	r.byHandle[account.Handle] = account.ID
	r.byContact[account.Contact] = account.ID
	return nil
}

func (r *AccountRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID), nil
}

// Update serialises all writers behind one mutex, which is stricter than
// the per-account lock the contract asks for.
func (r *AccountRepo) Update(_ context.Context, id string, fn func(*domain.Account) error) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	// Identity fields are not updatable.
	working.ID, working.Handle, working.Contact, working.CreatedAt = current.ID, current.Handle, current.Contact, current.CreatedAt
	working.UpdatedAt = time.Now().UTC()

	r.byID[id] = working
	return working.Clone(), nil
}
