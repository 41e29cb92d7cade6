package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

// AuditRepo is an in-memory append-only audit log.
type AuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func NewAuditRepo() *AuditRepo {
	return &AuditRepo{}
}

func (r *AuditRepo) Append(_ context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *AuditRepo) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	out := make([]domain.AuditEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
