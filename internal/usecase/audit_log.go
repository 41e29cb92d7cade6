package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
	"github.com/FilipeAphrody/sentinel-accounts/pkg/security"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditRecord is an entry as returned to readers, with its seal checked.
type AuditRecord struct {
	domain.AuditEntry
	Sealed bool `json:"sealed"`
}

// AuditLog appends sealed security events. Write failures are reported to
// the operational logger and never surface to the caller: the decision the
// event describes has already been made.
type AuditLog struct {
	repo   domain.AuditRepository
	sealer *security.Sealer
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLog(repo domain.AuditRepository, sealKey string, logger *slog.Logger) *AuditLog {
	return &AuditLog{
		repo:   repo,
		sealer: security.NewSealer(sealKey),
		logger: logger,
		now:    time.Now,
	}
}

// Record appends one entry. accountID may be empty for anonymous events.
func (l *AuditLog) Record(ctx context.Context, accountID, origin string, action domain.AuditAction, detail string) {
	entry := &domain.AuditEntry{
		ID: uuid.NewString(),
		// Postgres keeps microseconds; truncating keeps the seal stable across a round trip.
		Timestamp: l.now().UTC().Truncate(time.Microsecond),
		AccountID: accountID,
		Origin:    origin,
		Action:    action,
		Detail:    detail,
	}
	entry.Seal = l.sealer.Seal(sealFields(*entry)...)

	if err := l.repo.Append(ctx, entry); err != nil {
		l.logger.ErrorContext(ctx, "audit log write failed",
			"err", err, "action", action, "account_id", accountID, "origin", origin)
	}
}

// List returns matching entries in timestamp order, each with its seal verified.
func (l *AuditLog) List(ctx context.Context, filter domain.AuditFilter) ([]AuditRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}

	entries, err := l.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]AuditRecord, 0, len(entries))
	for _, e := range entries {
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, AuditRecord{AuditEntry: e, Sealed: l.Verify(e)})
	}
	return out, nil
}

// Verify reports whether the entry still matches its seal.
func (l *AuditLog) Verify(e domain.AuditEntry) bool {
	return l.sealer.Verify(e.Seal, sealFields(e)...)
}

func sealFields(e domain.AuditEntry) []string {
	return []string{
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.AccountID,
		e.Origin,
		string(e.Action),
		e.Detail,
	}
}
