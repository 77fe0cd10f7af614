package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/applyflow/applyflow/internal/config"
	"github.com/applyflow/applyflow/internal/store"
	"github.com/google/uuid"
)

// SubmissionLimiter enforces the job board's per-user submission caps.
// Counts come from the applications table, so every terminal outcome
// (submitted or failed) consumes quota; a submission the board saw and
// rejected still counted against the user there.
type SubmissionLimiter struct {
	store       store.Store
	hourlyLimit int
	dailyLimit  int

	now func() time.Time // swapped in tests
}

// NewSubmissionLimiter builds a limiter from config.
func NewSubmissionLimiter(s store.Store, cfg config.RateLimitConfig) *SubmissionLimiter {
	return &SubmissionLimiter{
		store:       s,
		hourlyLimit: cfg.HourlyLimit,
		dailyLimit:  cfg.DailyLimit,
		now:         time.Now,
	}
}

// CanSubmit reports whether userID has quota left in both the hourly and
// daily windows. A store error is returned as-is so the caller can treat
// it as a transient failure rather than a limit decision.
func (l *SubmissionLimiter) CanSubmit(ctx context.Context, userID uuid.UUID) (bool, error) {
	now := l.now()

	hourly, err := l.store.CountApplicationsSince(ctx, userID, now.Add(-time.Hour))
	if err != nil {
		return false, fmt.Errorf("counting hourly submissions: %w", err)
	}
	if hourly >= l.hourlyLimit {
		return false, nil
	}

	daily, err := l.store.CountApplicationsSince(ctx, userID, now.Add(-24*time.Hour))
	if err != nil {
		return false, fmt.Errorf("counting daily submissions: %w", err)
	}
	return daily < l.dailyLimit, nil
}
