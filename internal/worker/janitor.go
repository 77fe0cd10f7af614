package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/applyflow/applyflow/internal/store"
)

// Janitor periodically repairs queue state that no single worker owns:
// items stuck in processing after a worker crash, and rescheduled items
// whose workflow was cancelled while they waited out a backoff.
type Janitor struct {
	store      store.Store
	logger     *slog.Logger
	staleAfter time.Duration
	cron       *cron.Cron

	now func() time.Time // swapped in tests
}

// NewJanitor creates a Janitor. staleAfter is how long an item may sit in
// processing before its claim is considered abandoned; it must comfortably
// exceed the worst-case per-item processing time.
func NewJanitor(s store.Store, logger *slog.Logger, staleAfter time.Duration) *Janitor {
	return &Janitor{
		store:      s,
		logger:     logger,
		staleAfter: staleAfter,
		cron:       cron.New(),
		now:        time.Now,
	}
}

// Start schedules the sweep once a minute and returns immediately.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc("@every 1m", j.tick); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	j.Sweep(ctx)
}

// Sweep runs both repair passes once.
func (j *Janitor) Sweep(ctx context.Context) {
	cutoff := j.now().Add(-j.staleAfter)
	reaped, err := j.store.ReapStaleClaims(ctx, cutoff)
	if err != nil {
		j.logger.Error("reaping stale claims", "error", err)
	} else if reaped > 0 {
		j.logger.Warn("reclaimed abandoned items", "count", reaped, "cutoff", cutoff)
	}

	swept, err := j.store.SweepCancelledWorkflows(ctx)
	if err != nil {
		j.logger.Error("sweeping cancelled workflows", "error", err)
	} else if swept > 0 {
		j.logger.Info("cancelled leftover items", "count", swept)
	}
}
