// Package worker contains the queue-processing loop and its supporting
// policies: per-attempt retry, per-user submission limits, and failure
// backoff. Multiple worker processes may run against the same database;
// they coordinate only through the store's atomic claim.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/applyflow/applyflow/internal/breaker"
	"github.com/applyflow/applyflow/internal/cache"
	"github.com/applyflow/applyflow/internal/config"
	"github.com/applyflow/applyflow/internal/core"
	"github.com/applyflow/applyflow/internal/store"
	"github.com/applyflow/applyflow/pkg/models"
	"github.com/google/uuid"
)

const (
	// maxLoopBackoff caps the delay between polls when the store itself is
	// failing.
	maxLoopBackoff = 5 * time.Minute
	// statusCacheTTL bounds how long item statuses linger in the cache.
	statusCacheTTL = 24 * time.Hour
)

// Deps are the collaborators the worker orchestrates.
type Deps struct {
	Store      store.Store
	Cache      cache.Cache
	Core       core.Client
	Customizer models.Customizer
	Breaker    *breaker.Breaker
	Retry      *RetryPolicy
	Limiter    *SubmissionLimiter
	Logger     *slog.Logger
}

// Worker drives the submission queue. One Run loop per process.
type Worker struct {
	store      store.Store
	cache      cache.Cache
	core       core.Client
	customizer models.Customizer
	breaker    *breaker.Breaker
	retry      *RetryPolicy
	limiter    *SubmissionLimiter
	logger     *slog.Logger
	cfg        config.WorkerConfig

	// Swapped in tests for deterministic timing.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Worker. Concurrency below 1 is treated as sequential.
func New(deps Deps, cfg config.WorkerConfig) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Worker{
		store:      deps.Store,
		cache:      deps.Cache,
		core:       deps.Core,
		customizer: deps.Customizer,
		breaker:    deps.Breaker,
		retry:      deps.Retry,
		limiter:    deps.Limiter,
		logger:     deps.Logger,
		cfg:        cfg,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Run polls the queue until ctx is cancelled. Claim errors back off with a
// doubled delay but never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"poll_interval", w.cfg.PollInterval,
		"batch_size", w.cfg.BatchSize,
		"concurrency", w.cfg.Concurrency,
		"max_attempts", w.cfg.MaxAttempts)

	delay := w.cfg.PollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		items, err := w.store.ClaimBatch(ctx, w.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("claiming batch", "error", err, "retry_in", delay)
			if err := w.sleep(ctx, delay); err != nil {
				return err
			}
			delay = minDuration(delay*2, maxLoopBackoff)
			continue
		}
		delay = w.cfg.PollInterval

		if len(items) == 0 {
			if err := w.sleep(ctx, w.cfg.PollInterval); err != nil {
				return err
			}
			continue
		}

		w.logger.Info("claimed batch", "count", len(items))
		w.processBatch(ctx, items)
	}
}

// processBatch works through claimed items with bounded concurrency. The
// default of 1 keeps per-user processing sequential, so two items for the
// same user cannot race past the rate check.
func (w *Worker) processBatch(ctx context.Context, items []*models.QueueItem) {
	sem := semaphore.NewWeighted(int64(w.cfg.Concurrency))
	var wg sync.WaitGroup

	for _, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			w.logger.Warn("batch interrupted", "error", err)
			break
		}
		wg.Add(1)
		go func(item *models.QueueItem) {
			defer wg.Done()
			defer sem.Release(1)
			w.processItem(ctx, item)
		}(item)
	}
	wg.Wait()
}

// processItem runs one claimed item to its next state. It never returns an
// error: every outcome is recorded as a state transition and the loop moves
// on.
func (w *Worker) processItem(ctx context.Context, item *models.QueueItem) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic processing item", "item_id", item.ID, "panic", r)
		}
	}()

	log := w.logger.With(
		"item_id", item.ID,
		"workflow_id", item.WorkflowID,
		"user_id", item.UserID,
		"job_external_id", item.JobExternalID,
		"attempts", item.Attempts)

	ok, err := w.limiter.CanSubmit(ctx, item.UserID)
	if err != nil {
		// A store failure is not the item's fault; charging it an attempt
		// would permanently fail innocent items during an outage. Leave the
		// claim in place and let the stale-claim reaper return it to the
		// pool with its budget intact.
		log.Error("rate check failed, leaving claim for the reaper", "error", err)
		return
	}
	if !ok {
		next := w.now().Add(w.cfg.RateLimitCooldown)
		if err := w.store.RescheduleRateLimited(ctx, item.ID, next); err != nil {
			log.Error("rescheduling rate-limited item", "error", err)
			return
		}
		w.cacheStatus(ctx, item.ID, models.QueueStatusRateLimited)
		log.Info("user over submission limit, item parked", "next_run_at", next)
		return
	}

	cv, err := w.store.GetCV(ctx, item.UserID, item.CVID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.failPermanently(ctx, log, item, "cv not found")
			return
		}
		log.Error("fetching cv", "error", err)
		w.handleFailure(ctx, log, item, err)
		return
	}
	if cv.ParsedData == nil {
		w.failPermanently(ctx, log, item, "cv has no parsed data")
		return
	}

	customized, err := w.customizer.CustomizeCV(ctx, *cv.ParsedData, item.Payload.Description)
	if err != nil {
		log.Error("customizing cv", "provider", w.customizer.Name(), "error", err)
		w.handleFailure(ctx, log, item, fmt.Errorf("customize cv: %w", err))
		return
	}
	letter, err := w.customizer.GenerateCoverLetter(ctx, *cv.ParsedData, item.Payload.Description, item.Payload.Company)
	if err != nil {
		log.Error("generating cover letter", "provider", w.customizer.Name(), "error", err)
		w.handleFailure(ctx, log, item, fmt.Errorf("generate cover letter: %w", err))
		return
	}

	resp, err := w.submit(ctx, core.SubmitRequest{
		JobExternalID: item.JobExternalID,
		CustomizedCV:  customized,
		CoverLetter:   letter,
	})
	if err != nil {
		switch {
		case errors.Is(err, breaker.ErrOpen):
			log.Warn("core circuit open, rescheduling without calling downstream")
			w.handleFailure(ctx, log, item, err)
		case w.rejectedByCore(err):
			// A non-retryable status is Core telling us the request itself
			// is wrong; retrying the same payload deterministically
			// re-fails, so the item surfaces immediately.
			log.Error("core rejected application", "error", err)
			w.failPermanently(ctx, log, item, err.Error())
		default:
			log.Error("submitting application", "error", err)
			w.handleFailure(ctx, log, item, err)
		}
		return
	}

	w.recordSuccess(ctx, log, item, letter, resp)
}

// submit calls Core under the circuit breaker, retrying retryable failures
// within this attempt. A breaker-open rejection stops retrying immediately;
// waiting out the reset timeout inline would stall the whole batch.
func (w *Worker) submit(ctx context.Context, req core.SubmitRequest) (*core.SubmitResponse, error) {
	var resp *core.SubmitResponse
	for try := 0; ; try++ {
		err := w.breaker.Do(func() error {
			r, err := w.core.SubmitApplication(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, breaker.ErrOpen) {
			return nil, err
		}
		if try >= w.retry.MaxRetries() || !w.retry.Retryable(err) {
			return nil, err
		}

		delay := w.retry.Delay(try + 1)
		w.logger.Debug("retrying submission", "job_external_id", req.JobExternalID, "try", try+1, "delay", delay)
		if serr := w.sleep(ctx, delay); serr != nil {
			return nil, err
		}
	}
}

// rejectedByCore reports whether err is a definitive Core response rather
// than a degraded downstream: an HTTP status the retry policy will never
// retry. Network failures, timeouts and retryable statuses are excluded.
func (w *Worker) rejectedByCore(err error) bool {
	var apiErr *core.APIError
	return errors.As(err, &apiErr) && !w.retry.Retryable(err)
}

func (w *Worker) recordSuccess(ctx context.Context, log *slog.Logger, item *models.QueueItem, letter string, resp *core.SubmitResponse) {
	now := w.now()
	app := &models.Application{
		ID:            uuid.New(),
		UserID:        item.UserID,
		JobExternalID: item.JobExternalID,
		Status:        models.ApplicationStatusSubmitted,
		SubmittedAt:   &now,
		CoverLetter:   letter,
		ResponseData:  resp.Raw,
		ResumeID:      optional(resp.ResumeID),
		NegotiationID: optional(resp.NegotiationID),
		CreatedAt:     now,
	}
	if err := w.store.CreateApplication(ctx, app); err != nil {
		// The submission already reached the job board. Losing the record
		// is bad; retrying and double-submitting would be worse, so the
		// item is still marked submitted.
		log.Error("recording application after successful submit", "error", err)
	}

	if err := w.store.MarkSubmitted(ctx, item.ID); err != nil {
		log.Error("marking item submitted", "error", err)
		return
	}
	w.cacheStatus(ctx, item.ID, models.QueueStatusSubmitted)
	log.Info("application submitted", "resume_id", resp.ResumeID, "negotiation_id", resp.NegotiationID)
}

// handleFailure applies the item-level attempt budget: exhausted items are
// failed permanently, the rest go back into the pool with exponential
// backoff.
func (w *Worker) handleFailure(ctx context.Context, log *slog.Logger, item *models.QueueItem, cause error) {
	reason := cause.Error()
	attempts := item.Attempts + 1
	if attempts >= w.cfg.MaxAttempts {
		w.failPermanently(ctx, log, item, reason)
		return
	}

	next := w.now().Add(retryBackoff(attempts))
	if err := w.store.RescheduleRetry(ctx, item.ID, next, reason); err != nil {
		log.Error("rescheduling failed item", "error", err)
		return
	}
	w.cacheStatus(ctx, item.ID, models.QueueStatusPending)
	log.Info("attempt failed, item rescheduled", "next_run_at", next, "attempt", attempts)
}

// failPermanently terminates the item and writes its failed Application
// record. Used both for data errors (bad CV) and exhausted attempts.
func (w *Worker) failPermanently(ctx context.Context, log *slog.Logger, item *models.QueueItem, reason string) {
	if err := w.store.MarkFailed(ctx, item.ID, reason); err != nil {
		log.Error("marking item failed", "error", err)
		return
	}

	now := w.now()
	app := &models.Application{
		ID:            uuid.New(),
		UserID:        item.UserID,
		JobExternalID: item.JobExternalID,
		Status:        models.ApplicationStatusFailed,
		ErrorMessage:  &reason,
		CreatedAt:     now,
	}
	if err := w.store.CreateApplication(ctx, app); err != nil {
		log.Error("recording failed application", "error", err)
	}

	w.cacheStatus(ctx, item.ID, models.QueueStatusFailed)
	log.Warn("item failed permanently", "reason", reason)
}

// cacheStatus mirrors the item status into the cache for cheap status
// reads. Best effort; the database remains the source of truth.
func (w *Worker) cacheStatus(ctx context.Context, itemID uuid.UUID, status string) {
	if w.cache == nil {
		return
	}
	if err := w.cache.SetItemStatus(ctx, itemID, status, statusCacheTTL); err != nil {
		w.logger.Debug("caching item status", "item_id", itemID, "error", err)
	}
}

// retryBackoff returns min(2^attempts, 60) minutes.
func retryBackoff(attempts int) time.Duration {
	if attempts > 6 {
		attempts = 6
	}
	minutes := 1 << attempts
	if minutes > 60 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
