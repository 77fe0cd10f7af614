package worker

import (
	"errors"
	"time"

	"github.com/applyflow/applyflow/internal/config"
	"github.com/applyflow/applyflow/internal/core"
)

// RetryPolicy decides whether a failed submission is retried within the
// current processing attempt, and how long to wait before each retry.
// It is distinct from the item-level attempt budget: a claimed item gets
// up to 1+MaxRetries submission calls before its attempt is counted as
// failed.
type RetryPolicy struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	exponential  bool
	retryable    map[int]bool
}

// NewRetryPolicy builds a policy from config.
func NewRetryPolicy(cfg config.RetryConfig) *RetryPolicy {
	statuses := make(map[int]bool, len(cfg.RetryableStatuses))
	for _, s := range cfg.RetryableStatuses {
		statuses[s] = true
	}
	return &RetryPolicy{
		maxRetries:   cfg.MaxRetries,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		exponential:  cfg.ExponentialBackoff,
		retryable:    statuses,
	}
}

// MaxRetries returns how many retries are allowed after the first call.
func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// Retryable reports whether err is worth retrying within this attempt.
// Transport failures always are; HTTP errors only for the configured
// status codes. Anything else (malformed payload, auth rejection) is not.
func (p *RetryPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrCoreUnreachable) || errors.Is(err, core.ErrCoreTimeout) {
		return true
	}
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return p.retryable[apiErr.StatusCode]
	}
	return false
}

// Delay returns the wait before retry number n (1-based).
func (p *RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.initialDelay
	if p.exponential {
		for i := 1; i < n; i++ {
			d *= 2
			if d >= p.maxDelay {
				return p.maxDelay
			}
		}
	}
	if d > p.maxDelay {
		return p.maxDelay
	}
	return d
}
