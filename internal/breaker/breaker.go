// Package breaker implements a circuit breaker for a single downstream
// dependency. One instance is shared by all calls to that dependency within
// a process; a downstream-wide outage degrades to fast rejection instead of
// a pile-up of timed-out calls.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without invoking the wrapped call while the breaker
// is open. Callers treat it as a transient downstream failure but should
// log it distinctly.
var ErrOpen = errors.New("circuit breaker open")

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Config tunes the breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures in the closed
	// state that opens the breaker.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker again.
	SuccessThreshold int
	// ResetTimeout is how long the breaker stays open before allowing a
	// half-open trial call.
	ResetTimeout time.Duration
}

// Breaker is a CLOSED → OPEN → HALF_OPEN state machine. Safe for
// concurrent use.
type Breaker struct {
	mu          sync.Mutex
	cfg         Config
	state       State
	failures    int
	successes   int
	nextAttempt time.Time

	now func() time.Time // swapped in tests
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	return &Breaker{cfg: cfg, state: StateClosed, now: time.Now}
}

// Do runs fn under the breaker. While open and before the reset timeout it
// returns ErrOpen without calling fn; once the timeout elapses the next
// call transitions to half-open and is allowed through.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// State returns the current state, accounting for an elapsed reset timeout:
// an open breaker whose timeout has passed reports half-open, matching what
// the next Do would see.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.now().Before(b.nextAttempt) {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Before(b.nextAttempt) {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		switch b.state {
		case StateHalfOpen:
			// One failed trial reopens immediately.
			b.trip()
		case StateClosed:
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				b.trip()
			}
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.failures = 0
	b.nextAttempt = b.now().Add(b.cfg.ResetTimeout)
}
