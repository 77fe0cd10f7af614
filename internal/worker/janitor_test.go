package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/applyflow/applyflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type janitorStore struct {
	store.Store
	mu          sync.Mutex
	reapCutoffs []time.Time
	reapErr     error
	sweeps      int
}

func (s *janitorStore) ReapStaleClaims(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reapErr != nil {
		return 0, s.reapErr
	}
	s.reapCutoffs = append(s.reapCutoffs, cutoff)
	return 2, nil
}

func (s *janitorStore) SweepCancelledWorkflows(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	return 1, nil
}

func TestSweep(t *testing.T) {
	js := &janitorStore{}
	j := NewJanitor(js, slog.New(slog.NewTextHandler(io.Discard, nil)), 10*time.Minute)
	j.now = func() time.Time { return baseTime }

	j.Sweep(context.Background())

	require.Len(t, js.reapCutoffs, 1)
	assert.Equal(t, baseTime.Add(-10*time.Minute), js.reapCutoffs[0])
	assert.Equal(t, 1, js.sweeps)
}

func TestSweep_ReapErrorStillSweeps(t *testing.T) {
	js := &janitorStore{reapErr: errors.New("connection refused")}
	j := NewJanitor(js, slog.New(slog.NewTextHandler(io.Discard, nil)), 10*time.Minute)

	j.Sweep(context.Background())

	assert.Equal(t, 1, js.sweeps)
}
