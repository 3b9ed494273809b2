package testutil

import (
	"context"
	"sync"
	"time"
)

// ManualSleeper records requested sleeps instead of waiting.
//
// After CancelAfter sleeps it calls the cancel func it was given, so a
// loop under test stops after a known number of idle polls.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualSleeper struct {
	mu          sync.Mutex
	sleeps      []time.Duration
	cancelAfter int
	cancel      context.CancelFunc
	onSleep     func(n int)
}

// NewManualSleeper creates a sleeper that never cancels.
func NewManualSleeper() *ManualSleeper {
	return &ManualSleeper{}
}

// CancelAfter makes the n-th Sleep call cancel (and return ctx.Err()).
func (s *ManualSleeper) CancelAfter(n int, cancel context.CancelFunc) *ManualSleeper {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAfter = n
	s.cancel = cancel
	return s
}

// OnSleep registers fn to run on every Sleep with the 1-based call count,
// before any cancellation.
func (s *ManualSleeper) OnSleep(fn func(n int)) *ManualSleeper {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSleep = fn
	return s
}

// Sleep records d and returns immediately, or returns ctx.Err() if ctx is
// already done or this call triggers the cancellation.
func (s *ManualSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	n := len(s.sleeps)
	fn, cancel, after := s.onSleep, s.cancel, s.cancelAfter
	s.mu.Unlock()

	if fn != nil {
		fn(n)
	}
	if cancel != nil && n >= after {
		cancel()
	}
	return ctx.Err()
}

// Count returns the number of Sleep calls.
func (s *ManualSleeper) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sleeps)
}

// Total returns the sum of requested durations.
func (s *ManualSleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.sleeps {
		total += d
	}
	return total
}
