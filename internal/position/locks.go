package position

import (
	"fmt"
	"sync"
	"time"
)

// ErrLockTimeout is surfaced when per-symbol state cannot be locked within
// the bound. Callers must treat it as a retryable condition, never proceed
// on stale data.
var ErrLockTimeout = fmt.Errorf("state_lock_timeout")

// symbolLocks serializes writers per symbol while letting different symbols
// proceed in parallel. Acquisition is bounded: a blocked writer gets
// ErrLockTimeout instead of waiting forever.
type symbolLocks struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	timeout time.Duration
}

func newSymbolLocks(timeout time.Duration) *symbolLocks {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &symbolLocks{
		locks:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

func (s *symbolLocks) get(symbol string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[symbol]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[symbol] = ch
	}
	return ch
}

// acquire returns a release func, or ErrLockTimeout after the bound.
func (s *symbolLocks) acquire(symbol string) (func(), error) {
	ch := s.get(symbol)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	default:
	}
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, fmt.Errorf("symbol %s: %w", symbol, ErrLockTimeout)
	}
}
