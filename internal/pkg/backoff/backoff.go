// Package backoff provides bounded exponential backoff with explicit
// attempt state, so exhaustion is a value tests can reach deterministically
// rather than an unbounded loop.
package backoff

import (
	"context"
	"time"
)

type Policy struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		Initial:     500 * time.Millisecond,
		Max:         10 * time.Second,
		Multiplier:  2,
		MaxAttempts: 4,
	}
}

// Delay returns the wait before the given attempt (1-based). Attempt 1 has
// no delay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := p.Initial
	for i := 2; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}

// Wait sleeps for the attempt's delay, returning early with ctx.Err() on
// cancellation. Retries must die the moment the caller's context does.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Exhausted reports whether attempt exceeds the bound.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
