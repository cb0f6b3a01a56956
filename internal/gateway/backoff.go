package gateway

import (
	"context"
	"time"
)

// Backoff computes capped exponential delays for rate-limit retries.
// Delays start at Base and double per attempt up to Max. There is no retry
// count limit; the caller's context bounds total wait.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff matches the remote service's documented rate-limit guidance.
func DefaultBackoff() Backoff {
	return Backoff{Base: 1 * time.Second, Max: 30 * time.Second}
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// sleeper abstracts waiting so tests can run with a fake clock.
type sleeper func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
