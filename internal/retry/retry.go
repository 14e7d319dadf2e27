// Package retry provides the bounded retry-with-backoff combinator used by
// the bulk insert executor for transient store errors (write-lock contention
// on the embedded engine).
package retry

import (
	"context"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the sleep after the first failed attempt; each subsequent
	// failure doubles it.
	BaseDelay time.Duration
	// MaxDelay caps the backoff when > 0.
	MaxDelay time.Duration
}

// DefaultPolicy matches the contention profile of a single-writer embedded
// engine: a few quick attempts, starting at 100ms.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

// Do runs fn up to p.MaxAttempts times. A nil error stops immediately. An
// error for which retryable returns false is returned as-is without further
// attempts; so is the last error once attempts are exhausted. The sleep
// between attempts honors ctx cancellation.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	delay := p.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || retryable == nil || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
