// Package retry wraps a fallible operation with bounded retries and
// truncated exponential backoff. The delay sequence is deterministic
// (no jitter term) so callers can assert on total backoff directly.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/taskgraphd/taskgraph/core"
)

// Config bounds a retry run. Attempts 1..MaxAttempts are tried; on the
// i-th failure (i < MaxAttempts) the helper waits
// min(BaseDelay*2^(i-1), MaxDelay) before the next attempt.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultConfig returns a 100ms base / 5s cap backoff policy with 3
// attempts. The executor replaces MaxAttempts per node with the node's
// Config.Retries+1.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Delay returns the truncated-exponential backoff before the attempt-th
// retry (attempt is 1-based: the wait before attempt 2 is Delay(1)).
func (c Config) Delay(attempt int) time.Duration {
	d := c.BaseDelay << uint(attempt-1)
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// Do runs fn up to cfg.MaxAttempts times. It returns nil on the first
// success. After the final failed attempt it returns the most recent
// error wrapped in core.ErrMaxRetriesExceeded, unless ctx was cancelled
// first, in which case ctx.Err() is returned instead.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%d attempts exhausted, last error: %w: %w", cfg.MaxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}
