package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskgraphd/taskgraph/core"
)

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoFailsAfterMaxAttemptsExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, func() error {
		calls++
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.Equal(t, 2, calls)
}

// S5-style: fails K=2 times then succeeds; MaxAttempts > K so it recovers.
func TestDoSucceedsWhenMaxAttemptsExceedsFailureCount(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, func() error {
		calls++
		if calls <= 2 {
			return errors.New("fails twice")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoFailsWhenMaxAttemptsDoesNotExceedFailureCount(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, func() error {
		calls++
		return errors.New("fails at least twice")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDelayIsTruncatedExponentialBackoff(t *testing.T) {
	cfg := Config{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, 200*time.Millisecond, cfg.Delay(2))
	assert.Equal(t, 300*time.Millisecond, cfg.Delay(3)) // would be 400ms uncapped
	assert.Equal(t, 300*time.Millisecond, cfg.Delay(4))
}

func TestDoRespectsContextCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := Do(ctx, Config{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}, func() error {
		calls++
		return errors.New("always fails")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestDoTotalWaitBoundedBySummationFormula(t *testing.T) {
	cfg := Config{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond}
	// Σ min(base*2^i, max) for i in [0, min(K,MaxAttempts-1)-1]; fn always
	// fails, so K >= MaxAttempts and the sum has MaxAttempts-1 = 3 terms.
	want := cfg.Delay(1) + cfg.Delay(2) + cfg.Delay(3)

	calls := 0
	start := time.Now()
	_ = Do(context.Background(), cfg, func() error {
		calls++
		return errors.New("always fails")
	})
	elapsed := time.Since(start)

	assert.Equal(t, 4, calls)
	assert.GreaterOrEqual(t, elapsed, want)
	assert.Less(t, elapsed, want+50*time.Millisecond)
}
