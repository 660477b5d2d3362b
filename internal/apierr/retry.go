package apierr

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig bounds RetryWithBackoff. Out-of-range values are forced sane
// rather than rejected: a negative MaxRetries means a single attempt, a
// non-positive BaseDelay becomes 1ms, and a non-positive MaxDelay collapses
// to BaseDelay.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Notify, when set, is called before each backoff wait with the error
	// that triggered the retry and the upcoming delay.
	Notify func(err error, delay time.Duration)
}

// normalized returns cfg with out-of-range fields forced into the ranges
// the retry loop assumes.
func (c RetryConfig) normalized() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = c.BaseDelay
	}
	return c
}

// RetryWithBackoff calls fn until it succeeds, the context is cancelled, an
// error fails the shouldRetry filter, or the retry budget runs out. The wait
// doubles after every retry, capped at MaxDelay. A filtered error comes back
// as-is; an exhausted budget wraps the last error.
func RetryWithBackoff[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func() (T, error),
	shouldRetry func(error) bool,
) (T, error) {
	cfg = cfg.normalized()

	var zero T
	var lastErr error
	delay := cfg.BaseDelay

	for remaining := cfg.MaxRetries; ; remaining-- {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !shouldRetry(err) {
			return zero, err
		}
		lastErr = err
		if remaining == 0 {
			break
		}

		if cfg.Notify != nil {
			cfg.Notify(lastErr, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
		delay = min(delay*2, cfg.MaxDelay)
	}
	return zero, fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
