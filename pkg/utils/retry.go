package utils

import (
	"context"
	"time"
)

// RetryConfig controls exponential backoff for transient broker
// failures.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the retry policy applied to market data
// calls: three attempts starting at 100ms, doubling each time.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryWithResult calls fn until it succeeds or the attempts are
// exhausted, sleeping an increasing delay between attempts. A cancelled
// context stops the retries immediately; otherwise the last error is
// returned.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := cfg.InitialDelay
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay = nextDelay(cfg, delay)
	}

	return zero, lastErr
}

// nextDelay grows the delay by the backoff factor, capped at MaxDelay.
func nextDelay(cfg RetryConfig, delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * cfg.BackoffFactor)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
