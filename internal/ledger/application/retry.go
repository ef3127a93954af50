package application

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts  = 8
	defaultBaseDelay    = 5 * time.Millisecond
	defaultJitterFactor = 0.3
)

type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	JitterFactor float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  defaultMaxAttempts,
		BaseDelay:    defaultBaseDelay,
		JitterFactor: defaultJitterFactor,
	}
}

// retryOnConflict runs fn until it returns something other than ErrConflict
// or the attempts are used up. Delays grow as BaseDelay * 2^(attempt-1).
func retryOnConflict(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) (int, error) {
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && p.BaseDelay > 0 {
			delay := p.BaseDelay * time.Duration(1<<min(attempt-1, 10))
			jitter := rand.Float64() * float64(delay) * p.JitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return attempt, ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if !errors.Is(lastErr, ErrConflict) {
			return attempt + 1, lastErr
		}
	}
	return attempts, lastErr
}
