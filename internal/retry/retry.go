// Package retry runs an operation with a bounded number of attempts and a
// caller-supplied backoff between them. It knows nothing about transports;
// callers decide which errors are worth another attempt.
package retry

import (
	"context"
	"errors"
	"time"
)

// BackoffFunc returns the delay to wait after the given 1-based attempt fails.
type BackoffFunc func(attempt int) time.Duration

// Linear returns base × attempt, so three attempts wait base then 2×base.
func Linear(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if base <= 0 || attempt <= 0 {
			return 0
		}
		return base * time.Duration(attempt)
	}
}

// TotalDelay sums the backoff a run of maxAttempts failures would wait.
func TotalDelay(maxAttempts int, backoff BackoffFunc) time.Duration {
	var total time.Duration
	for attempt := 1; attempt < maxAttempts; attempt++ {
		total += backoff(attempt)
	}
	return total
}

// Policy configures Do.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	// Retryable reports whether err deserves another attempt. Nil treats every
	// error as retryable.
	Retryable func(error) bool
	// Sleep waits for d or until ctx ends. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is invoked before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
// Its message is the last failure's message, unchanged.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string { return e.Err.Error() }

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Attempt calls fn up to maxAttempts times, waiting backoff(n) after failed
// attempt n. Every error is retried.
func Attempt(ctx context.Context, maxAttempts int, backoff BackoffFunc, fn func(ctx context.Context, attempt int) error) error {
	return Do(ctx, Policy{MaxAttempts: maxAttempts, Backoff: backoff}, fn)
}

// Do runs fn under policy. A non-retryable error is returned as is after its
// attempt; exhausting the budget returns *ExhaustedError.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || (policy.Retryable != nil && !policy.Retryable(err)) {
			return err
		}
		if attempt == attempts {
			break
		}
		var delay time.Duration
		if policy.Backoff != nil {
			delay = policy.Backoff(attempt)
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return lastErr
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
