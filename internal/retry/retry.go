// Package retry is the single retry combinator used by every external call
// site. It layers attempt accounting and a retryable-error predicate on top
// of cenkalti/backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config describes one retry policy.
type Config struct {
	// MaxAttempts counts the first attempt too; it must be >= 1.
	MaxAttempts int
	// Backoff maps the just-failed attempt number (1-based) to the delay
	// slept before the next attempt.
	Backoff func(attempt int) time.Duration
	// RetryIf reports whether an error is worth another attempt. Nil means
	// every error is retryable.
	RetryIf func(error) bool
	// OnRetry is invoked before each sleep with the failed attempt number,
	// its error, and the chosen delay.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Exponential returns base * 2^(attempt-1).
func Exponential(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << (attempt - 1)
	}
}

// Fixed always returns d. Used for cheap I/O-bound retries.
func Fixed(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// Scaled returns d * attempt, the short linear ramp the transcription stage
// uses against provider rate limits.
func Scaled(d time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return d * time.Duration(attempt)
	}
}

// Permanent marks err as not retryable regardless of RetryIf.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op under cfg and returns its value, or the last error once the
// attempt budget is exhausted, the error is classified fatal, or ctx ends.
func Do[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	var (
		out     T
		lastErr error
		attempt int
	)
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = Exponential(500 * time.Millisecond)
	}

	wrapped := func() error {
		attempt++
		v, err := op()
		if err == nil {
			out = v
			return nil
		}
		lastErr = err
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&attemptBackoff{fn: cfg.Backoff}, uint64(cfg.MaxAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
	}

	if err := backoff.RetryNotify(wrapped, policy, notify); err != nil {
		var zero T
		if lastErr != nil {
			return zero, lastErr
		}
		return zero, err
	}
	return out, nil
}

// attemptBackoff adapts a per-attempt delay function to the backoff.BackOff
// interface.
type attemptBackoff struct {
	fn      func(int) time.Duration
	attempt int
}

func (b *attemptBackoff) NextBackOff() time.Duration {
	b.attempt++
	return b.fn(b.attempt)
}

func (b *attemptBackoff) Reset() { b.attempt = 0 }
