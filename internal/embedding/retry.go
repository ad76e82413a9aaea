package embedding

import (
	"context"
	"errors"
	"time"
)

// RetryConfig controls the exponential backoff applied to a remote
// provider's transient failures before they are surfaced as
// EmbeddingUnavailable.
type RetryConfig struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxAttempts int
}

// DefaultRetryConfig matches spec §4.C's stated defaults: base 1s, factor
// 2, max 3 attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{BaseDelay: time.Second, Factor: 2, MaxAttempts: 3}
}

// permanentError marks a failure that must not be retried, e.g. an
// oversize input rejected by the model. withRetry surfaces it immediately
// instead of exhausting the attempt budget.
type permanentError struct{ cause error }

func (e *permanentError) Error() string { return e.cause.Error() }
func (e *permanentError) Unwrap() error { return e.cause }

// Permanent wraps err so withRetry treats it as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{cause: err}
}

// withRetry runs fn up to cfg.MaxAttempts times with exponential backoff,
// stopping early on context cancellation or a permanentError.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.BaseDelay
	var lastErr error

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.cause
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Factor)
	}

	return lastErr
}
