package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
)

// RetryConfig configures the retry behavior for provider calls.
type RetryConfig struct {
	MaxAttempts     int           // total attempts, including the first
	InitialInterval time.Duration // first backoff delay
	MaxInterval     time.Duration // backoff cap
}

// DefaultRetryConfig returns the production policy: 3 attempts with
// exponential backoff starting at 2s and capped at 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     10 * time.Second,
	}
}

// retryableError reports whether err is transient and worth retrying.
//
// API errors carry an HTTP status: rate limiting (429) and server-side
// failures (5xx) are transient, everything else (auth, bad request) is
// permanent. Non-API errors are transport failures and are retried,
// except for context cancellation which must abort immediately.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	// Network-level failure (connection reset, DNS, timeout).
	return true
}

// withRetry runs fn with exponential backoff per cfg. On a permanent
// error it fails immediately; after exhausting attempts it gives up
// with the last error. Either way the returned error wraps both
// ErrProvider and the underlying provider error so callers can test
// with errors.Is or errors.As. Context cancellation is the exception:
// it wraps only the context error.
func withRetry[T any](ctx context.Context, logger *slog.Logger, cfg RetryConfig, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := cfg.InitialInterval
	start := time.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug("provider call succeeded after retry",
					"op", op, "attempts", attempt, "elapsed", time.Since(start))
			}
			return result, nil
		}

		lastErr = err

		if !retryableError(err) {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return zero, fmt.Errorf("%s: %w", op, err)
			}
			// Permanent provider responses (auth, bad request) still
			// carry ErrProvider so callers classify them uniformly.
			return zero, fmt.Errorf("%w: %s: %w", ErrProvider, op, err)
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger.Debug("retrying provider call",
			"op", op, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s canceled during retry: %w", op, ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return zero, fmt.Errorf("%w: %s failed after %d attempts: %w",
		ErrProvider, op, cfg.MaxAttempts, lastErr)
}
