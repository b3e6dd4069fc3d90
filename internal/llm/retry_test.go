package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/raganything/ragserver/internal/log"
)

// fastRetry keeps backoff negligible so tests stay fast.
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestWithRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := withRetry(context.Background(), log.NewNop(), fastRetry(), "op",
		func(ctx context.Context) (string, error) {
			calls++
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls, want %q after 1", got, calls, "ok")
	}
}

func TestWithRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	got, err := withRetry(context.Background(), log.NewNop(), fastRetry(), "op",
		func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("connection reset by peer")
			}
			return 42, nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || calls != 3 {
		t.Errorf("got %d after %d calls, want 42 after 3", got, calls)
	}
}

func TestWithRetry_PermanentFailsImmediately(t *testing.T) {
	calls := 0
	authErr := &openai.Error{StatusCode: 401}
	_, err := withRetry(context.Background(), log.NewNop(), fastRetry(), "op",
		func(ctx context.Context) (string, error) {
			calls++
			return "", authErr
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("permanent error retried: %d calls, want 1", calls)
	}
	if !errors.Is(err, ErrProvider) {
		t.Errorf("permanent provider error does not wrap ErrProvider: %v", err)
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Error("underlying API error not preserved")
	}
}

func TestWithRetry_ExhaustionWrapsProviderError(t *testing.T) {
	calls := 0
	rateErr := &openai.Error{StatusCode: 429}
	_, err := withRetry(context.Background(), log.NewNop(), fastRetry(), "embed",
		func(ctx context.Context) (string, error) {
			calls++
			return "", rateErr
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
	if !errors.Is(err, ErrProvider) {
		t.Errorf("error does not wrap ErrProvider: %v", err)
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 429 {
		t.Errorf("last provider error not preserved: %v", err)
	}
}

func TestWithRetry_ContextCancelAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := withRetry(ctx, log.NewNop(), fastRetry(), "op",
		func(ctx context.Context) (string, error) {
			calls++
			cancel()
			return "", errors.New("transient")
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error does not wrap context.Canceled: %v", err)
	}
	if errors.Is(err, ErrProvider) {
		t.Error("cancellation must not be reported as a provider error")
	}
	if calls != 1 {
		t.Errorf("got %d calls after cancel, want 1", calls)
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"rate limited", &openai.Error{StatusCode: 429}, true},
		{"server error", &openai.Error{StatusCode: 503}, true},
		{"unauthorized", &openai.Error{StatusCode: 401}, false},
		{"bad request", &openai.Error{StatusCode: 400}, false},
		{"transport failure", errors.New("dial tcp: connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
