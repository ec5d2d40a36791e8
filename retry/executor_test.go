package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bulwark-go/bulwark/core"
)

func fastConfig(maxAttempts int) *Config {
	policy, _ := OfConstant(10 * time.Millisecond)
	return &Config{
		MaxAttempts: maxAttempts,
		Policy:      policy,
		Logger:      &core.NoOpLogger{},
	}
}

// TestExecutorFirstAttemptSuccess tests successful execution on first attempt
func TestExecutorFirstAttemptSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

// TestExecutorEventualSuccess tests success after multiple attempts
func TestExecutorEventualSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected eventual success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

// TestExecutorMaxAttemptsExceeded tests failure after all retries exhausted
func TestExecutorMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	testErr := errors.New("persistent error")

	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return testErr
	})

	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("Expected ErrMaxRetriesExceeded, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

// TestExecutorRetryOnPredicate tests that non-retryable errors abort immediately
func TestExecutorRetryOnPredicate(t *testing.T) {
	fatal := errors.New("fatal error")
	config := fastConfig(5)
	config.RetryOn = func(err error) bool {
		return !errors.Is(err, fatal)
	}

	attempts := 0
	err := Do(context.Background(), config, func() error {
		attempts++
		return fatal
	})

	if !errors.Is(err, fatal) {
		t.Errorf("Expected fatal error returned unchanged, got %v", err)
	}
	if errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("Expected no max-retries wrap for aborted retry")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

// TestExecutorContextCancellation tests context cancellation during backoff
func TestExecutorContextCancellation(t *testing.T) {
	policy, _ := OfConstant(200 * time.Millisecond)
	config := &Config{
		MaxAttempts: 5,
		Policy:      policy,
		Logger:      &core.NoOpLogger{},
	}

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, config, func() error {
			attempts++
			return errors.New("keep retrying")
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not observe cancellation")
	}

	if attempts != 1 {
		t.Errorf("Expected cancellation during first backoff, got %d attempts", attempts)
	}
}

// TestExecutorNilConfigUsesDefaults tests the nil-config path
func TestExecutorNilConfigUsesDefaults(t *testing.T) {
	attempts := 0
	err := NewExecutor(nil).Do(context.Background(), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected success with default config, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}
