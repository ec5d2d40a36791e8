// Package retry provides the interval policy family used to schedule
// retries and a context-aware executor that drives it.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/bulwark-go/bulwark/core"
)

// Config configures retry behavior
type Config struct {
	// MaxAttempts bounds the total number of calls, first try included
	MaxAttempts int

	// Policy computes the wait before each re-attempt. Defaults to
	// the exponential-randomized policy.
	Policy *IntervalPolicy

	// RetryOn decides whether a returned error is worth another
	// attempt. Defaults to retrying every error.
	RetryOn func(error) bool

	// Logger for retry events
	Logger core.Logger
}

// DefaultConfig provides sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Policy:      Default(),
		RetryOn:     func(error) bool { return true },
		Logger:      &core.NoOpLogger{},
	}
}

// Executor runs functions with retry scheduling
type Executor struct {
	config *Config
	logger core.Logger
}

// NewExecutor creates an executor from the given config. A nil config
// uses DefaultConfig.
func NewExecutor(config *Config) *Executor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Policy == nil {
		config.Policy = Default()
	}
	if config.RetryOn == nil {
		config.RetryOn = func(error) bool { return true }
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	return &Executor{config: config, logger: config.Logger}
}

// SetLogger sets the logger provider
func (e *Executor) SetLogger(logger core.Logger) {
	if logger == nil {
		e.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		e.logger = cal.WithComponent("bulwark/retry")
	} else {
		e.logger = logger
	}
}

// Do executes fn until it succeeds, the attempts are exhausted, the
// RetryOn predicate declines, or the context ends.
func (e *Executor) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				e.logger.Info("Operation succeeded after retry", map[string]interface{}{
					"operation": "retry_succeeded",
					"attempt":   attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !e.config.RetryOn(err) {
			e.logger.Debug("Error not retryable", map[string]interface{}{
				"operation": "retry_abort",
				"attempt":   attempt,
				"error":     err.Error(),
			})
			return err
		}

		if attempt == e.config.MaxAttempts {
			break
		}

		wait, werr := e.config.Policy.WaitFor(attempt)
		if werr != nil {
			return werr
		}

		e.logger.Debug("Scheduling retry", map[string]interface{}{
			"operation": "retry_backoff",
			"attempt":   attempt,
			"wait_ms":   wait.Milliseconds(),
			"error":     err.Error(),
		})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %v: %w",
		e.config.MaxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}

// Do executes fn with the given config on a throwaway executor
func Do(ctx context.Context, config *Config, fn func() error) error {
	return NewExecutor(config).Do(ctx, fn)
}
