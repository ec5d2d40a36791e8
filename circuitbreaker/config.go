package circuitbreaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/bulwark-go/bulwark/core"
)

// WindowType selects the sliding window implementation
type WindowType int

const (
	// WindowTypeCount aggregates over the last SlidingWindowSize calls
	WindowTypeCount WindowType = iota
	// WindowTypeTime aggregates over the last SlidingWindowSize seconds
	WindowTypeTime
)

// String returns the string representation of the window type
func (w WindowType) String() string {
	switch w {
	case WindowTypeCount:
		return "count"
	case WindowTypeTime:
		return "time"
	default:
		return "unknown"
	}
}

// recordedOutcome is the classification of a raised error
type recordedOutcome int

const (
	recordedFailure recordedOutcome = iota
	recordedIgnored
)

// Config holds configuration for the circuit breaker. A Config is
// immutable once handed to New; create a new breaker to change it.
type Config struct {
	// Name identifies the circuit breaker
	Name string

	// FailureRateThreshold is the failure rate in percent (0, 100]
	// at or above which the breaker opens
	FailureRateThreshold float64

	// SlowCallRateThreshold is the slow call rate in percent (0, 100]
	// at or above which the breaker opens
	SlowCallRateThreshold float64

	// SlowCallDurationThreshold is the elapsed time at or above which
	// a call counts as slow
	SlowCallDurationThreshold time.Duration

	// WaitDurationInOpenState is how long the breaker stays open
	// before trial calls are allowed
	WaitDurationInOpenState time.Duration

	// SlidingWindowSize is the window extent: calls for a count
	// window, seconds for a time window
	SlidingWindowSize int

	// SlidingWindowType selects count-based or time-based aggregation
	SlidingWindowType WindowType

	// MinimumNumberOfCalls is the floor below which rates are
	// undefined and cannot trigger a transition
	MinimumNumberOfCalls int

	// PermittedNumberOfCallsInHalfOpen bounds the trial calls allowed
	// while half-open
	PermittedNumberOfCallsInHalfOpen int

	// AutomaticTransitionFromOpenToHalfOpenEnabled schedules the
	// open-to-half-open transition instead of waiting for the next
	// acquisition
	AutomaticTransitionFromOpenToHalfOpenEnabled bool

	// WritableStackTraceEnabled is carried on denial errors as an
	// advisory payload field
	WritableStackTraceEnabled bool

	// RecordFailurePredicate decides whether a raised error counts as
	// a failure. Defaults to recording every error.
	RecordFailurePredicate func(error) bool

	// RecordErrors restricts failure recording to errors matching one
	// of these targets (errors.Is). Empty records all not-ignored.
	RecordErrors []error

	// IgnoreErrors lists error targets that are neither failures nor
	// successes; matching calls release their permit without recording
	IgnoreErrors []error

	// Clock is the time source for window bucketing and open expiry
	Clock core.Clock

	// Scheduler runs the optional automatic open-to-half-open callback
	Scheduler core.Scheduler

	// Logger for circuit breaker events
	Logger core.Logger

	// Metrics collector for monitoring
	Metrics MetricsCollector
}

// DefaultConfig returns a production-ready default configuration
func DefaultConfig() *Config {
	return &Config{
		Name:                             "default",
		FailureRateThreshold:             50.0,
		SlowCallRateThreshold:            100.0,
		SlowCallDurationThreshold:        60 * time.Second,
		WaitDurationInOpenState:          60 * time.Second,
		SlidingWindowSize:                100,
		SlidingWindowType:                WindowTypeCount,
		MinimumNumberOfCalls:             100,
		PermittedNumberOfCallsInHalfOpen: 10,
		WritableStackTraceEnabled:        true,
		RecordFailurePredicate:           func(error) bool { return true },
		Clock:                            core.SystemClock{},
		Scheduler:                        core.TimerScheduler{},
		Logger:                           &core.NoOpLogger{},
		Metrics:                          &noopMetrics{},
	}
}

// Validate validates the circuit breaker configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("configuration cannot be nil: %w", core.ErrInvalidConfiguration)
	}

	if c.Name == "" {
		return fmt.Errorf("circuit breaker name is required: %w", core.ErrInvalidConfiguration)
	}

	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 100 {
		return fmt.Errorf("failure rate threshold must be in (0, 100], got %v: %w",
			c.FailureRateThreshold, core.ErrInvalidArgument)
	}

	if c.SlowCallRateThreshold <= 0 || c.SlowCallRateThreshold > 100 {
		return fmt.Errorf("slow call rate threshold must be in (0, 100], got %v: %w",
			c.SlowCallRateThreshold, core.ErrInvalidArgument)
	}

	if c.SlowCallDurationThreshold < time.Nanosecond {
		return fmt.Errorf("slow call duration threshold must be at least 1ns, got %v: %w",
			c.SlowCallDurationThreshold, core.ErrInvalidArgument)
	}

	if c.WaitDurationInOpenState < time.Millisecond {
		return fmt.Errorf("wait duration in open state must be at least 1ms, got %v: %w",
			c.WaitDurationInOpenState, core.ErrInvalidArgument)
	}

	if c.SlidingWindowSize < 1 {
		return fmt.Errorf("sliding window size must be at least 1, got %d: %w",
			c.SlidingWindowSize, core.ErrInvalidArgument)
	}

	if c.SlidingWindowType != WindowTypeCount && c.SlidingWindowType != WindowTypeTime {
		return fmt.Errorf("sliding window type must be count or time, got %d: %w",
			int(c.SlidingWindowType), core.ErrInvalidArgument)
	}

	if c.MinimumNumberOfCalls < 1 {
		return fmt.Errorf("minimum number of calls must be at least 1, got %d: %w",
			c.MinimumNumberOfCalls, core.ErrInvalidArgument)
	}

	if c.PermittedNumberOfCallsInHalfOpen < 1 {
		return fmt.Errorf("permitted number of calls in half-open must be at least 1, got %d: %w",
			c.PermittedNumberOfCallsInHalfOpen, core.ErrInvalidArgument)
	}

	return nil
}

// withDefaults fills unset collaborator fields so the breaker never
// has to nil-check them on the hot path.
func (c *Config) withDefaults() *Config {
	if c.RecordFailurePredicate == nil {
		c.RecordFailurePredicate = func(error) bool { return true }
	}
	if c.Clock == nil {
		c.Clock = core.SystemClock{}
	}
	if c.Scheduler == nil {
		c.Scheduler = core.TimerScheduler{}
	}
	if c.Logger == nil {
		c.Logger = &core.NoOpLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &noopMetrics{}
	}
	return c
}

// classify applies the outcome rule for a raised error: ignore targets
// win, then the record set (empty means all) gated by the failure
// predicate. The breaker guards the predicate call against panics.
func (c *Config) classify(err error) recordedOutcome {
	if matchesAny(c.IgnoreErrors, err) {
		return recordedIgnored
	}
	if len(c.RecordErrors) > 0 && !matchesAny(c.RecordErrors, err) {
		return recordedIgnored
	}
	if !c.RecordFailurePredicate(err) {
		return recordedIgnored
	}
	return recordedFailure
}

func matchesAny(targets []error, err error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// newWindow builds the configured sliding window implementation
func newWindow(c *Config) metricsWindow {
	if c.SlidingWindowType == WindowTypeTime {
		return newTimeWindow(c.SlidingWindowSize, c.MinimumNumberOfCalls, c.Clock)
	}
	return newCountWindow(c.SlidingWindowSize, c.MinimumNumberOfCalls)
}
