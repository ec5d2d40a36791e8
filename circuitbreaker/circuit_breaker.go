package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bulwark-go/bulwark/core"
)

// Permission grants one caller the right to execute a protected
// operation. It must be returned via OnSuccess, OnError, or
// ReleasePermission. The zero Permission is never granted.
type Permission struct {
	generation uint64
	state      State
	recording  bool
}

// Generation returns the breaker generation at grant time
func (p Permission) Generation() uint64 {
	return p.generation
}

// CircuitBreaker is a concurrent state machine over a sliding window
// of call outcomes. A single instance serves many goroutines; all
// operations complete without blocking beyond a short critical section.
type CircuitBreaker struct {
	name   string
	config *Config

	clock     core.Clock
	scheduler core.Scheduler
	logger    core.Logger
	metrics   MetricsCollector

	// mu guards state, generation, openExpiry, the window swap, and
	// the scheduled auto-transition. Held only for short sections so
	// the outcome that crosses a threshold performs the transition
	// before any later report observes the window.
	mu         sync.Mutex
	state      State
	generation uint64
	window     metricsWindow
	openExpiry time.Time
	cancelAuto func()

	// Half-open permit accounting. outstanding are granted-but-
	// unresolved permits; resolved counts reported outcomes. Their sum
	// never exceeds PermittedNumberOfCallsInHalfOpen.
	halfOpenOutstanding atomic.Int32
	halfOpenResolved    atomic.Int32

	notPermitted atomic.Uint64

	consumerMu sync.RWMutex
	consumers  []EventConsumer
}

// New creates a circuit breaker from the given config. A nil config
// uses DefaultConfig. The breaker starts closed.
func New(config *Config) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if config.Logger != nil {
		config.Logger.Debug("Validating circuit breaker configuration", map[string]interface{}{
			"operation":              "circuit_breaker_validation",
			"name":                   config.Name,
			"failure_rate_threshold": config.FailureRateThreshold,
			"minimum_calls":          config.MinimumNumberOfCalls,
			"wait_duration":          config.WaitDurationInOpenState.String(),
		})
	}

	if err := config.Validate(); err != nil {
		if config.Logger != nil {
			config.Logger.Error("Circuit breaker configuration validation failed", map[string]interface{}{
				"operation": "circuit_breaker_validation_failed",
				"name":      config.Name,
				"error":     err.Error(),
			})
		}
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}

	config.withDefaults()

	cb := &CircuitBreaker{
		name:      config.Name,
		config:    config,
		clock:     config.Clock,
		scheduler: config.Scheduler,
		logger:    config.Logger,
		metrics:   config.Metrics,
		state:     StateClosed,
	}
	cb.window = newWindow(config)

	cb.logger.Info("Circuit breaker created", map[string]interface{}{
		"operation":                "circuit_breaker_created",
		"name":                     cb.name,
		"failure_rate_threshold":   config.FailureRateThreshold,
		"slow_call_rate_threshold": config.SlowCallRateThreshold,
		"sliding_window_type":      config.SlidingWindowType.String(),
		"sliding_window_size":      config.SlidingWindowSize,
		"minimum_calls":            config.MinimumNumberOfCalls,
		"permitted_in_half_open":   config.PermittedNumberOfCallsInHalfOpen,
	})

	return cb, nil
}

// SetLogger sets the logger provider. The component is set to
// "bulwark/circuitbreaker" when the logger is component-aware.
func (cb *CircuitBreaker) SetLogger(logger core.Logger) {
	if logger == nil {
		cb.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		cb.logger = cal.WithComponent("bulwark/circuitbreaker")
	} else {
		cb.logger = logger
	}
}

// Name returns the instance name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Generation returns the current state generation
func (cb *CircuitBreaker) Generation() uint64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.generation
}

// Metrics returns a consistent snapshot of the window aggregate plus
// the denied-call counter.
func (cb *CircuitBreaker) Metrics() Snapshot {
	cb.mu.Lock()
	w := cb.window
	cb.mu.Unlock()

	snap := w.snapshot()
	snap.NotPermittedCalls = cb.notPermitted.Load()
	return snap
}

// AddEventConsumer registers a consumer for breaker events
func (cb *CircuitBreaker) AddEventConsumer(consumer EventConsumer) {
	cb.consumerMu.Lock()
	cb.consumers = append(cb.consumers, consumer)
	cb.consumerMu.Unlock()
}

// AcquirePermission grants a permission token or returns a
// CallNotPermittedError. A breaker past its open expiry transitions to
// half-open on the acquiring goroutine before the grant decision.
func (cb *CircuitBreaker) AcquirePermission() (Permission, error) {
	var pending []Event

	cb.mu.Lock()

	if cb.state == StateOpen && !cb.clock.Now().Before(cb.openExpiry) {
		// Lazy transition at expiry; the acquirer gets the first permit.
		if ev, ok := cb.transitionLocked(StateHalfOpen); ok {
			pending = append(pending, ev)
		}
	}

	var perm Permission
	var denied *CallNotPermittedError

	switch cb.state {
	case StateDisabled:
		perm = Permission{generation: cb.generation, state: StateDisabled}

	case StateClosed:
		perm = Permission{generation: cb.generation, state: StateClosed, recording: true}

	case StateHalfOpen:
		granted := false
		for {
			outstanding := cb.halfOpenOutstanding.Load()
			resolved := cb.halfOpenResolved.Load()
			if int(outstanding)+int(resolved) >= cb.config.PermittedNumberOfCallsInHalfOpen {
				break
			}
			if cb.halfOpenOutstanding.CompareAndSwap(outstanding, outstanding+1) {
				granted = true
				break
			}
		}
		if granted {
			perm = Permission{generation: cb.generation, state: StateHalfOpen, recording: true}
		} else {
			denied = &CallNotPermittedError{
				Breaker:            cb.name,
				State:              cb.state,
				WritableStackTrace: cb.config.WritableStackTraceEnabled,
			}
		}

	case StateOpen, StateForcedOpen:
		cb.notPermitted.Add(1)
		denied = &CallNotPermittedError{
			Breaker:            cb.name,
			State:              cb.state,
			WritableStackTrace: cb.config.WritableStackTraceEnabled,
		}
	}

	now := cb.clock.Now()
	state := cb.state
	cb.mu.Unlock()

	if denied != nil {
		cb.logger.Debug("Circuit breaker denied permission", map[string]interface{}{
			"operation": "circuit_breaker_deny",
			"name":      cb.name,
			"state":     state.String(),
		})
		cb.metrics.RecordRejection(cb.name)
		pending = append(pending, newEvent(EventNotPermitted, cb.name, now))
		cb.publish(pending...)
		return Permission{}, denied
	}

	pending = append(pending, newEvent(EventPermitted, cb.name, now))
	cb.publish(pending...)
	return perm, nil
}

// ReleasePermission returns an unused permit without recording an
// outcome. It is the cancellation path for a caller that acquired a
// permission and then decided not to execute.
func (cb *CircuitBreaker) ReleasePermission(perm Permission) {
	cb.mu.Lock()
	if perm.generation == cb.generation && perm.state == StateHalfOpen {
		cb.halfOpenOutstanding.Add(-1)
	}
	cb.mu.Unlock()
}

// OnSuccess records a successful call outcome and re-evaluates the
// transition predicate.
func (cb *CircuitBreaker) OnSuccess(elapsed time.Duration, perm Permission) {
	cb.recordOutcome(perm, elapsed, false, nil)
}

// OnError classifies the raised error per the config rule, records the
// outcome, and re-evaluates the transition predicate. Ignored errors
// release the permit without touching the window.
func (cb *CircuitBreaker) OnError(elapsed time.Duration, err error, perm Permission) {
	if cb.classifySafe(err) == recordedIgnored {
		cb.ReleasePermission(perm)
		cb.logger.Debug("Error ignored by classification", map[string]interface{}{
			"operation": "error_classification",
			"name":      cb.name,
			"error":     errString(err),
		})
		ev := newEvent(EventIgnoredError, cb.name, cb.clock.Now())
		ev.Elapsed = elapsed
		ev.Err = err
		cb.publish(ev)
		return
	}
	cb.recordOutcome(perm, elapsed, true, err)
}

// classifySafe applies the config classification with a panic guard:
// a panicking user predicate means "do not record as failure".
func (cb *CircuitBreaker) classifySafe(err error) (outcome recordedOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = recordedIgnored
			cb.logger.Error("Failure predicate panicked", map[string]interface{}{
				"operation": "error_classification_panic",
				"name":      cb.name,
				"panic":     fmt.Sprintf("%v", r),
				"error":     errString(err),
			})
		}
	}()
	return cb.config.classify(err)
}

// recordOutcome forwards one outcome to the window and applies the
// transition table. Outcomes reported under a stale generation are
// discarded so a late report from a prior window cannot trigger a
// premature transition.
func (cb *CircuitBreaker) recordOutcome(perm Permission, elapsed time.Duration, failed bool, err error) {
	var pending []Event

	cb.mu.Lock()

	if perm.generation != cb.generation {
		cb.mu.Unlock()
		cb.logger.Debug("Discarding outcome from stale generation", map[string]interface{}{
			"operation":          "stale_outcome_discarded",
			"name":               cb.name,
			"permission_gen":     perm.generation,
			"current_generation": cb.generation,
		})
		return
	}
	if !perm.recording {
		// Disabled grants never record
		cb.mu.Unlock()
		return
	}

	slow := elapsed >= cb.config.SlowCallDurationThreshold
	snap := cb.window.record(outcomeFor(failed, slow), elapsed)

	switch cb.state {
	case StateClosed:
		if cb.thresholdsExceeded(snap) {
			if ev, ok := cb.transitionLocked(StateOpen); ok {
				pending = append(pending, ev)
			}
		}

	case StateHalfOpen:
		if perm.state == StateHalfOpen {
			cb.halfOpenOutstanding.Add(-1)
			resolved := cb.halfOpenResolved.Add(1)
			// The caller reporting the last permitted outcome makes
			// the decision.
			if int(resolved) >= cb.config.PermittedNumberOfCallsInHalfOpen {
				target := StateClosed
				if cb.thresholdsExceeded(snap) {
					target = StateOpen
				}
				if ev, ok := cb.transitionLocked(target); ok {
					pending = append(pending, ev)
				}
			}
		}
	}

	now := cb.clock.Now()
	cb.mu.Unlock()

	if failed {
		cb.metrics.RecordFailure(cb.name, errorType(err))
		ev := newEvent(EventFailure, cb.name, now)
		ev.Elapsed = elapsed
		ev.Err = err
		pending = append(pending, ev)
	} else {
		cb.metrics.RecordSuccess(cb.name)
		ev := newEvent(EventSuccess, cb.name, now)
		ev.Elapsed = elapsed
		pending = append(pending, ev)
	}
	if slow {
		cb.metrics.RecordSlowCall(cb.name)
	}
	cb.publish(pending...)
}

// thresholdsExceeded evaluates the transition predicate. Undefined
// rates never trigger; thresholds are inclusive; the failure rate is
// checked before the slow call rate.
func (cb *CircuitBreaker) thresholdsExceeded(snap Snapshot) bool {
	if snap.FailureRate != RateUndefined && snap.FailureRate >= cb.config.FailureRateThreshold {
		return true
	}
	if snap.SlowCallRate != RateUndefined && snap.SlowCallRate >= cb.config.SlowCallRateThreshold {
		return true
	}
	return false
}

// transitionLocked changes state (must be called with mu held). It
// increments the generation, resets the window where the target state
// demands it, arms or cancels the automatic transition, and returns
// the transition event for publication after unlock. Same-state
// transitions are idempotent and emit nothing.
func (cb *CircuitBreaker) transitionLocked(to State) (Event, bool) {
	from := cb.state
	if from == to {
		return Event{}, false
	}

	cb.state = to
	cb.generation++

	// Any scheduled callback belongs to a previous generation now.
	if cb.cancelAuto != nil {
		cb.cancelAuto()
		cb.cancelAuto = nil
	}

	switch to {
	case StateClosed:
		cb.window = newWindow(cb.config)
	case StateHalfOpen:
		// The trial window sizes to the permitted call count so the
		// rates are defined exactly when the last outcome arrives.
		permitted := cb.config.PermittedNumberOfCallsInHalfOpen
		cb.window = newCountWindow(permitted, permitted)
		cb.halfOpenOutstanding.Store(0)
		cb.halfOpenResolved.Store(0)
	}

	if to == StateOpen {
		cb.openExpiry = cb.clock.Now().Add(cb.config.WaitDurationInOpenState)
		if cb.config.AutomaticTransitionFromOpenToHalfOpenEnabled && cb.scheduler != nil {
			gen := cb.generation
			cb.cancelAuto = cb.scheduler.Schedule(cb.config.WaitDurationInOpenState, func() {
				cb.autoTransitionToHalfOpen(gen)
			})
		}
	}

	cb.logger.Info("Circuit breaker state changed", map[string]interface{}{
		"operation":  "circuit_breaker_transition",
		"name":       cb.name,
		"from":       from.String(),
		"to":         to.String(),
		"generation": cb.generation,
	})
	cb.metrics.RecordStateChange(cb.name, from.String(), to.String())

	ev := newEvent(EventStateTransition, cb.name, cb.clock.Now())
	ev.From = from
	ev.To = to
	return ev, true
}

// autoTransitionToHalfOpen is the scheduler callback armed on entry to
// open. The generation guard makes stale callbacks harmless even if
// the scheduler fires after cancellation.
func (cb *CircuitBreaker) autoTransitionToHalfOpen(gen uint64) {
	cb.mu.Lock()
	if cb.state != StateOpen || cb.generation != gen {
		cb.mu.Unlock()
		return
	}
	ev, ok := cb.transitionLocked(StateHalfOpen)
	cb.mu.Unlock()
	if ok {
		cb.publish(ev)
	}
}

// TransitionToClosed administratively closes the breaker
func (cb *CircuitBreaker) TransitionToClosed() {
	cb.adminTransition(StateClosed)
}

// TransitionToOpen administratively opens the breaker with a fresh
// wait duration
func (cb *CircuitBreaker) TransitionToOpen() {
	cb.adminTransition(StateOpen)
}

// TransitionToHalfOpen administratively moves the breaker to half-open
func (cb *CircuitBreaker) TransitionToHalfOpen() {
	cb.adminTransition(StateHalfOpen)
}

// TransitionToDisabled stops the breaker from denying or recording
func (cb *CircuitBreaker) TransitionToDisabled() {
	cb.adminTransition(StateDisabled)
}

// TransitionToForcedOpen makes the breaker deny every call until an
// explicit admin transition
func (cb *CircuitBreaker) TransitionToForcedOpen() {
	cb.adminTransition(StateForcedOpen)
}

func (cb *CircuitBreaker) adminTransition(to State) {
	cb.mu.Lock()
	ev, ok := cb.transitionLocked(to)
	cb.mu.Unlock()
	if ok {
		cb.publish(ev)
	}
}

// Reset returns the breaker to closed with an empty window and a new
// generation.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	previous := cb.state
	ev, transitioned := cb.transitionLocked(StateClosed)
	if !transitioned {
		// Already closed: still drop observations and fence off
		// in-flight permissions.
		cb.window.reset()
		cb.generation++
	}
	now := cb.clock.Now()
	cb.mu.Unlock()

	cb.logger.Info("Circuit breaker reset", map[string]interface{}{
		"operation":      "circuit_breaker_reset",
		"name":           cb.name,
		"previous_state": previous.String(),
	})

	reset := newEvent(EventReset, cb.name, now)
	if transitioned {
		cb.publish(ev, reset)
	} else {
		cb.publish(reset)
	}
}

// Execute wraps fn with acquire/record. The breaker records the
// outcome and re-raises the caller's error unchanged, preserving cause.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	perm, err := cb.AcquirePermission()
	if err != nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		cb.ReleasePermission(perm)
		return ctxErr
	}

	start := cb.clock.Now()
	callErr := fn()
	elapsed := cb.clock.Now().Sub(start)

	if callErr != nil {
		cb.OnError(elapsed, callErr, perm)
		return callErr
	}
	cb.OnSuccess(elapsed, perm)
	return nil
}

// publish delivers events synchronously to registered consumers,
// recovering from consumer panics.
func (cb *CircuitBreaker) publish(events ...Event) {
	cb.consumerMu.RLock()
	consumers := cb.consumers
	cb.consumerMu.RUnlock()

	if len(consumers) == 0 {
		return
	}
	for _, ev := range events {
		for _, consumer := range consumers {
			func() {
				defer func() {
					if r := recover(); r != nil {
						cb.logger.Error("Event consumer panicked", map[string]interface{}{
							"operation":  "event_consumer_panic",
							"name":       cb.name,
							"event_type": string(ev.Type),
							"panic":      fmt.Sprintf("%v", r),
						})
					}
				}()
				consumer(ev)
			}()
		}
	}
}

// errorType names an error for metrics labels without allocating for
// the well-known cases.
func errorType(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "DeadlineExceeded"
	}
	if errors.Is(err, context.Canceled) {
		return "Canceled"
	}
	return fmt.Sprintf("%T", err)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
