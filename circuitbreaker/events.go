package circuitbreaker

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened on a breaker
type EventType string

const (
	// EventPermitted fires when a permission is granted
	EventPermitted EventType = "permitted"
	// EventNotPermitted fires when a permission is denied
	EventNotPermitted EventType = "not_permitted"
	// EventSuccess fires when a successful outcome is recorded
	EventSuccess EventType = "success"
	// EventFailure fires when a failed outcome is recorded
	EventFailure EventType = "failure"
	// EventIgnoredError fires when a raised error is classified as ignored
	EventIgnoredError EventType = "ignored_error"
	// EventStateTransition fires on every state change
	EventStateTransition EventType = "state_transition"
	// EventReset fires when the breaker is reset
	EventReset EventType = "reset"
)

// Event is a single observation published to registered consumers
type Event struct {
	// ID is a unique correlation id for the event
	ID string

	// Type identifies the event
	Type EventType

	// Breaker is the name of the emitting instance
	Breaker string

	// Time is the instant of the event per the breaker's clock
	Time time.Time

	// From and To are set for state transitions
	From State
	To   State

	// Elapsed is the measured call duration for outcome events
	Elapsed time.Duration

	// Err is the raised error for failure and ignored-error events
	Err error
}

// EventConsumer receives breaker events. Consumers run synchronously
// on the reporting goroutine and must not block; panics are recovered
// and logged.
type EventConsumer func(Event)

func newEvent(t EventType, breaker string, at time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    t,
		Breaker: breaker,
		Time:    at,
	}
}
