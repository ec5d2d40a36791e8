package circuitbreaker

import "time"

// RateUndefined is reported for FailureRate and SlowCallRate while the
// window holds fewer than MinimumNumberOfCalls outcomes. Undefined
// rates never trigger a state transition.
const RateUndefined = float64(-1)

// Snapshot is a consistent view of the sliding window aggregate.
type Snapshot struct {
	TotalCalls      int
	SlowCalls       int
	FailedCalls     int
	SlowFailedCalls int

	// FailureRate and SlowCallRate are whole percentages truncated
	// toward zero, or RateUndefined below the minimum call count.
	FailureRate  float64
	SlowCallRate float64

	// TotalDuration accumulates the elapsed time of every recorded call
	TotalDuration time.Duration

	// NotPermittedCalls counts acquisitions denied by OPEN or
	// FORCED_OPEN. Populated by CircuitBreaker.Metrics, not the window.
	NotPermittedCalls uint64
}

// RatesDefined reports whether the window has seen enough calls for
// the rate thresholds to apply.
func (s Snapshot) RatesDefined() bool {
	return s.FailureRate != RateUndefined
}
