package circuitbreaker

import (
	"sync"
	"time"

	"github.com/bulwark-go/bulwark/core"
)

// callOutcome tags a single recorded call. A slow failure contributes
// to both the slow and the failed numerators.
type callOutcome int

const (
	outcomeSuccess callOutcome = iota
	outcomeSlowSuccess
	outcomeFailure
	outcomeSlowFailure
)

func outcomeFor(failed, slow bool) callOutcome {
	switch {
	case failed && slow:
		return outcomeSlowFailure
	case failed:
		return outcomeFailure
	case slow:
		return outcomeSlowSuccess
	default:
		return outcomeSuccess
	}
}

// sample is one recorded call held by the count-based window
type sample struct {
	outcome callOutcome
	elapsed time.Duration
}

// aggregate maintains the incremental sums over the live window so
// snapshots never iterate the samples.
type aggregate struct {
	total         int
	slow          int
	failed        int
	slowFailed    int
	totalDuration time.Duration
}

func (a *aggregate) add(o callOutcome, elapsed time.Duration) {
	a.total++
	a.totalDuration += elapsed
	switch o {
	case outcomeSlowSuccess:
		a.slow++
	case outcomeFailure:
		a.failed++
	case outcomeSlowFailure:
		a.slow++
		a.failed++
		a.slowFailed++
	}
}

func (a *aggregate) remove(o callOutcome, elapsed time.Duration) {
	a.total--
	a.totalDuration -= elapsed
	switch o {
	case outcomeSlowSuccess:
		a.slow--
	case outcomeFailure:
		a.failed--
	case outcomeSlowFailure:
		a.slow--
		a.failed--
		a.slowFailed--
	}
}

func (a *aggregate) subtract(other aggregate) {
	a.total -= other.total
	a.slow -= other.slow
	a.failed -= other.failed
	a.slowFailed -= other.slowFailed
	a.totalDuration -= other.totalDuration
}

// snapshot converts the aggregate to the public view. Rates are whole
// percentages truncated toward zero; below minimumCalls they are
// RateUndefined so they cannot trigger a transition.
func (a aggregate) snapshot(minimumCalls int) Snapshot {
	s := Snapshot{
		TotalCalls:      a.total,
		SlowCalls:       a.slow,
		FailedCalls:     a.failed,
		SlowFailedCalls: a.slowFailed,
		TotalDuration:   a.totalDuration,
		FailureRate:     RateUndefined,
		SlowCallRate:    RateUndefined,
	}
	if a.total >= minimumCalls && a.total > 0 {
		s.FailureRate = float64(100 * a.failed / a.total)
		s.SlowCallRate = float64(100 * a.slow / a.total)
	}
	return s
}

// metricsWindow is the bounded aggregator behind a circuit breaker.
// record atomically updates and returns the resulting snapshot so the
// caller that crosses a threshold observes the crossing itself.
type metricsWindow interface {
	record(o callOutcome, elapsed time.Duration) Snapshot
	snapshot() Snapshot
	reset()
}

// countWindow keeps the last N outcomes in a ring buffer. On insertion
// at a full buffer the evicted sample's contribution is subtracted
// before the new one is added, keeping snapshots O(1).
type countWindow struct {
	mu           sync.Mutex
	samples      []sample
	head         int // next write position
	size         int // number of live samples, up to len(samples)
	agg          aggregate
	minimumCalls int
}

func newCountWindow(windowSize, minimumCalls int) *countWindow {
	return &countWindow{
		samples:      make([]sample, windowSize),
		minimumCalls: minimumCalls,
	}
}

func (w *countWindow) record(o callOutcome, elapsed time.Duration) Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size == len(w.samples) {
		evicted := w.samples[w.head]
		w.agg.remove(evicted.outcome, evicted.elapsed)
	} else {
		w.size++
	}
	w.samples[w.head] = sample{outcome: o, elapsed: elapsed}
	w.head = (w.head + 1) % len(w.samples)
	w.agg.add(o, elapsed)

	return w.agg.snapshot(w.minimumCalls)
}

func (w *countWindow) snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.agg.snapshot(w.minimumCalls)
}

func (w *countWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.samples {
		w.samples[i] = sample{}
	}
	w.head = 0
	w.size = 0
	w.agg = aggregate{}
}

// timeBucket accumulates the outcomes of a single wall-clock second
type timeBucket struct {
	epochSecond int64
	agg         aggregate
}

// timeWindow keeps one bucket per second over the configured span.
// Buckets older than the span are subtracted from the running
// aggregate before any accumulation or read.
type timeWindow struct {
	mu           sync.Mutex
	clock        core.Clock
	buckets      []timeBucket
	agg          aggregate
	spanSeconds  int64
	minimumCalls int
}

func newTimeWindow(windowSeconds, minimumCalls int, clock core.Clock) *timeWindow {
	return &timeWindow{
		clock:        clock,
		buckets:      make([]timeBucket, windowSeconds),
		spanSeconds:  int64(windowSeconds),
		minimumCalls: minimumCalls,
	}
}

func (w *timeWindow) record(o callOutcome, elapsed time.Duration) Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now().Unix()
	w.expireLocked(now)

	b := &w.buckets[now%w.spanSeconds]
	if b.epochSecond != now {
		// Any survivor at this index is a full span old and was
		// dropped by expireLocked; claim the slot for this second.
		b.epochSecond = now
		b.agg = aggregate{}
	}
	b.agg.add(o, elapsed)
	w.agg.add(o, elapsed)

	return w.agg.snapshot(w.minimumCalls)
}

func (w *timeWindow) snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.expireLocked(w.clock.Now().Unix())
	return w.agg.snapshot(w.minimumCalls)
}

func (w *timeWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.buckets {
		w.buckets[i] = timeBucket{}
	}
	w.agg = aggregate{}
}

func (w *timeWindow) expireLocked(now int64) {
	for i := range w.buckets {
		b := &w.buckets[i]
		if b.agg.total == 0 && b.epochSecond == 0 {
			continue
		}
		if now-b.epochSecond >= w.spanSeconds {
			w.agg.subtract(b.agg)
			*b = timeBucket{}
		}
	}
}
