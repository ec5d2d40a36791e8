package retry

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/bulwark-go/bulwark/core"
)

// Defaults for the interval policy family
const (
	DefaultInitialInterval     = 500 * time.Millisecond
	DefaultMultiplier          = 1.5
	DefaultRandomizationFactor = 0.5

	// MinInitialInterval is the smallest accepted initial interval
	MinInitialInterval = 10 * time.Millisecond
)

// policyKind selects the wait computation of an IntervalPolicy
type policyKind int

const (
	kindConstant policyKind = iota
	kindRandomized
	kindExponential
	kindExponentialRandomized
	kindCustom
)

// IntervalPolicy maps an attempt number (1-based) to a non-negative
// wait duration. Construct one with the Of* constructors; the zero
// value is not usable.
type IntervalPolicy struct {
	kind          policyKind
	initial       time.Duration
	multiplier    float64
	randomization float64
	transform     func(time.Duration) time.Duration

	// rng guarded by mu; *rand.Rand is not safe for concurrent use
	mu  sync.Mutex
	rng *rand.Rand
}

// OfConstant returns a policy that waits the same interval for every
// attempt.
func OfConstant(initial time.Duration) (*IntervalPolicy, error) {
	if err := checkInitial(initial); err != nil {
		return nil, err
	}
	return &IntervalPolicy{kind: kindConstant, initial: initial}, nil
}

// OfRandomized returns a policy drawing uniformly from
// [initial*(1-factor), initial*(1+factor)] inclusive.
func OfRandomized(initial time.Duration, factor float64) (*IntervalPolicy, error) {
	if err := checkInitial(initial); err != nil {
		return nil, err
	}
	if err := checkRandomization(factor); err != nil {
		return nil, err
	}
	return &IntervalPolicy{
		kind:          kindRandomized,
		initial:       initial,
		randomization: factor,
		rng:           newRNG(),
	}, nil
}

// OfExponential returns a policy waiting initial*multiplier^(n-1) for
// attempt n, truncated toward zero.
func OfExponential(initial time.Duration, multiplier float64) (*IntervalPolicy, error) {
	if err := checkInitial(initial); err != nil {
		return nil, err
	}
	if err := checkMultiplier(multiplier); err != nil {
		return nil, err
	}
	return &IntervalPolicy{kind: kindExponential, initial: initial, multiplier: multiplier}, nil
}

// OfExponentialRandomized applies the randomization factor to the
// exponential interval at each attempt.
func OfExponentialRandomized(initial time.Duration, multiplier, factor float64) (*IntervalPolicy, error) {
	if err := checkInitial(initial); err != nil {
		return nil, err
	}
	if err := checkMultiplier(multiplier); err != nil {
		return nil, err
	}
	if err := checkRandomization(factor); err != nil {
		return nil, err
	}
	return &IntervalPolicy{
		kind:          kindExponentialRandomized,
		initial:       initial,
		multiplier:    multiplier,
		randomization: factor,
		rng:           newRNG(),
	}, nil
}

// OfCustom returns a policy applying fn attempt-1 times to the initial
// interval.
func OfCustom(initial time.Duration, fn func(time.Duration) time.Duration) (*IntervalPolicy, error) {
	if err := checkInitial(initial); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("custom interval function is required: %w", core.ErrInvalidArgument)
	}
	return &IntervalPolicy{kind: kindCustom, initial: initial, transform: fn}, nil
}

// Default returns the exponential-randomized policy with the library
// defaults (500ms initial, 1.5 multiplier, 0.5 randomization).
func Default() *IntervalPolicy {
	p, _ := OfExponentialRandomized(DefaultInitialInterval, DefaultMultiplier, DefaultRandomizationFactor)
	return p
}

// WithSeed makes the randomized draws reproducible. It returns the
// policy for chaining.
func (p *IntervalPolicy) WithSeed(seed int64) *IntervalPolicy {
	p.mu.Lock()
	p.rng = rand.New(rand.NewSource(seed))
	p.mu.Unlock()
	return p
}

// WaitFor computes the wait before the given attempt. Attempt numbers
// start at 1; anything lower is an invalid argument.
func (p *IntervalPolicy) WaitFor(attempt int) (time.Duration, error) {
	if attempt < 1 {
		return 0, fmt.Errorf("attempt must be at least 1, got %d: %w", attempt, core.ErrInvalidArgument)
	}

	switch p.kind {
	case kindConstant:
		return p.initial, nil

	case kindRandomized:
		return p.randomize(p.initial), nil

	case kindExponential:
		return exponential(p.initial, p.multiplier, attempt), nil

	case kindExponentialRandomized:
		return p.randomize(exponential(p.initial, p.multiplier, attempt)), nil

	case kindCustom:
		interval := p.initial
		for i := 1; i < attempt; i++ {
			interval = p.transform(interval)
		}
		if interval < 0 {
			interval = 0
		}
		return interval, nil

	default:
		return 0, fmt.Errorf("unknown interval policy kind %d: %w", int(p.kind), core.ErrInvalidArgument)
	}
}

// exponential computes initial*multiplier^(attempt-1) truncated toward
// zero.
func exponential(initial time.Duration, multiplier float64, attempt int) time.Duration {
	scaled := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if scaled > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(math.Trunc(scaled))
}

// randomize draws uniformly from [d*(1-r), d*(1+r)] inclusive
func (p *IntervalPolicy) randomize(d time.Duration) time.Duration {
	if p.randomization == 0 || d <= 0 {
		return d
	}
	delta := int64(float64(d) * p.randomization)
	if headroom := int64(math.MaxInt64) - int64(d); delta > headroom {
		// keep the upper bound representable near saturation
		delta = headroom
	}
	low := int64(d) - delta
	span := 2*delta + 1
	if span <= 0 {
		return d
	}

	p.mu.Lock()
	offset := p.rng.Int63n(span)
	p.mu.Unlock()

	return time.Duration(low + offset)
}

func newRNG() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func checkInitial(initial time.Duration) error {
	if initial < MinInitialInterval {
		return fmt.Errorf("initial interval must be at least %v, got %v: %w",
			MinInitialInterval, initial, core.ErrInvalidArgument)
	}
	return nil
}

func checkMultiplier(multiplier float64) error {
	if multiplier < 1.0 {
		return fmt.Errorf("multiplier must be at least 1.0, got %v: %w",
			multiplier, core.ErrInvalidArgument)
	}
	return nil
}

func checkRandomization(factor float64) error {
	if factor < 0.0 || factor >= 1.0 {
		return fmt.Errorf("randomization factor must be in [0.0, 1.0), got %v: %w",
			factor, core.ErrInvalidArgument)
	}
	return nil
}
