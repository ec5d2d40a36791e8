// Package circuitbreaker implements a concurrent circuit breaker
// state machine over a sliding window of call outcomes.
//
// A breaker hands out permissions and collects the outcome of each
// permitted call:
//
//	cb, err := circuitbreaker.New(circuitbreaker.DefaultConfig())
//	perm, err := cb.AcquirePermission()
//	if err != nil {
//	    return err // CallNotPermittedError
//	}
//	start := time.Now()
//	callErr := doWork()
//	if callErr != nil {
//	    cb.OnError(time.Since(start), callErr, perm)
//	    return callErr
//	}
//	cb.OnSuccess(time.Since(start), perm)
//
// Execute wraps the same sequence for the common case. The failure
// and slow-call rates computed over the window drive the transitions
// between the closed, open, and half-open states; the disabled and
// forced-open states are reached only through the administrative
// TransitionTo methods.
package circuitbreaker
