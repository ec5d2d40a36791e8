package circuitbreaker

import (
	"fmt"

	"github.com/bulwark-go/bulwark/core"
)

// CallNotPermittedError is returned by AcquirePermission when the
// breaker denies a call. It unwraps to core.ErrCallNotPermitted so
// callers can branch with errors.Is without importing this type.
type CallNotPermittedError struct {
	// Breaker is the name of the denying instance
	Breaker string

	// State is the breaker state at denial time
	State State

	// WritableStackTrace mirrors the config flag. Go errors carry no
	// stack capture, so this is a pure advisory payload field.
	WritableStackTrace bool
}

func (e *CallNotPermittedError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s and does not permit further calls",
		e.Breaker, e.State)
}

func (e *CallNotPermittedError) Unwrap() error {
	return core.ErrCallNotPermitted
}
