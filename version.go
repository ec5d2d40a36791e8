// Package bulwark provides resilience primitives for Go services: a
// circuit breaker with sliding-window call metrics and a family of
// retry interval policies. The implementation lives in the
// circuitbreaker and retry packages; the core package carries the
// shared logging, error, and time abstractions.
package bulwark

// Version is the current release of the bulwark library.
const Version = "0.3.0"
