package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestResilienceErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *ResilienceError
		expected string
	}{
		{
			name: "op with wrapped error",
			err: &ResilienceError{
				Op:  "circuitbreaker.AcquirePermission",
				Err: ErrCallNotPermitted,
			},
			expected: "circuitbreaker.AcquirePermission: call not permitted",
		},
		{
			name: "op with id and wrapped error",
			err: &ResilienceError{
				Op:  "registry.Breaker",
				ID:  "payments",
				Err: ErrConfigurationNotFound,
			},
			expected: "registry.Breaker [payments]: configuration not found",
		},
		{
			name: "message only",
			err: &ResilienceError{
				Message: "something specific happened",
			},
			expected: "something specific happened",
		},
		{
			name: "kind fallback",
			err: &ResilienceError{
				Kind: "config",
			},
			expected: "config error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestResilienceErrorUnwrap(t *testing.T) {
	err := NewResilienceError("retry.Do", "retry", ErrMaxRetriesExceeded)
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("Expected errors.Is to see through the wrapper")
	}
}

func TestClassificationHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"invalid argument direct", ErrInvalidArgument, IsInvalidArgument, true},
		{"invalid argument wrapped", fmt.Errorf("field x: %w", ErrInvalidArgument), IsInvalidArgument, true},
		{"invalid configuration counts as invalid argument", ErrInvalidConfiguration, IsInvalidArgument, true},
		{"configuration not found", fmt.Errorf("no config: %w", ErrConfigurationNotFound), IsConfigurationNotFound, true},
		{"call not permitted", fmt.Errorf("denied: %w", ErrCallNotPermitted), IsCallNotPermitted, true},
		{"unrelated error", errors.New("boom"), IsInvalidArgument, false},
		{"nil error", nil, IsCallNotPermitted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
