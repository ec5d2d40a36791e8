package circuitbreaker

import (
	"github.com/bulwark-go/bulwark/core"
)

// Dependencies holds optional collaborators injected at creation
type Dependencies struct {
	Logger    core.Logger
	Metrics   MetricsCollector
	Clock     core.Clock
	Scheduler core.Scheduler
}

// Create builds a circuit breaker with proper dependency injection.
// Missing dependencies fall back to production defaults: a JSON
// logger, the system clock, the timer scheduler, and no-op metrics.
func Create(name string, deps Dependencies) (*CircuitBreaker, error) {
	config := DefaultConfig()
	config.Name = name

	if deps.Logger != nil {
		config.Logger = deps.Logger
	} else {
		config.Logger = core.NewProductionLogger(
			core.LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			"circuit-breaker",
		)
	}
	if cal, ok := config.Logger.(core.ComponentAwareLogger); ok {
		config.Logger = cal.WithComponent("bulwark/circuitbreaker")
	}

	if deps.Metrics != nil {
		config.Metrics = deps.Metrics
	}
	if deps.Clock != nil {
		config.Clock = deps.Clock
	}
	if deps.Scheduler != nil {
		config.Scheduler = deps.Scheduler
	}

	config.Logger.Info("Creating circuit breaker", map[string]interface{}{
		"operation":              "circuit_breaker_creation",
		"name":                   name,
		"failure_rate_threshold": config.FailureRateThreshold,
		"minimum_calls":          config.MinimumNumberOfCalls,
	})

	return New(config)
}

// WithLogger creates a dependency injection option
func WithLogger(logger core.Logger) func(*Dependencies) {
	return func(d *Dependencies) {
		d.Logger = logger
	}
}

// WithMetrics creates a dependency injection option
func WithMetrics(metrics MetricsCollector) func(*Dependencies) {
	return func(d *Dependencies) {
		d.Metrics = metrics
	}
}
