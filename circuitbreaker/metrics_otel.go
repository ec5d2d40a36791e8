package circuitbreaker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsCollector implements MetricsCollector using OpenTelemetry
type OTelMetricsCollector struct {
	calls        metric.Int64Counter
	failures     metric.Int64Counter
	slowCalls    metric.Int64Counter
	stateChanges metric.Int64Counter
	currentState metric.Float64Gauge
	rejected     metric.Int64Counter
}

// NewOTelMetricsCollector creates a collector on the global meter
// provider under the bulwark/circuitbreaker scope.
func NewOTelMetricsCollector() (*OTelMetricsCollector, error) {
	meter := otel.Meter("bulwark/circuitbreaker")

	calls, err := meter.Int64Counter("circuit_breaker.calls",
		metric.WithDescription("Total circuit breaker calls"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("circuit_breaker.failures",
		metric.WithDescription("Circuit breaker failures"))
	if err != nil {
		return nil, err
	}
	slowCalls, err := meter.Int64Counter("circuit_breaker.slow_calls",
		metric.WithDescription("Calls at or above the slow call duration threshold"))
	if err != nil {
		return nil, err
	}
	stateChanges, err := meter.Int64Counter("circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state transitions"))
	if err != nil {
		return nil, err
	}
	currentState, err := meter.Float64Gauge("circuit_breaker.current_state",
		metric.WithDescription("Current circuit breaker state (0=closed, 0.5=half-open, 1=open)"))
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("circuit_breaker.rejected",
		metric.WithDescription("Requests rejected by the circuit breaker"))
	if err != nil {
		return nil, err
	}

	return &OTelMetricsCollector{
		calls:        calls,
		failures:     failures,
		slowCalls:    slowCalls,
		stateChanges: stateChanges,
		currentState: currentState,
		rejected:     rejected,
	}, nil
}

// RecordSuccess records a successful circuit breaker execution
func (o *OTelMetricsCollector) RecordSuccess(name string) {
	o.calls.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
			attribute.String("result", "success"),
		))
}

// RecordFailure records a failed circuit breaker execution
func (o *OTelMetricsCollector) RecordFailure(name string, errorType string) {
	o.calls.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
			attribute.String("result", "failure"),
		))
	o.failures.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
			attribute.String("error_type", errorType),
		))
}

// RecordSlowCall records a call that met the slow call threshold
func (o *OTelMetricsCollector) RecordSlowCall(name string) {
	o.slowCalls.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
		))
}

// RecordStateChange records a circuit breaker state transition
func (o *OTelMetricsCollector) RecordStateChange(name string, from, to string) {
	o.stateChanges.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
			attribute.String("from_state", from),
			attribute.String("to_state", to),
		))
	o.currentState.Record(context.Background(), stateGaugeValue(to),
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
		))
}

// RecordRejection records when the circuit breaker rejects a request
func (o *OTelMetricsCollector) RecordRejection(name string) {
	o.rejected.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
		))
}
