package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector on a
// Prometheus registerer.
type PrometheusMetricsCollector struct {
	calls        *prometheus.CounterVec
	failures     *prometheus.CounterVec
	slowCalls    *prometheus.CounterVec
	stateChanges *prometheus.CounterVec
	currentState *prometheus.GaugeVec
	rejects      *prometheus.CounterVec
}

// NewPrometheusMetricsCollector creates and registers all collectors
// with the given registerer.
func NewPrometheusMetricsCollector(reg prometheus.Registerer) *PrometheusMetricsCollector {
	m := &PrometheusMetricsCollector{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulwark",
			Name:      "circuit_breaker_calls_total",
			Help:      "Total circuit breaker calls by result.",
		}, []string{"name", "result"}),

		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulwark",
			Name:      "circuit_breaker_failures_total",
			Help:      "Circuit breaker failures by error type.",
		}, []string{"name", "error_type"}),

		slowCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulwark",
			Name:      "circuit_breaker_slow_calls_total",
			Help:      "Calls at or above the slow call duration threshold.",
		}, []string{"name"}),

		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulwark",
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"name", "from_state", "to_state"}),

		currentState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bulwark",
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state (0=closed, 0.5=half-open, 1=open).",
		}, []string{"name"}),

		rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulwark",
			Name:      "circuit_breaker_rejects_total",
			Help:      "Total requests rejected by the circuit breaker.",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.calls,
		m.failures,
		m.slowCalls,
		m.stateChanges,
		m.currentState,
		m.rejects,
	)

	return m
}

// RecordSuccess records a successful circuit breaker execution
func (m *PrometheusMetricsCollector) RecordSuccess(name string) {
	m.calls.WithLabelValues(name, "success").Inc()
}

// RecordFailure records a failed circuit breaker execution
func (m *PrometheusMetricsCollector) RecordFailure(name string, errorType string) {
	m.calls.WithLabelValues(name, "failure").Inc()
	m.failures.WithLabelValues(name, errorType).Inc()
}

// RecordSlowCall records a call that met the slow call threshold
func (m *PrometheusMetricsCollector) RecordSlowCall(name string) {
	m.slowCalls.WithLabelValues(name).Inc()
}

// RecordStateChange records a circuit breaker state transition
func (m *PrometheusMetricsCollector) RecordStateChange(name string, from, to string) {
	m.stateChanges.WithLabelValues(name, from, to).Inc()
	m.currentState.WithLabelValues(name).Set(stateGaugeValue(to))
}

// RecordRejection records when the circuit breaker rejects a request
func (m *PrometheusMetricsCollector) RecordRejection(name string) {
	m.rejects.WithLabelValues(name).Inc()
}
