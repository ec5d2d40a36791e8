package circuitbreaker

// MetricsCollector interface for circuit breaker metrics
type MetricsCollector interface {
	RecordSuccess(name string)
	RecordFailure(name string, errorType string)
	RecordSlowCall(name string)
	RecordStateChange(name string, from, to string)
	RecordRejection(name string)
}

// noopMetrics is a no-op metrics implementation
type noopMetrics struct{}

func (n *noopMetrics) RecordSuccess(name string)                      {}
func (n *noopMetrics) RecordFailure(name string, errorType string)    {}
func (n *noopMetrics) RecordSlowCall(name string)                     {}
func (n *noopMetrics) RecordStateChange(name string, from, to string) {}
func (n *noopMetrics) RecordRejection(name string)                    {}

// stateGaugeValue maps states onto a single gauge axis for dashboards
func stateGaugeValue(state string) float64 {
	switch state {
	case "closed":
		return 0.0
	case "half-open":
		return 0.5
	case "open":
		return 1.0
	case "forced-open":
		return 2.0
	case "disabled":
		return -1.0
	default:
		return 0.0
	}
}
