package metrics

import "time"

// Collector records transfer lifecycle and backend call metrics.
// Implementations can export metrics to various backends (Prometheus, StatsD, etc.).
type Collector interface {
	// Lifecycle
	RecordTransition(state string)
	RecordOutcome(state, reason string)

	// Backend submission
	RecordSubmit(outcome string, duration time.Duration)

	// Circuit breaker
	RecordCircuitState(name string, state CircuitState)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the backend has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Submit outcomes passed to RecordSubmit.
const (
	SubmitOK        = "ok"
	SubmitTransient = "transient"
	SubmitFailed    = "failed"
)

// NoOpCollector discards everything.
type NoOpCollector struct{}

func (NoOpCollector) RecordTransition(string)                 {}
func (NoOpCollector) RecordOutcome(string, string)            {}
func (NoOpCollector) RecordSubmit(string, time.Duration)      {}
func (NoOpCollector) RecordCircuitState(string, CircuitState) {}
