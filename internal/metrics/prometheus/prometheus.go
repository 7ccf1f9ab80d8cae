package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/congo-pay/p2pcore/internal/metrics"
)

// Collector implements metrics.Collector for Prometheus.
type Collector struct {
	transitions   *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	submits       *prometheus.CounterVec
	submitLatency *prometheus.HistogramVec
	circuitState  *prometheus.GaugeVec
}

// NewCollector creates a Prometheus collector under namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_transitions_total",
				Help:      "Transfer state transitions by target state",
			},
			[]string{"state"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_outcomes_total",
				Help:      "Results delivered to observers by state and reason",
			},
			[]string{"state", "reason"},
		),
		submits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_submits_total",
				Help:      "Payment backend submissions by outcome",
			},
			[]string{"outcome"},
		),
		submitLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_submit_duration_seconds",
				Help:      "Payment backend submission latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
	}
}

// Register registers all metrics with the given registry.
func (c *Collector) Register(registry prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		c.transitions,
		c.outcomes,
		c.submits,
		c.submitLatency,
		c.circuitState,
	} {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) RecordTransition(state string) {
	c.transitions.WithLabelValues(state).Inc()
}

func (c *Collector) RecordOutcome(state, reason string) {
	c.outcomes.WithLabelValues(state, reason).Inc()
}

func (c *Collector) RecordSubmit(outcome string, duration time.Duration) {
	c.submits.WithLabelValues(outcome).Inc()
	c.submitLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(name).Set(float64(state))
}

var _ metrics.Collector = (*Collector)(nil)
