package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transition outcomes recorded by LifecycleMetrics.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// LifecycleMetrics records ledger transitions and counter reconciliation.
type LifecycleMetrics struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	drift       *prometheus.CounterVec
}

// NewLifecycleMetrics registers the lifecycle metrics on the provided registerer.
func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	if reg == nil {
		return &LifecycleMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alumnet_ledger_transitions_total",
		Help: "Ledger transitions by kind, action and outcome.",
	}, []string{"kind", "action", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alumnet_ledger_transition_duration_seconds",
		Help:    "Time spent applying a ledger transition, lock wait included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	drift := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alumnet_counter_drift_total",
		Help: "Capacity counters found out of step with their ledgers.",
	}, []string{"kind"})
	reg.MustRegister(transitions, duration, drift)
	return &LifecycleMetrics{
		transitions: transitions,
		duration:    duration,
		drift:       drift,
	}
}

// ObserveTransition records one attempted transition.
func (m *LifecycleMetrics) ObserveTransition(kind, action, outcome string, elapsed time.Duration) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(kind), normalizeLabel(action), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(kind)).Observe(elapsed.Seconds())
}

// IncDrift counts a counter whose stored value disagreed with its ledgers.
func (m *LifecycleMetrics) IncDrift(kind string) {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.WithLabelValues(normalizeLabel(kind)).Inc()
}
