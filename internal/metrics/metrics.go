// Package metrics provides Prometheus metrics for session execution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	InvocationsTotal *prometheus.CounterVec
	InvokeDuration   *prometheus.HistogramVec
	FailoversTotal   prometheus.Counter
	DegradedTotal    *prometheus.CounterVec
	BreakerOpens     *prometheus.CounterVec
	PhasesTotal      *prometheus.CounterVec
	PhaseDuration    *prometheus.HistogramVec
	MilestonesTotal  *prometheus.CounterVec
	WorkersActive    prometheus.Gauge
	SessionProgress  prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gantry_model_invocations_total",
				Help: "Total model invocations by role, model and outcome.",
			},
			[]string{"role", "model", "outcome"},
		),
		InvokeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gantry_model_invoke_duration_seconds",
				Help:    "Model invocation duration by role.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"role"},
		),
		FailoversTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gantry_failovers_total",
				Help: "Total times execution moved past a failed model candidate.",
			},
		),
		DegradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gantry_degraded_results_total",
				Help: "Total degraded fallback results by role.",
			},
			[]string{"role"},
		),
		BreakerOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gantry_breaker_opens_total",
				Help: "Total circuit breaker openings by model.",
			},
			[]string{"model"},
		),
		PhasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gantry_phases_total",
				Help: "Total phase handler invocations by phase and outcome.",
			},
			[]string{"phase", "outcome"},
		),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gantry_phase_duration_seconds",
				Help:    "Phase handler duration by phase.",
				Buckets: []float64{1, 10, 30, 60, 300, 600, 1800, 3600},
			},
			[]string{"phase"},
		),
		MilestonesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gantry_milestones_total",
				Help: "Total milestone runs by outcome (accepted, partial, rollback, conflict).",
			},
			[]string{"outcome"},
		),
		WorkersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gantry_workers_active",
				Help: "Coder workers currently running.",
			},
		),
		SessionProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gantry_session_progress",
				Help: "Progress of the running session, 0 to 100.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.InvocationsTotal)
	reg.MustRegister(m.InvokeDuration)
	reg.MustRegister(m.FailoversTotal)
	reg.MustRegister(m.DegradedTotal)
	reg.MustRegister(m.BreakerOpens)
	reg.MustRegister(m.PhasesTotal)
	reg.MustRegister(m.PhaseDuration)
	reg.MustRegister(m.MilestonesTotal)
	reg.MustRegister(m.WorkersActive)
	reg.MustRegister(m.SessionProgress)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordInvocation increments the invocation counter and duration.
func (m *Metrics) RecordInvocation(role, model, outcome string, seconds float64) {
	m.InvocationsTotal.WithLabelValues(role, model, outcome).Inc()
	m.InvokeDuration.WithLabelValues(role).Observe(seconds)
}

// RecordFailover increments the failover counter.
func (m *Metrics) RecordFailover() {
	m.FailoversTotal.Inc()
}

// RecordDegraded increments the degraded result counter.
func (m *Metrics) RecordDegraded(role string) {
	m.DegradedTotal.WithLabelValues(role).Inc()
}

// RecordBreakerOpen increments the breaker open counter.
func (m *Metrics) RecordBreakerOpen(model string) {
	m.BreakerOpens.WithLabelValues(model).Inc()
}

// RecordPhase increments the phase counter and duration.
func (m *Metrics) RecordPhase(phase, outcome string, seconds float64) {
	m.PhasesTotal.WithLabelValues(phase, outcome).Inc()
	m.PhaseDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordMilestone increments the milestone outcome counter.
func (m *Metrics) RecordMilestone(outcome string) {
	m.MilestonesTotal.WithLabelValues(outcome).Inc()
}
