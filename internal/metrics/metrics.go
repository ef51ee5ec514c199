// Package metrics holds the prometheus collectors of the simulation engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edp1096/spicebridge/pkg/mempool"
	"github.com/edp1096/spicebridge/pkg/simerr"
)

const namespace = "spicebridge"

// Simulation outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeSoftFailure = "soft_failure"
	OutcomeError       = "error"
)

type Metrics struct {
	Simulations  *prometheus.CounterVec
	Errors       *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	Waiting      prometheus.Gauge
	State        *prometheus.GaugeVec
	HealthChecks *prometheus.CounterVec

	reg prometheus.Registerer
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Simulations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Simulations run, by analysis and outcome.",
		}, []string{"analysis", "outcome"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors returned to callers, by kind and category.",
		}, []string{"kind", "category"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_duration_seconds",
			Help:      "Time holding the solver, by analysis.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"analysis"}),
		Waiting: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waiting_callers",
			Help:      "Callers queued for exclusive solver access.",
		}),
		State: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_state",
			Help:      "1 for the current engine state.",
		}, []string{"state"}),
		HealthChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Health checks, by result.",
		}, []string{"result"}),
		reg: reg,
	}
}

func (m *Metrics) ObserveSimulation(analysis, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Simulations.WithLabelValues(analysis, outcome).Inc()
	m.Duration.WithLabelValues(analysis).Observe(d.Seconds())
}

func (m *Metrics) ObserveError(err error) {
	if m == nil || err == nil {
		return
	}
	m.Errors.WithLabelValues(simerr.KindOf(err).String(), simerr.CategoryOf(err).String()).Inc()
}

func (m *Metrics) ObserveHealth(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.HealthChecks.WithLabelValues(result).Inc()
}

// SetState marks state as the only current state.
func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	m.State.Reset()
	m.State.WithLabelValues(state).Set(1)
}

func (m *Metrics) WaitStart() {
	if m != nil {
		m.Waiting.Inc()
	}
}

func (m *Metrics) WaitEnd() {
	if m != nil {
		m.Waiting.Dec()
	}
}

// RegisterPool exports the guest buffer pool reported by source.
func (m *Metrics) RegisterPool(source func() (mempool.Stats, bool)) error {
	if m == nil || m.reg == nil {
		return nil
	}
	return m.reg.Register(NewPoolCollector(source))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
