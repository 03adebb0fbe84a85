// Package metrics exposes coind's Prometheus instruments and the optional
// HTTP endpoint serving them alongside a health probe.
//
// A nil *Metrics is valid and records nothing, so callers never branch on
// whether metricsbind was configured.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coind"

// Metrics holds the node's instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	stepDuration   *prometheus.HistogramVec
	stepOutcomes   *prometheus.CounterVec
	workerFailures *prometheus.CounterVec
	shutdownHooks  *prometheus.CounterVec
	hookDuration   *prometheus.HistogramVec
}

// New creates the instruments and registers them with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bootstrap",
				Name:      "step_duration_seconds",
				Help:      "Duration of each startup step.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"step"},
		),
		stepOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bootstrap",
				Name:      "step_outcomes_total",
				Help:      "Startup step results by outcome.",
			},
			[]string{"step", "outcome"},
		),
		workerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workers",
				Name:      "failures_total",
				Help:      "Background workers that exited with an error.",
			},
			[]string{"worker"},
		),
		shutdownHooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "shutdown",
				Name:      "hooks_total",
				Help:      "Teardown hooks run, by phase and result.",
			},
			[]string{"phase", "result"},
		),
		hookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "shutdown",
				Name:      "hook_duration_seconds",
				Help:      "Duration of teardown hooks by phase.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStep records one startup step result.
func (m *Metrics) ObserveStep(step, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	m.stepOutcomes.WithLabelValues(step, outcome).Inc()
}

// WorkerFailed counts a worker that returned an error or panicked.
func (m *Metrics) WorkerFailed(worker string) {
	if m == nil {
		return
	}
	m.workerFailures.WithLabelValues(worker).Inc()
}

// ObserveHook records a teardown hook.
func (m *Metrics) ObserveHook(phase string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.shutdownHooks.WithLabelValues(phase, result).Inc()
	m.hookDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// WatchChainHeight exports the value of height as the best-block gauge.
func (m *Metrics) WatchChainHeight(height func() int64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "height",
		Help:      "Height of the best block in the ledger index.",
	}, func() float64 { return float64(height()) }))
}

// WatchInboundPeers exports the value of active as the inbound peer gauge.
func (m *Metrics) WatchInboundPeers(active func() int64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "p2p",
		Name:      "inbound_peers",
		Help:      "Open inbound peer connections.",
	}, func() float64 { return float64(active()) }))
}
