package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/normanking/quadrant/internal/quadrant"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PROMETHEUS COLLECTORS
// ═══════════════════════════════════════════════════════════════════════════════

const namespace = "quadrant"

// Prom exports routing metrics to a Prometheus registry.
type Prom struct {
	registry *prometheus.Registry

	// routes counts routed requests.
	// Labels: provider, kind, quadrant, status (success, error)
	routes *prometheus.CounterVec

	// tiers counts provider step outcomes.
	// Labels: kind, outcome (accepted, low_confidence, failed, ...)
	tiers *prometheus.CounterVec

	// routeLatency measures end-to-end routing latency.
	// Labels: kind
	routeLatency *prometheus.HistogramVec

	// tierLatency measures the time spent in one tier.
	// Labels: kind
	tierLatency *prometheus.HistogramVec

	// confidence tracks the distribution of accepted confidence scores.
	// Labels: kind
	confidence *prometheus.HistogramVec

	// generation measures inference bridge generation latency.
	// Labels: backend, status
	generation *prometheus.HistogramVec
}

// NewProm registers the routing collectors on a fresh registry.
func NewProm() *Prom {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Prom{
		registry: reg,
		routes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "requests_total",
			Help:      "Total routed classification requests",
		}, []string{"provider", "kind", "quadrant", "status"}),
		tiers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "tier_outcomes_total",
			Help:      "Provider tier outcomes during routing",
		}, []string{"kind", "outcome"}),
		routeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "latency_seconds",
			Help:      "End-to-end routing latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"kind"}),
		tierLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "tier_latency_seconds",
			Help:      "Time spent in a single provider tier",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"kind"}),
		confidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "confidence",
			Help:      "Distribution of accepted confidence scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
		}, []string{"kind"}),
		generation: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "generate_seconds",
			Help:      "Inference bridge generation latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30, 60},
		}, []string{"backend", "status"}),
	}
}

// RecordRoute implements Recorder.
func (p *Prom) RecordRoute(ev RouteEvent) error {
	status := "success"
	if !ev.Success {
		status = "error"
	}
	p.routes.WithLabelValues(ev.Provider, string(ev.Kind), string(ev.Quadrant), status).Inc()
	p.routeLatency.WithLabelValues(string(ev.Kind)).Observe(ev.Latency.Seconds())
	if ev.Success {
		p.confidence.WithLabelValues(string(ev.Kind)).Observe(ev.Confidence)
	}
	return nil
}

// RecordTier implements Recorder.
func (p *Prom) RecordTier(kind quadrant.ProviderKind, outcome TierOutcome, latency time.Duration) {
	p.tiers.WithLabelValues(string(kind), string(outcome)).Inc()
	if outcome != OutcomeSkipped {
		p.tierLatency.WithLabelValues(string(kind)).Observe(latency.Seconds())
	}
}

// RecordGeneration records one inference bridge generation.
func (p *Prom) RecordGeneration(backend string, success bool, d time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.generation.WithLabelValues(backend, status).Observe(d.Seconds())
}

// Registry returns the underlying registry.
func (p *Prom) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
