package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/normanking/quadrant/internal/logging"
	"github.com/normanking/quadrant/internal/quadrant"
)

// MetricsProvider wraps a provider with timing and cost accounting.
type MetricsProvider struct {
	Provider
	log *logging.Logger

	totalCalls  int64
	totalErrors int64

	mu               sync.RWMutex
	totalLatency     time.Duration
	minLatency       time.Duration
	maxLatency       time.Duration
	latencyBuckets   []int64 // <100ms, <500ms, <1s, <2s, <5s, 5s+
	quadrantCounts   map[quadrant.Quadrant]int64
	estimatedCostUSD float64
}

// ProviderMetrics is a snapshot of a MetricsProvider.
type ProviderMetrics struct {
	Provider         string                      `json:"provider"`
	Calls            int64                       `json:"calls"`
	Errors           int64                       `json:"errors"`
	AvgLatency       time.Duration               `json:"avg_latency"`
	MinLatency       time.Duration               `json:"min_latency"`
	MaxLatency       time.Duration               `json:"max_latency"`
	LatencyBuckets   []int64                     `json:"latency_buckets"`
	Quadrants        map[quadrant.Quadrant]int64 `json:"quadrants"`
	EstimatedCostUSD float64                     `json:"estimated_cost_usd"`
}

// WithMetrics wraps provider with metrics collection.
func WithMetrics(provider Provider) *MetricsProvider {
	return &MetricsProvider{
		Provider:       provider,
		log:            logging.Global().WithComponent("llm-metrics"),
		minLatency:     time.Hour, // replaced on first call
		latencyBuckets: make([]int64, 6),
		quadrantCounts: make(map[quadrant.Quadrant]int64),
	}
}

// Unwrap returns the wrapped provider.
func (m *MetricsProvider) Unwrap() Provider {
	return m.Provider
}

// Execute implements Provider with metrics.
func (m *MetricsProvider) Execute(ctx context.Context, req quadrant.Request) (quadrant.Result, error) {
	start := time.Now()
	res, err := m.Provider.Execute(ctx, req)
	latency := time.Since(start)

	atomic.AddInt64(&m.totalCalls, 1)
	if err != nil {
		atomic.AddInt64(&m.totalErrors, 1)
	}

	cost := 0.0
	if err == nil {
		cost = m.Provider.EstimateCost(req).USD
	}

	m.mu.Lock()
	m.totalLatency += latency
	if latency < m.minLatency {
		m.minLatency = latency
	}
	if latency > m.maxLatency {
		m.maxLatency = latency
	}
	switch {
	case latency < 100*time.Millisecond:
		m.latencyBuckets[0]++
	case latency < 500*time.Millisecond:
		m.latencyBuckets[1]++
	case latency < 1*time.Second:
		m.latencyBuckets[2]++
	case latency < 2*time.Second:
		m.latencyBuckets[3]++
	case latency < 5*time.Second:
		m.latencyBuckets[4]++
	default:
		m.latencyBuckets[5]++
	}
	if err == nil {
		m.quadrantCounts[res.Quadrant]++
		m.estimatedCostUSD += cost
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Warn("[LLM-Metrics] %s FAILED after %v: %v", m.Name(), latency, err)
	} else if cost > 0 {
		m.log.Debug("[LLM-Metrics] %s -> %s in %v ($%.6f)", m.Name(), res.Quadrant, latency, cost)
	} else {
		m.log.Debug("[LLM-Metrics] %s -> %s in %v (free)", m.Name(), res.Quadrant, latency)
	}
	return res, err
}

// Metrics returns current metrics.
func (m *MetricsProvider) Metrics() ProviderMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := atomic.LoadInt64(&m.totalCalls)
	out := ProviderMetrics{
		Provider:         m.Name(),
		Calls:            calls,
		Errors:           atomic.LoadInt64(&m.totalErrors),
		MaxLatency:       m.maxLatency,
		LatencyBuckets:   append([]int64(nil), m.latencyBuckets...),
		Quadrants:        make(map[quadrant.Quadrant]int64, len(m.quadrantCounts)),
		EstimatedCostUSD: m.estimatedCostUSD,
	}
	if calls > 0 {
		out.AvgLatency = m.totalLatency / time.Duration(calls)
		out.MinLatency = m.minLatency
	}
	for q, n := range m.quadrantCounts {
		out.Quadrants[q] = n
	}
	return out
}

// String returns a one-line summary.
func (pm ProviderMetrics) String() string {
	return fmt.Sprintf("%s: %d calls, %d errors, avg %v, $%.4f",
		pm.Provider, pm.Calls, pm.Errors, pm.AvgLatency.Round(time.Millisecond), pm.EstimatedCostUSD)
}
