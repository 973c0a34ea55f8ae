package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/quadrant/internal/quadrant"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func event(provider string, kind quadrant.ProviderKind, q quadrant.Quadrant, ok bool) RouteEvent {
	ev := RouteEvent{
		CorrelationID: "corr-" + provider,
		Provider:      provider,
		Kind:          kind,
		Quadrant:      q,
		Confidence:    0.8,
		Latency:       20 * time.Millisecond,
		Attempts:      []string{"pattern", provider},
		Escalated:     kind != quadrant.KindDeterministic,
		Success:       ok,
		At:            time.Now(),
	}
	if !ok {
		ev.Quadrant = ""
		ev.Confidence = 0
		ev.Error = "all providers failed"
	}
	return ev
}

// ============================================================================
// Store
// ============================================================================

func TestStore_RecordAndQuery(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.RecordRoute(event("pattern", quadrant.KindDeterministic, quadrant.DoFirst, true)))
	require.NoError(t, s.RecordRoute(event("pattern", quadrant.KindDeterministic, quadrant.Schedule, true)))
	require.NoError(t, s.RecordRoute(event("openai", quadrant.KindRemote, quadrant.Delegate, true)))
	require.NoError(t, s.RecordRoute(event("openai", quadrant.KindRemote, "", false)))

	stats, err := s.ProviderStats(1)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	// Ties broken by name.
	assert.Equal(t, "openai", stats[0].Provider)
	assert.Equal(t, int64(2), stats[0].RequestCount)
	assert.InDelta(t, 50.0, stats[0].SuccessRate, 0.01)
	assert.Equal(t, "pattern", stats[1].Provider)
	assert.InDelta(t, 100.0, stats[1].SuccessRate, 0.01)
	assert.InDelta(t, 20.0, stats[1].AvgLatencyMs, 0.01)

	recent, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.False(t, recent[0].Success)
	assert.Equal(t, "all providers failed", recent[0].Error)
	assert.Equal(t, quadrant.Delegate, recent[1].Quadrant)
	assert.Equal(t, []string{"pattern", "openai"}, recent[1].Attempts)
	assert.Equal(t, 20*time.Millisecond, recent[1].Latency)

	today, err := s.TodayStats()
	require.NoError(t, err)
	assert.Equal(t, int64(4), today.TotalRequests)
	assert.Equal(t, int64(3), today.SuccessfulReqs)
	assert.Equal(t, int64(1), today.FailedReqs)
	assert.Equal(t, int64(2), today.Escalations)
	assert.InDelta(t, 50.0, today.LocalRate, 0.01)

	sum := s.Summary()
	assert.Equal(t, int64(4), sum.TotalRequests)
	assert.InDelta(t, 75.0, sum.SuccessRate, 0.01)
	assert.InDelta(t, 50.0, sum.EscalationRate, 0.01)

	s.Reset()
	assert.Zero(t, s.Summary().TotalRequests)
}

func TestStore_DailyStatsMissingDay(t *testing.T) {
	s := openStore(t)
	stats, err := s.DailyStats("1999-01-01")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRequests)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordRoute(event("pattern", quadrant.KindDeterministic, quadrant.Eliminate, true)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	recent, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, quadrant.Eliminate, recent[0].Quadrant)
	// In-memory counters start fresh.
	assert.Zero(t, s.Summary().TotalRequests)
}

func TestStore_TierCounts(t *testing.T) {
	s := openStore(t)
	s.RecordTier(quadrant.KindDeterministic, OutcomeLowConf, time.Millisecond)
	s.RecordTier(quadrant.KindNeural, OutcomeTimeout, 2*time.Second)
	s.RecordTier(quadrant.KindNeural, OutcomeTimeout, 2*time.Second)

	counts := s.TierCounts()
	assert.Equal(t, int64(1), counts[quadrant.KindDeterministic][OutcomeLowConf])
	assert.Equal(t, int64(2), counts[quadrant.KindNeural][OutcomeTimeout])
}

// ============================================================================
// Collector and dashboard
// ============================================================================

func TestCollector_SessionStats(t *testing.T) {
	s := openStore(t)
	c := NewCollector(s)

	require.NoError(t, c.RecordRoute(event("pattern", quadrant.KindDeterministic, quadrant.DoFirst, true)))
	require.NoError(t, c.RecordRoute(event("neural", quadrant.KindNeural, quadrant.Schedule, true)))
	require.NoError(t, c.RecordRoute(event("openai", quadrant.KindRemote, "", false)))
	c.RecordTier(quadrant.KindNeural, OutcomeTimeout, time.Second)
	c.RecordTier(quadrant.KindDeterministic, OutcomeAccepted, time.Millisecond)

	stats := c.GetSessionStats()
	assert.Equal(t, 3, stats.RequestCount)
	assert.Equal(t, 2, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.Equal(t, 2, stats.Escalations)
	assert.Equal(t, 2, stats.LocalRequests)
	assert.Equal(t, 1, stats.TierFailures)
	assert.Equal(t, 1, stats.ByQuadrant[quadrant.DoFirst])
	assert.Equal(t, 1, stats.ByKind[quadrant.KindNeural])

	// The copy is detached from the collector.
	stats.ByQuadrant[quadrant.DoFirst] = 99
	assert.Equal(t, 1, c.GetSessionStats().ByQuadrant[quadrant.DoFirst])

	assert.Len(t, c.GetRecentEvents(10), 3)
	assert.Equal(t, "openai", c.GetRecentEvents(1)[0].Provider)
	assert.Equal(t, int64(3), s.Summary().TotalRequests)

	c.Reset()
	assert.Zero(t, c.GetSessionStats().RequestCount)
	assert.Empty(t, c.GetRecentEvents(5))
}

func TestCollector_RecentEventsBounded(t *testing.T) {
	c := NewCollector(nil)
	for i := 0; i < 60; i++ {
		require.NoError(t, c.RecordRoute(event("pattern", quadrant.KindDeterministic, quadrant.Eliminate, true)))
	}
	assert.Len(t, c.GetRecentEvents(100), 50)
	assert.Equal(t, 60, c.GetSessionStats().RequestCount)
}

func TestDashboard_Render(t *testing.T) {
	c := NewCollector(nil)
	require.NoError(t, c.RecordRoute(event("pattern", quadrant.KindDeterministic, quadrant.DoFirst, true)))
	require.NoError(t, c.RecordRoute(event("openai", quadrant.KindRemote, "", false)))

	d := NewDashboard(c)
	d.SetWidth(100)
	out := d.Render()
	assert.Contains(t, out, "ROUTING")
	assert.Contains(t, out, "2 requests")
	assert.Contains(t, out, "do_first 1")

	compact := d.RenderCompact()
	assert.True(t, strings.HasPrefix(compact, "[Routing] 2 req"))
	assert.Contains(t, compact, "●✕○○○")
}

func TestDashboard_RenderProviders(t *testing.T) {
	d := NewDashboard(NewCollector(nil))
	assert.Contains(t, d.RenderProviders(nil), "No routing history")

	out := d.RenderProviders([]ProviderStats{
		{Provider: "pattern", RequestCount: 12, SuccessRate: 100, AvgLatencyMs: 0.4, AvgConfidence: 0.72},
	})
	assert.Contains(t, out, "PROVIDER")
	assert.Contains(t, out, "pattern")
	assert.Contains(t, out, "0.72")
}

// ============================================================================
// Prometheus and fan-out
// ============================================================================

func TestProm_RecordsRoutesAndTiers(t *testing.T) {
	p := NewProm()
	require.NoError(t, p.RecordRoute(event("pattern", quadrant.KindDeterministic, quadrant.DoFirst, true)))
	require.NoError(t, p.RecordRoute(event("pattern", quadrant.KindDeterministic, quadrant.DoFirst, true)))
	p.RecordTier(quadrant.KindNeural, OutcomeTimeout, time.Second)
	p.RecordGeneration("simulated", true, 500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.routes.WithLabelValues("pattern", "deterministic", "do_first", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tiers.WithLabelValues("neural", "timeout")))

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "quadrant_router_requests_total")
	assert.Contains(t, string(body), "quadrant_inference_generate_seconds")
}

type failingRecorder struct{ Nop }

func (failingRecorder) RecordRoute(RouteEvent) error { return errors.New("disk full") }

func TestMulti_JoinsErrors(t *testing.T) {
	c := NewCollector(nil)
	m := Multi{c, nil, failingRecorder{}, Nop{}}

	err := m.RecordRoute(event("pattern", quadrant.KindDeterministic, quadrant.DoFirst, true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, c.GetSessionStats().RequestCount)

	m.RecordTier(quadrant.KindRemote, OutcomeFailed, time.Second)
	assert.Equal(t, 1, c.GetSessionStats().TierFailures)
}
