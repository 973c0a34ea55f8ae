package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/normanking/quadrant/internal/metrics"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
	providerStatsDays  = 7
)

// handleHealth reports provider liveness and router counters.
// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   s.cfg.Version,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		StartedAt: s.startedAt,
		Threshold: s.classifier.Threshold(),
		Providers: s.classifier.Providers(),
		Stats:     s.classifier.Stats(),
	})
}

// HandleRecent returns persisted routing history.
// GET /v1/routes?limit=N
func HandleRecent(store *metrics.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, ErrUnavailable)
			return
		}

		limit := defaultRecentLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, ErrBadRequest.withDetails("limit must be a positive integer"))
				return
			}
			limit = min(n, maxRecentLimit)
		}

		events, err := store.Recent(limit)
		if err != nil {
			writeError(w, ErrInternal.withDetails(err.Error()))
			return
		}
		providers, err := store.ProviderStats(providerStatsDays)
		if err != nil {
			writeError(w, ErrInternal.withDetails(err.Error()))
			return
		}

		writeJSON(w, http.StatusOK, RecentResponse{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Summary:   store.Summary(),
			Providers: providers,
			Events:    events,
		})
	}
}

// RegisterMetricsRoutes registers the history and scrape routes on mux.
// The scrape route is only present when p is non-nil.
func RegisterMetricsRoutes(mux *http.ServeMux, store *metrics.Store, p *metrics.Prom) {
	mux.HandleFunc("GET /v1/routes", HandleRecent(store))
	if p != nil {
		mux.Handle("GET /metrics", p.Handler())
	}
}
