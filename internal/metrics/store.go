// Package metrics records routing outcomes: a SQLite event store for
// history, Prometheus collectors for scraping, and an in-memory session
// collector for the terminal dashboard.
package metrics

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/normanking/quadrant/internal/quadrant"

	_ "modernc.org/sqlite"
)

// ═══════════════════════════════════════════════════════════════════════════════
// METRICS TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// StoredEvent is a RouteEvent read back from the store.
type StoredEvent struct {
	ID int64 `json:"id"`
	RouteEvent
}

// DailyStats contains aggregated metrics for a single day.
type DailyStats struct {
	Date           string  `json:"date"` // YYYY-MM-DD
	TotalRequests  int64   `json:"total_requests"`
	SuccessfulReqs int64   `json:"successful_requests"`
	FailedReqs     int64   `json:"failed_requests"`
	Escalations    int64   `json:"escalations"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	LocalRate      float64 `json:"local_rate"` // % answered without the remote tier
}

// ProviderStats contains per-provider metrics.
type ProviderStats struct {
	Provider      string  `json:"provider"`
	RequestCount  int64   `json:"request_count"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Summary is a quick view of the in-memory counters.
type Summary struct {
	TotalRequests  int64   `json:"total_requests"`
	SuccessRate    float64 `json:"success_rate"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	EscalationRate float64 `json:"escalation_rate"`
	LocalRate      float64 `json:"local_rate"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// METRICS STORE
// ═══════════════════════════════════════════════════════════════════════════════

// Store provides SQLite-backed routing history.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// In-memory counters for the current process
	requestCount   int64
	successCount   int64
	totalLatencyMs int64
	escalations    int64
	localRequests  int64

	tiers map[quadrant.ProviderKind]map[TierOutcome]int64
}

// Open opens (or creates) a store at path using the pure-Go SQLite driver.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore creates a new metrics store using the provided database connection.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{
		db:    db,
		tiers: make(map[quadrant.ProviderKind]map[TierOutcome]int64),
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates the metrics tables if they don't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS route_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		correlation_id TEXT,
		provider TEXT NOT NULL,
		kind TEXT NOT NULL,
		quadrant TEXT,
		confidence REAL DEFAULT 0,
		latency_ms INTEGER NOT NULL,
		attempts TEXT,
		escalated BOOLEAN NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL,
		error_msg TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_route_events_created_at ON route_events(created_at);
	CREATE INDEX IF NOT EXISTS idx_route_events_provider ON route_events(provider);

	CREATE TABLE IF NOT EXISTS route_daily (
		date TEXT PRIMARY KEY,
		total_requests INTEGER DEFAULT 0,
		successful_reqs INTEGER DEFAULT 0,
		failed_reqs INTEGER DEFAULT 0,
		escalations INTEGER DEFAULT 0,
		total_latency_ms INTEGER DEFAULT 0,
		local_requests INTEGER DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ═══════════════════════════════════════════════════════════════════════════════
// RECORDING METHODS
// ═══════════════════════════════════════════════════════════════════════════════

// RecordRoute records a single routed request.
func (s *Store) RecordRoute(ev RouteEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	latencyMs := ev.Latency.Milliseconds()
	local := ev.Kind != quadrant.KindRemote

	_, err := s.db.Exec(`
		INSERT INTO route_events (correlation_id, provider, kind, quadrant, confidence, latency_ms, attempts, escalated, success, error_msg, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.CorrelationID, ev.Provider, string(ev.Kind), string(ev.Quadrant), ev.Confidence,
		latencyMs, strings.Join(ev.Attempts, ","), ev.Escalated, ev.Success, ev.Error, ev.At.UTC())

	if err != nil {
		return fmt.Errorf("failed to record route: %w", err)
	}

	s.requestCount++
	if ev.Success {
		s.successCount++
	}
	if ev.Escalated {
		s.escalations++
	}
	if local {
		s.localRequests++
	}
	s.totalLatencyMs += latencyMs

	return s.updateDailyStats(ev, latencyMs, local)
}

// updateDailyStats updates the daily aggregates.
func (s *Store) updateDailyStats(ev RouteEvent, latencyMs int64, local bool) error {
	date := ev.At.Format("2006-01-02")

	_, err := s.db.Exec(`
		INSERT INTO route_daily (date, total_requests, successful_reqs, failed_reqs, escalations, total_latency_ms, local_requests)
		VALUES (?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_requests = total_requests + 1,
			successful_reqs = successful_reqs + ?,
			failed_reqs = failed_reqs + ?,
			escalations = escalations + ?,
			total_latency_ms = total_latency_ms + ?,
			local_requests = local_requests + ?,
			updated_at = CURRENT_TIMESTAMP
	`,
		// Initial insert values
		date, boolToInt(ev.Success), boolToInt(!ev.Success), boolToInt(ev.Escalated), latencyMs, boolToInt(local),
		// Update values
		boolToInt(ev.Success), boolToInt(!ev.Success), boolToInt(ev.Escalated), latencyMs, boolToInt(local),
	)
	if err != nil {
		return fmt.Errorf("failed to update daily stats: %w", err)
	}
	return nil
}

// RecordTier counts tier outcomes in memory. Only whole routes are persisted.
func (s *Store) RecordTier(kind quadrant.ProviderKind, outcome TierOutcome, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tiers[kind] == nil {
		s.tiers[kind] = make(map[TierOutcome]int64)
	}
	s.tiers[kind][outcome]++
}

// TierCounts returns a copy of the tier outcome counters.
func (s *Store) TierCounts() map[quadrant.ProviderKind]map[TierOutcome]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[quadrant.ProviderKind]map[TierOutcome]int64, len(s.tiers))
	for k, m := range s.tiers {
		cp := make(map[TierOutcome]int64, len(m))
		for o, n := range m {
			cp[o] = n
		}
		out[k] = cp
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUERY METHODS
// ═══════════════════════════════════════════════════════════════════════════════

// DailyStats returns stats for the specified date.
func (s *Store) DailyStats(date string) (*DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &DailyStats{Date: date}
	var totalLatency, local int64

	err := s.db.QueryRow(`
		SELECT total_requests, successful_reqs, failed_reqs, escalations, total_latency_ms, local_requests
		FROM route_daily WHERE date = ?
	`, date).Scan(
		&stats.TotalRequests, &stats.SuccessfulReqs, &stats.FailedReqs,
		&stats.Escalations, &totalLatency, &local,
	)

	if err == sql.ErrNoRows {
		return stats, nil // Return empty stats
	}
	if err != nil {
		return nil, err
	}

	if stats.TotalRequests > 0 {
		stats.AvgLatencyMs = float64(totalLatency) / float64(stats.TotalRequests)
		stats.LocalRate = float64(local) / float64(stats.TotalRequests) * 100
	}
	return stats, nil
}

// TodayStats returns stats for today.
func (s *Store) TodayStats() (*DailyStats, error) {
	return s.DailyStats(time.Now().Format("2006-01-02"))
}

// ProviderStats returns per-provider statistics for the last N days.
func (s *Store) ProviderStats(days int) ([]ProviderStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := time.Now().AddDate(0, 0, -days).UTC()

	rows, err := s.db.Query(`
		SELECT provider,
		       COUNT(*) as request_count,
		       SUM(CASE WHEN success THEN 1 ELSE 0 END) * 100.0 / COUNT(*) as success_rate,
		       AVG(latency_ms) as avg_latency,
		       AVG(confidence) as avg_confidence
		FROM route_events
		WHERE created_at >= ?
		GROUP BY provider
		ORDER BY request_count DESC, provider ASC
	`, since)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ProviderStats
	for rows.Next() {
		var ps ProviderStats
		if err := rows.Scan(&ps.Provider, &ps.RequestCount, &ps.SuccessRate,
			&ps.AvgLatencyMs, &ps.AvgConfidence); err != nil {
			return nil, err
		}
		stats = append(stats, ps)
	}

	return stats, rows.Err()
}

// Recent returns the most recent N events, newest first.
func (s *Store) Recent(limit int) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, correlation_id, provider, kind, quadrant, confidence, latency_ms, attempts, escalated, success, error_msg, created_at
		FROM route_events
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var corr, q, attempts, errorMsg sql.NullString
		var kind string
		var latencyMs int64
		if err := rows.Scan(&e.ID, &corr, &e.Provider, &kind, &q, &e.Confidence,
			&latencyMs, &attempts, &e.Escalated, &e.Success, &errorMsg, &e.At); err != nil {
			return nil, err
		}
		e.CorrelationID = corr.String
		e.Kind = quadrant.ProviderKind(kind)
		e.Quadrant = quadrant.Quadrant(q.String)
		e.Latency = time.Duration(latencyMs) * time.Millisecond
		if attempts.String != "" {
			e.Attempts = strings.Split(attempts.String, ",")
		}
		e.Error = errorMsg.String
		events = append(events, e)
	}

	return events, rows.Err()
}

// ═══════════════════════════════════════════════════════════════════════════════
// SUMMARY METHODS
// ═══════════════════════════════════════════════════════════════════════════════

// Summary returns a quick summary of this process's counters.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum Summary
	sum.TotalRequests = s.requestCount
	if s.requestCount > 0 {
		n := float64(s.requestCount)
		sum.AvgLatencyMs = float64(s.totalLatencyMs) / n
		sum.SuccessRate = float64(s.successCount) / n * 100
		sum.EscalationRate = float64(s.escalations) / n * 100
		sum.LocalRate = float64(s.localRequests) / n * 100
	}
	return sum
}

// Reset clears in-memory counters (for testing).
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestCount = 0
	s.successCount = 0
	s.totalLatencyMs = 0
	s.escalations = 0
	s.localRequests = 0
	s.tiers = make(map[quadrant.ProviderKind]map[TierOutcome]int64)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
