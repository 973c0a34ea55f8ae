package metrics

import (
	"sync"
	"time"

	"github.com/normanking/quadrant/internal/quadrant"
)

// Collector aggregates routing events for the current session and
// forwards them to an optional persistent store.
type Collector struct {
	store        *Store
	session      *SessionStats
	recentEvents []RouteEvent
	mu           sync.RWMutex
	maxEvents    int
}

// SessionStats holds current session metrics.
type SessionStats struct {
	StartTime      time.Time
	RequestCount   int
	SuccessCount   int
	FailureCount   int
	Escalations    int
	LocalRequests  int
	TotalLatencyMs int64
	ByQuadrant     map[quadrant.Quadrant]int
	ByKind         map[quadrant.ProviderKind]int
	TierFailures   int
	LastEvent      string
	LastEventTime  time.Time
}

// NewCollector creates a metrics collector. store may be nil.
func NewCollector(store *Store) *Collector {
	return &Collector{
		store:        store,
		session:      newSessionStats(),
		recentEvents: make([]RouteEvent, 0),
		maxEvents:    50,
	}
}

func newSessionStats() *SessionStats {
	return &SessionStats{
		StartTime:  time.Now(),
		ByQuadrant: make(map[quadrant.Quadrant]int),
		ByKind:     make(map[quadrant.ProviderKind]int),
	}
}

// RecordRoute folds ev into the session and persists it when a store is set.
func (c *Collector) RecordRoute(ev RouteEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	c.mu.Lock()
	c.recentEvents = append(c.recentEvents, ev)
	if len(c.recentEvents) > c.maxEvents {
		c.recentEvents = c.recentEvents[1:]
	}

	s := c.session
	s.RequestCount++
	s.TotalLatencyMs += ev.Latency.Milliseconds()
	if ev.Success {
		s.SuccessCount++
		s.ByQuadrant[ev.Quadrant]++
		s.ByKind[ev.Kind]++
		s.LastEvent = ev.Provider + " → " + string(ev.Quadrant)
	} else {
		s.FailureCount++
		s.LastEvent = "failed: " + ev.Error
	}
	if ev.Escalated {
		s.Escalations++
	}
	if ev.Kind != quadrant.KindRemote {
		s.LocalRequests++
	}
	s.LastEventTime = ev.At
	c.mu.Unlock()

	if c.store != nil {
		return c.store.RecordRoute(ev)
	}
	return nil
}

// RecordTier counts failed tier steps and forwards to the store.
func (c *Collector) RecordTier(kind quadrant.ProviderKind, outcome TierOutcome, latency time.Duration) {
	switch outcome {
	case OutcomeFailed, OutcomeTimeout, OutcomeUnavailable:
		c.mu.Lock()
		c.session.TierFailures++
		c.mu.Unlock()
	}
	if c.store != nil {
		c.store.RecordTier(kind, outcome, latency)
	}
}

// GetSessionStats returns current session stats (thread-safe).
func (c *Collector) GetSessionStats() *SessionStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return a copy
	stats := *c.session
	stats.ByQuadrant = make(map[quadrant.Quadrant]int, len(c.session.ByQuadrant))
	for q, n := range c.session.ByQuadrant {
		stats.ByQuadrant[q] = n
	}
	stats.ByKind = make(map[quadrant.ProviderKind]int, len(c.session.ByKind))
	for k, n := range c.session.ByKind {
		stats.ByKind[k] = n
	}
	return &stats
}

// GetRecentEvents returns up to n recent events, oldest first (thread-safe).
func (c *Collector) GetRecentEvents(n int) []RouteEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n > len(c.recentEvents) {
		n = len(c.recentEvents)
	}
	if n < 0 {
		n = 0
	}

	start := len(c.recentEvents) - n
	events := make([]RouteEvent, n)
	copy(events, c.recentEvents[start:])
	return events
}

// Store returns the backing store, if any.
func (c *Collector) Store() *Store {
	return c.store
}

// Reset starts a new session.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = newSessionStats()
	c.recentEvents = c.recentEvents[:0]
}
