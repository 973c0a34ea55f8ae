// Package server exposes the router over HTTP: a classify endpoint, a batch
// briefing endpoint, health and routing history, and the Prometheus scrape.
package server

import (
	"time"

	"github.com/normanking/quadrant/internal/briefing"
	"github.com/normanking/quadrant/internal/metrics"
	"github.com/normanking/quadrant/internal/quadrant"
	"github.com/normanking/quadrant/internal/router"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds HTTP server configuration.
type Config struct {
	// Addr is the listen address (default: 127.0.0.1:7890)
	Addr string

	// RequestTimeout bounds one classify call, escalation included (default: 15s)
	RequestTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout (default: 5s)
	ShutdownTimeout time.Duration

	// MaxBatch caps the tasks accepted by the briefing endpoint (default: 50)
	MaxBatch int

	// Version is reported by the health endpoint.
	Version string
}

// DefaultConfig returns sensible defaults for the server.
func DefaultConfig() *Config {
	return &Config{
		Addr:            "127.0.0.1:7890",
		RequestTimeout:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxBatch:        50,
		Version:         "dev",
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// API REQUEST TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// MaxTextBytes bounds a single task description.
const MaxTextBytes = 4 * 1024

// ClassifyRequest is the request body for POST /v1/classify.
type ClassifyRequest struct {
	Text          string     `json:"text" validate:"required,maxbytes"`
	CorrelationID string     `json:"correlation_id,omitempty" validate:"omitempty,uuid"`
	Due           *time.Time `json:"due,omitempty"`
	Goals         []string   `json:"goals,omitempty" validate:"max=20,dive,max=200"`
}

// BriefRequest is the request body for POST /v1/brief.
type BriefRequest struct {
	Tasks []string   `json:"tasks" validate:"required,min=1,dive,required,maxbytes"`
	Date  *time.Time `json:"date,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// API RESPONSE TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// ClassifyResponse is returned by POST /v1/classify.
type ClassifyResponse struct {
	quadrant.Result
	Action      string `json:"action"`
	NeedsReview bool   `json:"needs_review"`
	LatencyMs   int64  `json:"latency_ms"`
}

// BriefResponse is returned by POST /v1/brief.
type BriefResponse struct {
	Items    []briefing.ActionItem `json:"items"`
	Markdown string                `json:"markdown"`
	Failed   []string              `json:"failed,omitempty"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status    string                      `json:"status"`
	Version   string                      `json:"version"`
	Uptime    string                      `json:"uptime"`
	StartedAt time.Time                   `json:"started_at"`
	Threshold float64                     `json:"threshold"`
	Providers []router.ProviderDescriptor `json:"providers"`
	Stats     router.RouterStats          `json:"stats"`
}

// RecentResponse is returned by GET /v1/routes.
type RecentResponse struct {
	Timestamp string                  `json:"timestamp"`
	Summary   metrics.Summary         `json:"summary"`
	Providers []metrics.ProviderStats `json:"providers"`
	Events    []metrics.StoredEvent   `json:"events"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// API ERROR TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// APIError represents a structured API error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Common API errors.
var (
	ErrBadRequest  = &APIError{Code: 400, Message: "bad request"}
	ErrNotFound    = &APIError{Code: 404, Message: "not found"}
	ErrTimeout     = &APIError{Code: 504, Message: "classification timed out"}
	ErrInternal    = &APIError{Code: 500, Message: "internal server error"}
	ErrUnavailable = &APIError{Code: 503, Message: "routing history unavailable"}
)

// withDetails copies e with details attached.
func (e *APIError) withDetails(details string) *APIError {
	return &APIError{Code: e.Code, Message: e.Message, Details: details}
}
