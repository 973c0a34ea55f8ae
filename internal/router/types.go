// Package router implements the cheap-first escalation chain: the pattern
// classifier answers first, an on-device neural provider is consulted only
// when confidence is insufficient, and a remote provider is the last resort.
package router

import (
	"time"

	"github.com/normanking/quadrant/internal/quadrant"
)

const (
	// DefaultConfidenceThreshold is the minimum confidence accepted without escalating.
	DefaultConfidenceThreshold = 0.7

	// DefaultNeuralTimeout bounds one neural provider call.
	DefaultNeuralTimeout = 4 * time.Second

	// DefaultRemoteTimeout bounds one remote provider call.
	DefaultRemoteTimeout = 10 * time.Second

	// DefaultInitTimeout bounds provider initialization, which runs detached
	// from the request that triggered it.
	DefaultInitTimeout = 2 * time.Minute

	// DefaultInitWait is how long a request waits on a pending initialization
	// before falling through.
	DefaultInitWait = 100 * time.Millisecond
)

// ProviderDescriptor describes one registered provider.
type ProviderDescriptor struct {
	// ID is the provider name, used in Provenance.
	ID string `json:"id"`

	// Kind is the provider tier.
	Kind quadrant.ProviderKind `json:"kind"`

	// Capabilities lists the work the provider accepts.
	Capabilities []quadrant.Capability `json:"capabilities"`

	// Live is false once initialization has failed or the tier is disabled.
	Live bool `json:"live"`

	// Initialized reports whether initialization has completed successfully.
	Initialized bool `json:"initialized"`

	// Enabled is the policy switch (always true for non-remote tiers).
	Enabled bool `json:"enabled"`

	// InitError is the initialization failure, if any.
	InitError string `json:"init_error,omitempty"`
}

// RouterStats tracks routing statistics for monitoring and tuning.
type RouterStats struct {
	// TotalRequests counts routed requests, including rejected ones.
	TotalRequests int64 `json:"total_requests"`

	// DeterministicHits counts results answered by the pattern classifier.
	DeterministicHits int64 `json:"deterministic_hits"`

	// NeuralHits counts results answered by the neural provider.
	NeuralHits int64 `json:"neural_hits"`

	// RemoteHits counts results answered by the remote provider.
	RemoteHits int64 `json:"remote_hits"`

	// Escalations counts requests where the pattern classifier was below threshold.
	Escalations int64 `json:"escalations"`

	// Fallbacks counts escalated requests that still ended on the pattern result.
	Fallbacks int64 `json:"fallbacks"`

	// ProviderFailures counts failed neural/remote calls by provider id.
	ProviderFailures map[string]int64 `json:"provider_failures"`

	// Timeouts counts provider calls that exceeded their bound.
	Timeouts int64 `json:"timeouts"`

	// InputErrors counts requests rejected before routing.
	InputErrors int64 `json:"input_errors"`

	// Cancelled counts requests abandoned by the caller.
	Cancelled int64 `json:"cancelled"`

	// AverageConfidence is the running average confidence of returned results.
	AverageConfidence float64 `json:"average_confidence"`

	// QuadrantDistribution tracks how often each quadrant is returned.
	QuadrantDistribution map[quadrant.Quadrant]int64 `json:"quadrant_distribution"`
}

// DeterministicRatio returns the percentage of results answered without escalation.
func (s *RouterStats) DeterministicRatio() float64 {
	answered := s.DeterministicHits + s.NeuralHits + s.RemoteHits
	if answered == 0 {
		return 0
	}
	return float64(s.DeterministicHits) / float64(answered) * 100
}

func newStats() RouterStats {
	return RouterStats{
		ProviderFailures:     make(map[string]int64),
		QuadrantDistribution: make(map[quadrant.Quadrant]int64),
	}
}
