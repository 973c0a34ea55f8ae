// Package llm provides the classification providers the router escalates
// through: the deterministic pattern classifier, an on-device neural model
// behind the inference bridge, and a remote OpenAI-compatible endpoint.
package llm

import (
	"context"
	"time"

	"github.com/normanking/quadrant/internal/prompts"
	"github.com/normanking/quadrant/internal/quadrant"
)

// Provider is one tier of the routing chain.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Kind returns the provider tier.
	Kind() quadrant.ProviderKind

	// Capabilities lists the work the provider accepts.
	Capabilities() []quadrant.Capability

	// Initialize prepares the provider (loads weights, checks credentials).
	// The router calls it at most once.
	Initialize(ctx context.Context) error

	// Execute classifies the request.
	Execute(ctx context.Context, req quadrant.Request) (quadrant.Result, error)

	// Release frees anything Initialize acquired.
	Release() error

	// EstimateCost predicts what Execute would cost for req.
	EstimateCost(req quadrant.Request) Cost
}

// Cost is a per-request cost estimate.
type Cost struct {
	USD   float64 `json:"usd"`
	Local bool    `json:"local"`
}

// Supports reports whether p accepts capability c.
func Supports(p Provider, c quadrant.Capability) bool {
	for _, have := range p.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}

// ProviderConfig contains configuration for a model-backed provider.
type ProviderConfig struct {
	// Name identifies the provider (openai, groq, openrouter, ollama, neural).
	Name string

	// Endpoint is the API base URL.
	Endpoint string

	// APIKey for authentication.
	APIKey string

	// Model is the model to request.
	Model string

	// Strategy is the prompt formulation sent to the model.
	Strategy prompts.Strategy

	// Sampling parameters.
	MaxTokens   int
	Temperature float64
	TopP        float64

	// Timeout for a single API call.
	Timeout time.Duration

	// RequestsPerMinute and Burst configure client-side rate limiting.
	RequestsPerMinute float64
	Burst             int

	// Streaming reads the answer as server-sent chunks.
	Streaming bool
}

// DefaultConfig returns sensible defaults for a provider.
func DefaultConfig(name string) *ProviderConfig {
	switch name {
	case "openai":
		return &ProviderConfig{
			Name:              "openai",
			Endpoint:          "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			Strategy:          prompts.Structured,
			MaxTokens:         150,
			Temperature:       0.1,
			TopP:              0.9,
			Timeout:           10 * time.Second,
			RequestsPerMinute: 60,
			Burst:             10,
		}
	case "groq":
		// Groq is fast enough that the remote tier rarely hits its timeout.
		return &ProviderConfig{
			Name:              "groq",
			Endpoint:          "https://api.groq.com/openai/v1",
			Model:             "llama-3.3-70b-versatile",
			Strategy:          prompts.Structured,
			MaxTokens:         150,
			Temperature:       0.1,
			TopP:              0.9,
			Timeout:           10 * time.Second,
			RequestsPerMinute: 30,
			Burst:             5,
		}
	case "openrouter":
		return &ProviderConfig{
			Name:              "openrouter",
			Endpoint:          "https://openrouter.ai/api/v1",
			Model:             "meta-llama/llama-3.1-8b-instruct",
			Strategy:          prompts.Structured,
			MaxTokens:         150,
			Temperature:       0.1,
			TopP:              0.9,
			Timeout:           10 * time.Second,
			RequestsPerMinute: 60,
			Burst:             10,
		}
	case "ollama":
		// Ollama's OpenAI-compatible endpoint; no key required.
		return &ProviderConfig{
			Name:              "ollama",
			Endpoint:          "http://127.0.0.1:11434/v1",
			Model:             "llama3.2",
			Strategy:          prompts.Structured,
			MaxTokens:         150,
			Temperature:       0.1,
			TopP:              0.9,
			Timeout:           30 * time.Second,
			RequestsPerMinute: 120,
			Burst:             5,
		}
	case "neural":
		return &ProviderConfig{
			Name:        "neural",
			Strategy:    prompts.Structured,
			MaxTokens:   150,
			Temperature: 0.1,
			TopP:        0.9,
			Timeout:     4 * time.Second,
		}
	default:
		return &ProviderConfig{
			Name:              name,
			Strategy:          prompts.Structured,
			MaxTokens:         150,
			Temperature:       0.1,
			TopP:              0.9,
			Timeout:           10 * time.Second,
			RequestsPerMinute: 30,
			Burst:             5,
		}
	}
}
