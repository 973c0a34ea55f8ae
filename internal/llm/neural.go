package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/normanking/quadrant/internal/inference"
	"github.com/normanking/quadrant/internal/logging"
	"github.com/normanking/quadrant/internal/prompts"
	"github.com/normanking/quadrant/internal/quadrant"
)

// ModelRuntime is the part of *inference.Bridge the neural provider uses.
type ModelRuntime interface {
	Loaded() bool
	Load(ctx context.Context, spec inference.LoadSpec) inference.LoadOutcome
	Generate(ctx context.Context, params inference.GenerateParams) inference.GenerateOutcome
	Unload() error
}

// NeuralProvider classifies with the on-device model: build the prompt,
// generate through the bridge, parse the answer.
type NeuralProvider struct {
	name    string
	runtime ModelRuntime
	spec    inference.LoadSpec
	cfg     *ProviderConfig
	log     *logging.Logger

	// Identical concurrent tasks share one generation.
	inflight singleflight.Group
}

// NewNeuralProvider creates a neural provider over runtime. Initialize loads
// spec unless the runtime already holds a model.
func NewNeuralProvider(runtime ModelRuntime, spec inference.LoadSpec, cfg *ProviderConfig) *NeuralProvider {
	if cfg == nil {
		cfg = DefaultConfig("neural")
	}
	if cfg.Strategy == "" {
		cfg.Strategy = prompts.Structured
	}
	name := cfg.Name
	if name == "" {
		name = "neural"
	}
	return &NeuralProvider{
		name:    name,
		runtime: runtime,
		spec:    spec,
		cfg:     cfg,
		log:     logging.Global().WithComponent("neural"),
	}
}

func (p *NeuralProvider) Name() string                { return p.name }
func (p *NeuralProvider) Kind() quadrant.ProviderKind { return quadrant.KindNeural }
func (p *NeuralProvider) Capabilities() []quadrant.Capability {
	return []quadrant.Capability{quadrant.CapabilityClassify, quadrant.CapabilityGenerate}
}

// Initialize loads the model weights.
func (p *NeuralProvider) Initialize(ctx context.Context) error {
	if p.runtime.Loaded() {
		return nil
	}
	out := p.runtime.Load(ctx, p.spec)
	if !out.Success {
		return fmt.Errorf("%s: %w", p.name, out.Err())
	}
	p.log.Info("[Neural] model ready in %v (degraded=%t, %d MB)", out.LoadTime, out.Degraded, out.MemoryBytes/(1<<20))
	return nil
}

// Execute runs one classification through the model.
func (p *NeuralProvider) Execute(ctx context.Context, req quadrant.Request) (quadrant.Result, error) {
	prompt, err := prompts.Build(p.cfg.Strategy, req.Text())
	if err != nil {
		return quadrant.Result{}, fmt.Errorf("build prompt: %w", err)
	}

	// The shared generation outlives any one caller; each caller still
	// stops waiting when its own ctx ends.
	ch := p.inflight.DoChan(string(p.cfg.Strategy)+"\x00"+req.Text(), func() (interface{}, error) {
		genCtx, cancel := logging.DetachContextWithTimeout(ctx, p.generateTimeout())
		defer cancel()
		return p.generate(genCtx, prompt)
	})

	var out singleflight.Result
	select {
	case out = <-ch:
	case <-ctx.Done():
		return quadrant.Result{}, ctx.Err()
	}
	if out.Err != nil {
		return quadrant.Result{}, out.Err
	}
	if out.Shared {
		p.log.Debug("[Neural] coalesced identical request")
	}

	parsed, err := prompts.Parse(out.Val.(string))
	if err != nil {
		return quadrant.Result{}, err
	}
	res := parsed.Result(p.name, quadrant.KindNeural)
	res.CorrelationID = req.CorrelationID()
	return res, nil
}

func (p *NeuralProvider) generateTimeout() time.Duration {
	if p.cfg.Timeout > 0 {
		return p.cfg.Timeout
	}
	return inference.DefaultGenerateTimeout
}

func (p *NeuralProvider) generate(ctx context.Context, prompt string) (string, error) {
	out := p.runtime.Generate(ctx, inference.GenerateParams{
		Prompt:      prompt,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
		TopP:        p.cfg.TopP,
	})
	if !out.Success {
		if err := ctx.Err(); errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", quadrant.ErrProviderTimeout, out.Reason)
		}
		return "", fmt.Errorf("%w: %s", quadrant.ErrProviderUnavailable, out.Reason)
	}
	p.log.Debug("[Neural] %d tokens in %v (%.1f tok/s)", out.Tokens, out.Duration, out.TokensPerSecond())
	return out.Text, nil
}

// Release unloads the model.
func (p *NeuralProvider) Release() error {
	return p.runtime.Unload()
}

// EstimateCost is zero; the model runs locally.
func (p *NeuralProvider) EstimateCost(req quadrant.Request) Cost {
	return Cost{Local: true}
}
