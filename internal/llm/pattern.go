package llm

import (
	"context"

	"github.com/normanking/quadrant/internal/quadrant"
)

// PatternProvider exposes the deterministic classifier as a Provider.
type PatternProvider struct {
	classifier *quadrant.PatternClassifier
}

// NewPatternProvider wraps c. A nil classifier uses the default rules.
func NewPatternProvider(c *quadrant.PatternClassifier) *PatternProvider {
	if c == nil {
		c = quadrant.NewPatternClassifier()
	}
	return &PatternProvider{classifier: c}
}

func (p *PatternProvider) Name() string                { return quadrant.PatternProviderID }
func (p *PatternProvider) Kind() quadrant.ProviderKind { return quadrant.KindDeterministic }
func (p *PatternProvider) Capabilities() []quadrant.Capability {
	return []quadrant.Capability{quadrant.CapabilityClassify}
}
func (p *PatternProvider) Initialize(ctx context.Context) error { return nil }
func (p *PatternProvider) Release() error                       { return nil }

// Execute never fails.
func (p *PatternProvider) Execute(ctx context.Context, req quadrant.Request) (quadrant.Result, error) {
	return p.classifier.ClassifyRequest(req), nil
}

// EstimateCost is always zero.
func (p *PatternProvider) EstimateCost(req quadrant.Request) Cost {
	return Cost{Local: true}
}
