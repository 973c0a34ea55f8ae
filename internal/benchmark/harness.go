// Package benchmark evaluates prompt strategies against a labelled dataset
// on the inference bridge and ranks them.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/normanking/quadrant/internal/inference"
	"github.com/normanking/quadrant/internal/logging"
	"github.com/normanking/quadrant/internal/prompts"
	"github.com/normanking/quadrant/internal/quadrant"
)

// Fixed sampling parameters so strategies are comparable.
const (
	MaxTokens   = 150
	Temperature = 0.1
	TopP        = 0.9

	// DefaultTarget is the accuracy the best strategy should reach.
	DefaultTarget = 0.70
	// DefaultExcellent is the accuracy considered excellent.
	DefaultExcellent = 0.80
)

// Runtime is the part of the inference bridge the harness drives.
type Runtime interface {
	Load(ctx context.Context, spec inference.LoadSpec) inference.LoadOutcome
	Generate(ctx context.Context, params inference.GenerateParams) inference.GenerateOutcome
	Unload() error
}

// CaseResult is the outcome of one case under one strategy.
type CaseResult struct {
	CaseID     string            `json:"case_id"`
	Expected   quadrant.Quadrant `json:"expected"`
	Predicted  quadrant.Quadrant `json:"predicted,omitempty"`
	Correct    bool              `json:"correct"`
	ParseTier  string            `json:"parse_tier,omitempty"`
	Latency    time.Duration     `json:"latency"`
	Tokens     int               `json:"tokens"`
	Failure    string            `json:"failure,omitempty"`
	ParseError bool              `json:"parse_error,omitempty"`
}

// StrategyResult is the aggregate for one strategy. Fresh per run.
type StrategyResult struct {
	Strategy           prompts.Strategy `json:"strategy"`
	Accuracy           float64          `json:"accuracy"`
	Correct            int              `json:"correct"`
	Total              int              `json:"total"`
	ParseFailures      int              `json:"parse_failures"`
	GenerationFailures int              `json:"generation_failures"`
	MeanLatency        time.Duration    `json:"mean_latency"`
	P50Latency         time.Duration    `json:"p50_latency"`
	P95Latency         time.Duration    `json:"p95_latency"`
	TokensPerSecond    float64          `json:"tokens_per_second"`
	Categories         []CategoryStats  `json:"categories"`
	Confusion          Confusion        `json:"confusion"`
	ParseTiers         map[string]int   `json:"parse_tiers"`
	Cases              []CaseResult     `json:"cases,omitempty"`
}

// Report is the ranked outcome of an evaluation.
type Report struct {
	Dataset   string           `json:"dataset,omitempty"`
	Cases     int              `json:"cases"`
	Results   []StrategyResult `json:"results"` // ranked best first
	Target    float64          `json:"target"`
	Excellent float64          `json:"excellent"`
	Duration  time.Duration    `json:"duration"`
	LoadTime  time.Duration    `json:"load_time,omitempty"`
	Degraded  bool             `json:"degraded"`
	StartedAt time.Time        `json:"started_at"`
}

// Best returns the top-ranked strategy, or nil for an empty report.
func (r *Report) Best() *StrategyResult {
	if len(r.Results) == 0 {
		return nil
	}
	return &r.Results[0]
}

// MeetsTarget reports whether the best strategy reaches the target accuracy.
func (r *Report) MeetsTarget() bool {
	b := r.Best()
	return b != nil && b.Accuracy >= r.Target
}

// IsExcellent reports whether the best strategy reaches the excellent accuracy.
func (r *Report) IsExcellent() bool {
	b := r.Best()
	return b != nil && b.Accuracy >= r.Excellent
}

// ═══════════════════════════════════════════════════════════════════════════════
// HARNESS
// ═══════════════════════════════════════════════════════════════════════════════

// Harness runs strategies against cases on one runtime.
type Harness struct {
	runtime   Runtime
	store     *prompts.Store
	target    float64
	excellent float64
	keepCases bool
	progress  func(strategy prompts.Strategy, done, total int)
	log       *logging.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithTargets overrides the target and excellent accuracies.
func WithTargets(target, excellent float64) Option {
	return func(h *Harness) {
		h.target = target
		h.excellent = excellent
	}
}

// WithPromptStore uses a custom strategy table.
func WithPromptStore(s *prompts.Store) Option {
	return func(h *Harness) {
		if s != nil {
			h.store = s
		}
	}
}

// WithCaseResults keeps per-case results in the report.
func WithCaseResults(keep bool) Option {
	return func(h *Harness) {
		h.keepCases = keep
	}
}

// WithProgress installs a callback invoked after every case.
func WithProgress(fn func(strategy prompts.Strategy, done, total int)) Option {
	return func(h *Harness) {
		h.progress = fn
	}
}

// New creates a harness over rt.
func New(rt Runtime, opts ...Option) *Harness {
	h := &Harness{
		runtime:   rt,
		store:     prompts.Default(),
		target:    DefaultTarget,
		excellent: DefaultExcellent,
		log:       logging.Global().WithComponent("benchmark"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run loads the model, evaluates every strategy and unloads. The harness
// holds exactly one model handle for the whole run.
func (h *Harness) Run(ctx context.Context, spec inference.LoadSpec, strategies []prompts.Strategy, cases []Case) (*Report, error) {
	load := h.runtime.Load(ctx, spec)
	if !load.Success {
		return nil, load.Err()
	}
	defer func() {
		if err := h.runtime.Unload(); err != nil {
			h.log.Warn("[Benchmark] unload failed: %v", err)
		}
	}()
	h.log.Info("[Benchmark] model loaded in %v (degraded=%v)", load.LoadTime.Round(time.Millisecond), load.Degraded)

	report, err := h.Evaluate(ctx, strategies, cases)
	if err != nil {
		return nil, err
	}
	report.LoadTime = load.LoadTime
	report.Degraded = load.Degraded
	return report, nil
}

// Evaluate runs every strategy over every case on the already loaded model
// and returns the ranked report.
func (h *Harness) Evaluate(ctx context.Context, strategies []prompts.Strategy, cases []Case) (*Report, error) {
	if len(strategies) == 0 {
		return nil, errors.New("no strategies to evaluate")
	}
	if len(cases) == 0 {
		return nil, errors.New("no benchmark cases")
	}
	for _, s := range strategies {
		if !h.store.Has(s) {
			return nil, fmt.Errorf("unknown strategy %q", s)
		}
	}

	report := &Report{
		Cases:     len(cases),
		Target:    h.target,
		Excellent: h.excellent,
		StartedAt: time.Now(),
	}

	for _, s := range strategies {
		res, err := h.evaluateStrategy(ctx, s, cases)
		if err != nil {
			return nil, err
		}
		h.log.Info("[Benchmark] %s: accuracy %.1f%% (%d/%d), %d parse failures, mean %v",
			s, res.Accuracy*100, res.Correct, res.Total, res.ParseFailures, res.MeanLatency.Round(time.Millisecond))
		report.Results = append(report.Results, res)
	}

	Rank(report.Results)
	report.Duration = time.Since(report.StartedAt)
	return report, nil
}

func (h *Harness) evaluateStrategy(ctx context.Context, s prompts.Strategy, cases []Case) (StrategyResult, error) {
	res := StrategyResult{
		Strategy:   s,
		Total:      len(cases),
		ParseTiers: make(map[string]int),
	}
	var (
		latencies   []time.Duration
		totalTokens int
		genTime     time.Duration
	)

	for i, c := range cases {
		if err := ctx.Err(); err != nil {
			return StrategyResult{}, err
		}

		cr := h.evaluateCase(ctx, s, c)
		latencies = append(latencies, cr.Latency)

		switch {
		case cr.Failure != "" && !cr.ParseError:
			res.GenerationFailures++
			res.Confusion.Miss(c.Expected)
		case cr.ParseError:
			res.ParseFailures++
			res.Confusion.Miss(c.Expected)
		default:
			res.Confusion.Add(c.Expected, cr.Predicted)
			res.ParseTiers[cr.ParseTier]++
		}
		if cr.Failure == "" || cr.ParseError {
			totalTokens += cr.Tokens
			genTime += cr.Latency
		}
		if h.keepCases {
			res.Cases = append(res.Cases, cr)
		}
		if h.progress != nil {
			h.progress(s, i+1, len(cases))
		}
	}

	res.Correct = res.Confusion.Correct()
	res.Accuracy = ratio(res.Correct, res.Total)
	res.MeanLatency = Mean(latencies)
	res.P50Latency = Percentile(latencies, 50)
	res.P95Latency = Percentile(latencies, 95)
	if genTime > 0 {
		res.TokensPerSecond = float64(totalTokens) / genTime.Seconds()
	}
	for _, q := range quadrant.All() {
		res.Categories = append(res.Categories, res.Confusion.Category(q))
	}
	return res, nil
}

func (h *Harness) evaluateCase(ctx context.Context, s prompts.Strategy, c Case) CaseResult {
	cr := CaseResult{CaseID: c.ID, Expected: c.Expected}

	prompt, err := h.store.Build(s, c.Text)
	if err != nil {
		cr.Failure = err.Error()
		return cr
	}

	start := time.Now()
	out := h.runtime.Generate(ctx, inference.GenerateParams{
		Prompt:      prompt,
		MaxTokens:   MaxTokens,
		Temperature: Temperature,
		TopP:        TopP,
	})
	cr.Latency = out.Duration
	if cr.Latency <= 0 {
		cr.Latency = time.Since(start)
	}
	if !out.Success {
		cr.Failure = out.Reason
		h.log.Debug("[Benchmark] %s/%s generation failed: %s", s, c.ID, out.Reason)
		return cr
	}
	cr.Tokens = out.Tokens

	parsed, err := prompts.Parse(out.Text)
	if err != nil {
		cr.Failure = err.Error()
		cr.ParseError = true
		return cr
	}
	cr.Predicted = parsed.Quadrant
	cr.ParseTier = parsed.Tier.String()
	cr.Correct = parsed.Quadrant == c.Expected
	return cr
}

// Rank sorts results by accuracy descending, then mean latency ascending.
func Rank(results []StrategyResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Accuracy != results[j].Accuracy {
			return results[i].Accuracy > results[j].Accuracy
		}
		return results[i].MeanLatency < results[j].MeanLatency
	})
}
