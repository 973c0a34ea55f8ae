package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/normanking/quadrant/internal/quadrant"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SIMULATED BACKEND - Degraded stand-in with the real runtime's timing shape
// ═══════════════════════════════════════════════════════════════════════════════

const (
	SimulatedTokensPerSecond = 18
	SimulatedLoadDelay       = 3500 * time.Millisecond
	SimulatedMemoryBytes     = int64(2_400_000_000)

	// SimulatedClassifyTokens is the token count reported for a classification.
	SimulatedClassifyTokens = 50

	simulatedUnparsableTokens = 30
	simulatedGenericTokens    = 20

	simulatedGenericReply = "Simulated runtime response. Load a real model to get generated text."
)

// SimulatedConfig tunes the simulated backend. Zero values take the defaults.
type SimulatedConfig struct {
	TokensPerSecond float64
	LoadDelay       time.Duration
	MemoryBytes     int64

	// NoDelay disables load and generation sleeps.
	NoDelay bool
}

// Simulated answers classification prompts with the pattern classifier and
// sleeps in proportion to the tokens it reports.
type Simulated struct {
	cfg        SimulatedConfig
	classifier *quadrant.PatternClassifier
	open       atomic.Int64
}

// NewSimulated creates a simulated backend.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	if cfg.TokensPerSecond <= 0 {
		cfg.TokensPerSecond = SimulatedTokensPerSecond
	}
	if cfg.LoadDelay == 0 {
		cfg.LoadDelay = SimulatedLoadDelay
	}
	if cfg.MemoryBytes <= 0 {
		cfg.MemoryBytes = SimulatedMemoryBytes
	}
	return &Simulated{
		cfg:        cfg,
		classifier: quadrant.NewPatternClassifier(),
	}
}

func (s *Simulated) Name() string   { return ModeSimulated }
func (s *Simulated) Degraded() bool { return true }
func (s *Simulated) Init() error    { return nil }
func (s *Simulated) Shutdown() error {
	return nil
}

// OpenHandles reports how many handles are currently open.
func (s *Simulated) OpenHandles() int64 {
	return s.open.Load()
}

// Open simulates loading weights.
func (s *Simulated) Open(ctx context.Context, spec LoadSpec) (Handle, error) {
	if !s.cfg.NoDelay {
		if err := sleepCtx(ctx, s.cfg.LoadDelay); err != nil {
			return nil, err
		}
	}
	s.open.Add(1)
	return &simulatedHandle{backend: s}, nil
}

type simulatedHandle struct {
	backend *Simulated
	closed  atomic.Bool
}

func (h *simulatedHandle) MemoryBytes() int64 {
	return h.backend.cfg.MemoryBytes
}

func (h *simulatedHandle) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		h.backend.open.Add(-1)
	}
	return nil
}

func (h *simulatedHandle) Generate(ctx context.Context, params GenerateParams) (string, int, error) {
	if h.closed.Load() {
		return "", 0, fmt.Errorf("handle closed")
	}

	text, tokens := h.backend.respond(params.Prompt)
	if params.MaxTokens > 0 && tokens > params.MaxTokens {
		tokens = params.MaxTokens
	}

	if err := sleepCtx(ctx, h.backend.GenerationTime(tokens)); err != nil {
		return "", 0, err
	}
	return text, tokens, nil
}

// GenerationTime is how long a generation of tokens takes.
func (s *Simulated) GenerationTime(tokens int) time.Duration {
	if s.cfg.NoDelay {
		return 0
	}
	return time.Duration(float64(tokens) * float64(time.Second) / s.cfg.TokensPerSecond)
}

// simulatedAnswer is the JSON shape the simulated runtime emits.
type simulatedAnswer struct {
	Quadrant   string  `json:"quadrant"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

var simulatedLabels = map[quadrant.Quadrant]string{
	quadrant.DoFirst:   "DO",
	quadrant.Schedule:  "SCHEDULE",
	quadrant.Delegate:  "DELEGATE",
	quadrant.Eliminate: "ELIMINATE",
}

func (s *Simulated) respond(prompt string) (string, int) {
	if !strings.Contains(prompt, "Eisenhower") && !strings.Contains(prompt, "quadrant") {
		return simulatedGenericReply, simulatedGenericTokens
	}

	task, ok := taskLine(prompt)
	if !ok {
		return encodeAnswer(simulatedAnswer{
			Quadrant:   simulatedLabels[quadrant.Schedule],
			Confidence: 0.5,
			Reasoning:  "Unable to parse task",
		}), simulatedUnparsableTokens
	}

	res := s.classifier.Classify(task)
	return encodeAnswer(simulatedAnswer{
		Quadrant:   simulatedLabels[res.Quadrant],
		Confidence: res.Confidence,
		Reasoning:  res.Reasoning,
	}), SimulatedClassifyTokens
}

// taskLine returns the text after the last "Task:" marker up to the end of
// that line. Few-shot prompts carry earlier example tasks.
func taskLine(prompt string) (string, bool) {
	i := strings.LastIndex(prompt, "Task:")
	if i < 0 {
		return "", false
	}
	rest := prompt[i+len("Task:"):]
	if j := strings.IndexByte(rest, '\n'); j >= 0 {
		rest = rest[:j]
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

func encodeAnswer(a simulatedAnswer) string {
	b, _ := json.Marshal(a)
	return string(b)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
