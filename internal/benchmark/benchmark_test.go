package benchmark

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/quadrant/internal/inference"
	"github.com/normanking/quadrant/internal/prompts"
	"github.com/normanking/quadrant/internal/quadrant"
)

// ============================================================================
// Fake runtime
// ============================================================================

type fakeRuntime struct {
	mu       sync.Mutex
	respond  func(prompt string) inference.GenerateOutcome
	loadFail string
	loads    int
	unloads  int
	prompts  []string
}

func (f *fakeRuntime) Load(ctx context.Context, spec inference.LoadSpec) inference.LoadOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadFail != "" {
		return inference.LoadOutcome{Reason: f.loadFail}
	}
	return inference.LoadOutcome{Success: true, LoadTime: 5 * time.Millisecond}
}

func (f *fakeRuntime) Generate(ctx context.Context, p inference.GenerateParams) inference.GenerateOutcome {
	f.mu.Lock()
	f.prompts = append(f.prompts, p.Prompt)
	f.mu.Unlock()
	return f.respond(p.Prompt)
}

func (f *fakeRuntime) Unload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloads++
	return nil
}

func answer(text string, d time.Duration) inference.GenerateOutcome {
	return inference.GenerateOutcome{Success: true, Text: text, Tokens: 10, Duration: d}
}

// taskOf returns the task embedded in a built prompt.
func taskOf(prompt string) string {
	i := strings.LastIndex(prompt, "Task:")
	return strings.TrimSpace(prompt[i+len("Task:"):])
}

func cases() []Case {
	return []Case{
		{ID: "1", Text: "Production is down", Expected: quadrant.DoFirst},
		{ID: "2", Text: "Plan the roadmap", Expected: quadrant.Schedule},
		{ID: "3", Text: "Order supplies", Expected: quadrant.Delegate},
		{ID: "4", Text: "Browse memes", Expected: quadrant.Eliminate},
	}
}

// ============================================================================
// Dataset
// ============================================================================

func TestDefaultDataset(t *testing.T) {
	ds, err := DefaultDataset()
	require.NoError(t, err)
	assert.Equal(t, "eisenhower@v1", ds.Label())
	assert.Len(t, ds.Cases, 40)
	for _, q := range quadrant.All() {
		assert.Len(t, ds.Filter(q), 10, q)
	}
	for _, c := range ds.Cases {
		assert.True(t, c.Expected.IsValid(), c.ID)
		assert.NotEmpty(t, c.Text, c.ID)
	}
}

func TestParseDataset_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"name":`},
		{"missing cases", `{"name":"x","version":"1"}`},
		{"empty cases", `{"name":"x","version":"1","cases":[]}`},
		{"unknown quadrant", `{"name":"x","version":"1","cases":[{"id":"a","text":"t","quadrant":"urgent"}]}`},
		{"blank text", `{"name":"x","version":"1","cases":[{"id":"a","text":"   ","quadrant":"schedule"}]}`},
		{"extra field", `{"name":"x","version":"1","cases":[{"id":"a","text":"t","quadrant":"schedule","label":"x"}]}`},
		{"bad version", `{"name":"x","version":"v1","cases":[{"id":"a","text":"t","quadrant":"schedule"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDataset([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseDataset_DuplicateIDs(t *testing.T) {
	_, err := ParseDataset([]byte(`{"name":"x","version":"1","cases":[
		{"id":"a","text":"one","quadrant":"schedule"},
		{"id":"a","text":"two","quadrant":"delegate"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate case id")
}

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"mine","version":"2.1","cases":[
		{"id":"a","text":"  Renew passport  ","quadrant":"schedule"}]}`), 0644))

	ds, err := LoadDataset(path)
	require.NoError(t, err)
	want := &Dataset{Name: "mine", Version: "2.1", Cases: []Case{{ID: "a", Text: "Renew passport", Expected: quadrant.Schedule}}}
	if diff := cmp.Diff(want, ds); diff != "" {
		t.Errorf("dataset mismatch (-want +got):\n%s", diff)
	}

	_, err = LoadDataset(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// ============================================================================
// Scoring
// ============================================================================

func TestConfusion_Category(t *testing.T) {
	var c Confusion
	c.Add(quadrant.DoFirst, quadrant.DoFirst)
	c.Add(quadrant.DoFirst, quadrant.DoFirst)
	c.Add(quadrant.DoFirst, quadrant.Schedule)
	c.Add(quadrant.Schedule, quadrant.DoFirst)
	c.Miss(quadrant.Schedule)
	c.Add(quadrant.Delegate, "")

	assert.Equal(t, 2, c.Correct())
	assert.Equal(t, 6, c.Total())

	do := c.Category(quadrant.DoFirst)
	assert.Equal(t, CategoryStats{
		Quadrant: quadrant.DoFirst, TruePositives: 2, FalsePositives: 1, FalseNegatives: 1,
		Support: 3, Precision: 2.0 / 3.0, Recall: 2.0 / 3.0,
	}, do)

	sch := c.Category(quadrant.Schedule)
	assert.Equal(t, 0, sch.TruePositives)
	assert.Equal(t, 2, sch.FalseNegatives) // one mislabel, one miss
	assert.Equal(t, 0.0, sch.Precision)

	// Zero denominators yield zero, not NaN.
	elim := c.Category(quadrant.Eliminate)
	assert.Equal(t, 0.0, elim.Precision)
	assert.Equal(t, 0.0, elim.Recall)
}

func TestPercentileAndMean(t *testing.T) {
	ms := func(n ...int) []time.Duration {
		out := make([]time.Duration, len(n))
		for i, v := range n {
			out[i] = time.Duration(v) * time.Millisecond
		}
		return out
	}
	samples := ms(50, 10, 40, 20, 30)

	assert.Equal(t, 30*time.Millisecond, Percentile(samples, 50))
	assert.Equal(t, 50*time.Millisecond, Percentile(samples, 95))
	assert.Equal(t, 10*time.Millisecond, Percentile(samples, 0))
	assert.Equal(t, 50*time.Millisecond, Percentile(samples, 100))
	assert.Equal(t, 30*time.Millisecond, Mean(samples))
	assert.Zero(t, Percentile(nil, 50))
	assert.Zero(t, Mean(nil))

	// Input order is untouched.
	assert.Equal(t, 50*time.Millisecond, samples[0])
}

// ============================================================================
// Harness
// ============================================================================

func TestEvaluate_AccuracyCountsParseFailures(t *testing.T) {
	rt := &fakeRuntime{respond: func(prompt string) inference.GenerateOutcome {
		switch taskOf(prompt) {
		case "Production is down":
			return answer(`{"category": "DO", "confidence": 0.9}`, 10*time.Millisecond)
		case "Plan the roadmap":
			return answer(`{"category": "SCHEDULE"}`, 10*time.Millisecond)
		case "Order supplies":
			return answer("I am not sure what you mean.", 10*time.Millisecond)
		default:
			return inference.GenerateOutcome{Reason: "no model loaded"}
		}
	}}

	report, err := New(rt, WithCaseResults(true)).Evaluate(context.Background(), []prompts.Strategy{prompts.Structured}, cases())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Correct)
	assert.Equal(t, 0.5, res.Accuracy)
	assert.Equal(t, 1, res.ParseFailures)
	assert.Equal(t, 1, res.GenerationFailures)
	assert.Equal(t, map[string]int{"json": 2}, res.ParseTiers)
	assert.Len(t, res.Cases, 4)
	assert.Equal(t, 4, res.Confusion.Total())

	// Failures are false negatives for their true quadrant.
	assert.Equal(t, 1, res.Categories[quadrant.Delegate.Index()].FalseNegatives)
	assert.Equal(t, 0.0, res.Categories[quadrant.Eliminate.Index()].Recall)
	assert.Equal(t, 1.0, res.Categories[quadrant.DoFirst.Index()].Precision)

	for _, p := range rt.prompts {
		assert.Contains(t, p, "Eisenhower")
	}
}

func TestEvaluate_AllParseFailures(t *testing.T) {
	rt := &fakeRuntime{respond: func(string) inference.GenerateOutcome {
		return answer("no idea", time.Millisecond)
	}}
	ds, err := DefaultDataset()
	require.NoError(t, err)

	report, err := New(rt).Evaluate(context.Background(), []prompts.Strategy{prompts.Baseline}, ds.Cases)
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, 0.0, res.Accuracy)
	assert.Equal(t, len(ds.Cases), res.ParseFailures)
	assert.Zero(t, res.GenerationFailures)
	assert.False(t, report.MeetsTarget())
}

func TestEvaluate_RankingByAccuracyThenLatency(t *testing.T) {
	rt := &fakeRuntime{respond: func(prompt string) inference.GenerateOutcome {
		d := 20 * time.Millisecond
		switch taskOf(prompt) {
		case "Production is down":
			return answer(`{"quadrant":"do_first"}`, d)
		case "Plan the roadmap":
			return answer(`{"quadrant":"schedule"}`, d)
		case "Order supplies":
			return answer(`{"quadrant":"delegate"}`, d)
		}
		if strings.Contains(prompt, "Step 1") {
			// Chain-of-thought prompts get the last case wrong.
			return answer(`{"quadrant":"schedule"}`, d)
		}
		return answer(`{"quadrant":"eliminate"}`, d)
	}}

	strategies := []prompts.Strategy{prompts.ChainOfThought, prompts.Baseline, prompts.Structured}
	report, err := New(rt).Evaluate(context.Background(), strategies, cases())
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	assert.Equal(t, 1.0, report.Results[0].Accuracy)
	assert.Equal(t, 1.0, report.Results[1].Accuracy)
	assert.Equal(t, prompts.ChainOfThought, report.Results[2].Strategy)
	assert.Equal(t, 0.75, report.Results[2].Accuracy)
	assert.True(t, report.IsExcellent())
	assert.True(t, report.MeetsTarget())
}

func TestRank_TieBrokenByLatency(t *testing.T) {
	results := []StrategyResult{
		{Strategy: "slow", Accuracy: 0.8, MeanLatency: 300 * time.Millisecond},
		{Strategy: "worse", Accuracy: 0.6, MeanLatency: time.Millisecond},
		{Strategy: "fast", Accuracy: 0.8, MeanLatency: 100 * time.Millisecond},
	}
	Rank(results)

	var got []prompts.Strategy
	for _, r := range results {
		got = append(got, r.Strategy)
	}
	assert.Equal(t, []prompts.Strategy{"fast", "slow", "worse"}, got)
}

func TestEvaluate_Validation(t *testing.T) {
	h := New(&fakeRuntime{respond: func(string) inference.GenerateOutcome { return answer("{}", 0) }})

	_, err := h.Evaluate(context.Background(), nil, cases())
	assert.Error(t, err)
	_, err = h.Evaluate(context.Background(), []prompts.Strategy{prompts.Baseline}, nil)
	assert.Error(t, err)
	_, err = h.Evaluate(context.Background(), []prompts.Strategy{"telepathy"}, cases())
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestEvaluate_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	rt := &fakeRuntime{respond: func(string) inference.GenerateOutcome {
		calls++
		cancel()
		return answer(`{"quadrant":"schedule"}`, time.Millisecond)
	}}

	_, err := New(rt).Evaluate(ctx, []prompts.Strategy{prompts.Baseline}, cases())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestEvaluate_TargetsAndProgress(t *testing.T) {
	rt := &fakeRuntime{respond: func(string) inference.GenerateOutcome {
		return answer(`{"quadrant":"do_first"}`, time.Millisecond)
	}}
	var progress []int
	h := New(rt,
		WithTargets(0.25, 0.5),
		WithProgress(func(s prompts.Strategy, done, total int) { progress = append(progress, done) }),
	)

	report, err := h.Evaluate(context.Background(), []prompts.Strategy{prompts.Persona}, cases())
	require.NoError(t, err)
	assert.Equal(t, 0.25, report.Best().Accuracy)
	assert.True(t, report.MeetsTarget())
	assert.False(t, report.IsExcellent())
	assert.Equal(t, []int{1, 2, 3, 4}, progress)
}

func TestRun_LoadsOnceAndUnloads(t *testing.T) {
	rt := &fakeRuntime{respond: func(string) inference.GenerateOutcome {
		return answer(`{"quadrant":"schedule"}`, time.Millisecond)
	}}
	report, err := New(rt).Run(context.Background(), inference.LoadSpec{}, prompts.Default().Strategies(), cases())
	require.NoError(t, err)
	assert.Len(t, report.Results, 6)
	assert.Equal(t, 5*time.Millisecond, report.LoadTime)
	assert.Equal(t, 1, rt.loads)
	assert.Equal(t, 1, rt.unloads)
	assert.Len(t, rt.prompts, 6*len(cases()))
}

func TestRun_LoadFailure(t *testing.T) {
	rt := &fakeRuntime{loadFail: "weights file is empty"}
	_, err := New(rt).Run(context.Background(), inference.LoadSpec{}, []prompts.Strategy{prompts.Baseline}, cases())
	require.Error(t, err)
	assert.ErrorIs(t, err, quadrant.ErrResourceLoad)
	assert.Zero(t, rt.unloads)
}

func TestRun_SimulatedBridge(t *testing.T) {
	bridge := inference.NewBridge(inference.NewSimulated(inference.SimulatedConfig{NoDelay: true}), inference.DefaultConfig())
	defer bridge.Close()

	ds, err := DefaultDataset()
	require.NoError(t, err)

	spec := inference.LoadSpec{ContextSize: 2048, Threads: 4}
	report, err := New(bridge).Run(context.Background(), spec, []prompts.Strategy{prompts.Structured, prompts.FewShot}, ds.Cases)
	require.NoError(t, err)
	assert.True(t, report.Degraded)
	assert.False(t, bridge.Loaded())

	for _, res := range report.Results {
		assert.Equal(t, len(ds.Cases), res.Total)
		assert.Zero(t, res.ParseFailures)
		assert.Zero(t, res.GenerationFailures)
		assert.InDelta(t, float64(res.Correct)/float64(res.Total), res.Accuracy, 1e-9)
		assert.Equal(t, len(ds.Cases), res.ParseTiers["json"])
	}
	// Both strategies carry the same task line, so the simulated model agrees with itself.
	assert.Equal(t, report.Results[0].Correct, report.Results[1].Correct)
}

// ============================================================================
// Rendering
// ============================================================================

func TestReport_Rendering(t *testing.T) {
	rt := &fakeRuntime{respond: func(prompt string) inference.GenerateOutcome {
		return answer(`{"quadrant":"schedule"}`, 2*time.Millisecond)
	}}
	report, err := New(rt).Evaluate(context.Background(), []prompts.Strategy{prompts.Baseline, prompts.Combined}, cases())
	require.NoError(t, err)
	report.Dataset = "eisenhower@v1"

	table := report.Table()
	assert.Contains(t, table, "STRATEGY")
	assert.Contains(t, table, "baseline")
	assert.Contains(t, table, "25.0%")
	assert.Contains(t, table, "below target")

	md := report.Markdown()
	assert.Contains(t, md, "# Strategy benchmark")
	assert.Contains(t, md, "`eisenhower@v1` (4 cases)")
	assert.Contains(t, md, "| 1 | baseline | 25.0% | 1/4 |")
	assert.Contains(t, md, "| Schedule | 0.25 | 1.00 | 1 |")
	assert.Contains(t, md, "## Confusion matrix")

	cat := report.Best().CategoryTable()
	assert.Contains(t, cat, "PRECISION")
	assert.Contains(t, cat, "Do First")
}
