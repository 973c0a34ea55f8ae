package prompts

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStore_Strategies(t *testing.T) {
	want := []Strategy{Baseline, Structured, ChainOfThought, FewShot, Persona, Combined}
	if diff := cmp.Diff(want, Default().Strategies()); diff != "" {
		t.Errorf("Strategies() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, Default().Version())
}

func TestBuild_EveryStrategyEndsWithTaskLine(t *testing.T) {
	task := "Prepare the board deck"

	for _, id := range Default().Strategies() {
		t.Run(string(id), func(t *testing.T) {
			prompt, err := Build(id, task)
			require.NoError(t, err)

			assert.Contains(t, prompt, "Eisenhower")

			last := strings.LastIndex(prompt, "Task:")
			require.GreaterOrEqual(t, last, 0)
			line := strings.SplitN(prompt[last+len("Task:"):], "\n", 2)[0]
			assert.Equal(t, task, strings.TrimSpace(line))
		})
	}
}

func TestBuild_FewShotIncludesExamples(t *testing.T) {
	prompt, err := Build(FewShot, "Water the plants")
	require.NoError(t, err)

	assert.Contains(t, prompt, "Production database is down")
	assert.Contains(t, prompt, `"category": "ELIMINATE"`)
}

func TestBuild_NormalizesWhitespace(t *testing.T) {
	prompt, err := Build(Baseline, "  fix\nthe   login\tbug ")
	require.NoError(t, err)
	assert.Contains(t, prompt, "Task: fix the login bug")
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(Strategy("telepathy"), "x")
	assert.Error(t, err)

	_, err = Build(Baseline, "   ")
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	tests := map[string]Strategy{
		"baseline":          Baseline,
		"chain-of-thought":  ChainOfThought,
		"FEW_SHOT":          FewShot,
		"structured-output": Structured,
	}
	for in, want := range tests {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseStrategy("zero-shot-magic")
	assert.Error(t, err)
}

func TestLoad_RejectsDuplicates(t *testing.T) {
	_, err := Load([]byte(`
strategies:
  - id: a
    template: "Task: {{.Task}}"
  - id: a
    template: "Task: {{.Task}}"
`))
	assert.Error(t, err)
}
