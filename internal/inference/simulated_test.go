package inference

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/quadrant/internal/prompts"
)

func TestSimulated_Respond(t *testing.T) {
	sim := fastSimulated()

	tests := []struct {
		name     string
		prompt   string
		tokens   int
		quadrant string
	}{
		{"generic prompt", "Write a haiku about autumn.", simulatedGenericTokens, ""},
		{"classification without task", "Which Eisenhower quadrant fits?", simulatedUnparsableTokens, "SCHEDULE"},
		{"classification", "Pick a quadrant.\nTask: Scroll through social media and browse youtube\n", SimulatedClassifyTokens, "ELIMINATE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, tokens := sim.respond(tt.prompt)
			assert.Equal(t, tt.tokens, tokens)
			if tt.quadrant == "" {
				assert.Equal(t, simulatedGenericReply, text)
				return
			}
			var a simulatedAnswer
			require.NoError(t, json.Unmarshal([]byte(text), &a))
			assert.Equal(t, tt.quadrant, a.Quadrant)
			assert.GreaterOrEqual(t, a.Confidence, 0.0)
			assert.LessOrEqual(t, a.Confidence, 1.0)
		})
	}
}

func TestSimulated_UsesLastTaskLine(t *testing.T) {
	prompt, err := prompts.Build(prompts.FewShot, "Plan the quarterly roadmap with the board")
	require.NoError(t, err)

	task, ok := taskLine(prompt)
	require.True(t, ok)
	assert.Equal(t, "Plan the quarterly roadmap with the board", task)

	text, _ := fastSimulated().respond(prompt)
	var a simulatedAnswer
	require.NoError(t, json.Unmarshal([]byte(text), &a))
	assert.Equal(t, "SCHEDULE", a.Quadrant)
}

func TestSimulated_UnparsableAnswerParses(t *testing.T) {
	text, _ := fastSimulated().respond("Eisenhower classification please")
	parsed, err := prompts.Parse(text)
	require.NoError(t, err)
	assert.Equal(t, prompts.TierJSON, parsed.Tier)
	assert.Equal(t, 0.5, parsed.Confidence)
	assert.Equal(t, "Unable to parse task", parsed.Reasoning)
}

func TestSimulated_DelayProportionalToTokens(t *testing.T) {
	// 20 generic tokens at 400 tok/s is 50ms.
	sim := NewSimulated(SimulatedConfig{TokensPerSecond: 400, LoadDelay: time.Millisecond})
	h, err := sim.Open(context.Background(), LoadSpec{})
	require.NoError(t, err)
	defer h.Close()

	start := time.Now()
	_, tokens, err := h.Generate(context.Background(), GenerateParams{Prompt: "hello", MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, simulatedGenericTokens, tokens)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSimulated_TokensCappedByMaxTokens(t *testing.T) {
	h, err := fastSimulated().Open(context.Background(), LoadSpec{})
	require.NoError(t, err)
	defer h.Close()

	_, tokens, err := h.Generate(context.Background(), GenerateParams{Prompt: classifyPrompt, MaxTokens: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, tokens)
}

func TestSimulated_GenerateHonorsContext(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{TokensPerSecond: 1, LoadDelay: time.Millisecond})
	h, err := sim.Open(context.Background(), LoadSpec{})
	require.NoError(t, err)
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err = h.Generate(ctx, GenerateParams{Prompt: "hello", MaxTokens: 100})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimulated_ClosedHandle(t *testing.T) {
	sim := fastSimulated()
	h, err := sim.Open(context.Background(), LoadSpec{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sim.OpenHandles())

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Equal(t, int64(0), sim.OpenHandles())

	_, _, err = h.Generate(context.Background(), GenerateParams{Prompt: "x", MaxTokens: 1})
	assert.Error(t, err)
}
