package prompts

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/quadrant/internal/quadrant"
)

// ============================================================================
// Tier 1: JSON
// ============================================================================

func TestParse_JSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Parsed
	}{
		{
			name: "clean object",
			raw:  `{"category": "DO_FIRST", "confidence": 0.92, "reasoning": "outage"}`,
			want: Parsed{Quadrant: quadrant.DoFirst, Confidence: 0.92, Reasoning: "outage", Urgent: true, Important: true, Tier: TierJSON},
		},
		{
			name: "runtime stub shape",
			raw:  `{"quadrant": "DO", "confidence": 0.85, "reasoning": "Task is both urgent and important"}`,
			want: Parsed{Quadrant: quadrant.DoFirst, Confidence: 0.85, Reasoning: "Task is both urgent and important", Urgent: true, Important: true, Tier: TierJSON},
		},
		{
			name: "surrounded by prose",
			raw:  "Sure! Here is my answer:\n```json\n{\"category\": \"schedule\", \"confidence\": \"0.7\"}\n```\nHope that helps.",
			want: Parsed{Quadrant: quadrant.Schedule, Confidence: 0.7, Reasoning: defaultReasoning, Important: true, Tier: TierJSON},
		},
		{
			name: "missing confidence defaults",
			raw:  `{"Category": "Q3"}`,
			want: Parsed{Quadrant: quadrant.Delegate, Confidence: DefaultJSONConfidence, Reasoning: defaultReasoning, Urgent: true, Tier: TierJSON},
		},
		{
			name: "percent confidence",
			raw:  `{"category": "ELIMINATE", "confidence": 80, "reasoning": ""}`,
			want: Parsed{Quadrant: quadrant.Eliminate, Confidence: 0.8, Reasoning: defaultReasoning, Tier: TierJSON},
		},
		{
			name: "malformed confidence",
			raw:  `{"category": "ELIMINATE", "confidence": "very", "urgent": true}`,
			want: Parsed{Quadrant: quadrant.Eliminate, Confidence: DefaultJSONConfidence, Reasoning: defaultReasoning, Urgent: true, Tier: TierJSON},
		},
		{
			name: "out of range confidence clamped",
			raw:  `{"category": "SCHEDULE", "confidence": 250}`,
			want: Parsed{Quadrant: quadrant.Schedule, Confidence: 1, Reasoning: defaultReasoning, Important: true, Tier: TierJSON},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_JSONWithUnknownCategoryFallsThrough(t *testing.T) {
	got, err := Parse(`{"category": "URGENT-ISH", "confidence": 0.9} I would delegate this.`)
	require.NoError(t, err)
	assert.Equal(t, TierFrequency, got.Tier)
	assert.Equal(t, quadrant.Delegate, got.Quadrant)
}

// ============================================================================
// Tier 2: chain of thought
// ============================================================================

func TestParse_ChainOfThought(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		urgent    bool
		important bool
		want      quadrant.Quadrant
	}{
		{
			name:      "yes yes",
			raw:       "Step 1: Is it urgent? Yes, customers are blocked.\nStep 2: Is it important? Yes, revenue.\nStep 3: so it goes first.",
			urgent:    true,
			important: true,
			want:      quadrant.DoFirst,
		},
		{
			name:      "no yes",
			raw:       "Step 1: Urgent? No, nothing is due soon.\nStep 2: Important? Yes, long-term growth.",
			important: true,
			want:      quadrant.Schedule,
		},
		{
			name:   "negated phrasing",
			raw:    "Step 1 - The task is urgent because the deadline is close.\nStep 2 - It is not important for our goals.",
			urgent: true,
			want:   quadrant.Delegate,
		},
		{
			name: "both in one step",
			raw:  "Step 1: not urgent, and important: no.",
			want: quadrant.Schedule,
		},
		{
			name:      "negated after the label",
			raw:       "Step 1: Urgency: the task is not urgent.\nStep 2: Importance: it is important for the roadmap.",
			important: true,
			want:      quadrant.Schedule,
		},
		{
			name:      "negated verdict without answer word",
			raw:       "Step 1: Urgency - Not urgent.\nStep 2: Importance - Yes.",
			important: true,
			want:      quadrant.Schedule,
		},
		{
			name:      "question then negated answer",
			raw:       "Step 1: Is it urgent? It is not urgent at all.\nStep 2: Is it important? Yes.",
			important: true,
			want:      quadrant.Schedule,
		},
		{
			name:   "non-important",
			raw:    "Step 1: Urgent: yes, due tonight.\nStep 2: Importance: a non-important chore.",
			urgent: true,
			want:   quadrant.Delegate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, TierChainOfThought, got.Tier)
			assert.Equal(t, tt.urgent, got.Urgent, "urgent")
			assert.Equal(t, tt.important, got.Important, "important")
			assert.Equal(t, tt.want, got.Quadrant)
			assert.Equal(t, ChainOfThoughtConfidence, got.Confidence)
		})
	}
}

func TestParse_ChainOfThoughtNeedsBothVerdicts(t *testing.T) {
	got, err := Parse("Step 1: It is urgent.\nStep 2: Hard to say. Final answer: DELEGATE")
	require.NoError(t, err)
	assert.Equal(t, TierFrequency, got.Tier)
	assert.Equal(t, quadrant.Delegate, got.Quadrant)
}

// ============================================================================
// Tier 3: frequency
// ============================================================================

func TestParse_Frequency(t *testing.T) {
	got, err := Parse("I'd schedule it. Definitely schedule, not delegate.")
	require.NoError(t, err)
	assert.Equal(t, TierFrequency, got.Tier)
	assert.Equal(t, quadrant.Schedule, got.Quadrant)
	assert.Equal(t, FrequencyConfidence, got.Confidence)
}

func TestParse_FrequencyTieUsesQuadrantOrder(t *testing.T) {
	got, err := Parse("eliminate or do first?")
	require.NoError(t, err)
	assert.Equal(t, quadrant.DoFirst, got.Quadrant)
}

// ============================================================================
// Failure
// ============================================================================

func TestParse_Failure(t *testing.T) {
	for _, raw := range []string{"", "???", "I cannot help with that.", "{not json}"} {
		_, err := Parse(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, quadrant.ErrParseFailure))
	}
}

func TestParsed_Result(t *testing.T) {
	p := Parsed{Quadrant: quadrant.Schedule, Confidence: 0.8, Reasoning: "r", Important: true, Tier: TierJSON}
	res := p.Result("neural", quadrant.KindNeural)

	assert.Equal(t, quadrant.Schedule, res.Quadrant)
	assert.Equal(t, "neural", res.Provenance.ProviderID)
	assert.Equal(t, quadrant.KindNeural, res.Provenance.Kind)
	assert.True(t, res.Important)
	assert.False(t, res.Urgent)
}
