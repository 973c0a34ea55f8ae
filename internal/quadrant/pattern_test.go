package quadrant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// End-to-end scenarios
// ============================================================================

func TestPatternClassifier_Scenarios(t *testing.T) {
	c := NewPatternClassifier()

	tests := []struct {
		name          string
		input         string
		expected      Quadrant
		minConfidence float64
	}{
		{"outage with customers", "Server is down, customers can't access the app", DoFirst, 0.75},
		{"two low-value matches", "Browse social media", Eliminate, 0.6},
		{"delegable without urgency", "Order office supplies", Delegate, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(tt.input)
			assert.Equal(t, tt.expected, res.Quadrant, res.Reasoning)
			assert.GreaterOrEqual(t, res.Confidence, tt.minConfidence)
			assert.Equal(t, PatternProviderID, res.Provenance.ProviderID)
			assert.Equal(t, KindDeterministic, res.Provenance.Kind)
		})
	}
}

// ============================================================================
// Precedence properties
// ============================================================================

func TestPatternClassifier_LowValueWithoutUrgencyIsEliminate(t *testing.T) {
	c := NewPatternClassifier()

	inputs := []string{
		"Browse social media",
		"Scroll instagram for a while",
		"Maybe watch youtube someday",
		"Optional gossip with the team",
		"Browsing reddit memes",
		"Play video games, maybe",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			s := ExtractSignals(in)
			require.GreaterOrEqual(t, len(s.LowValue), 2, "fixture must carry two low-value signals")
			require.False(t, s.IsUrgent(), "fixture must not be urgent")

			assert.Equal(t, Eliminate, c.Classify(in).Quadrant)
		})
	}
}

func TestPatternClassifier_SoonDeadlineWithImportanceIsDoFirst(t *testing.T) {
	c := NewPatternClassifier()

	inputs := []string{
		"Finish the investor presentation tomorrow",
		"Quarterly strategy review today",
		"Career plan discussion on Friday",
		"Security compliance sign-off in 3 days",
		"Doctor appointment for health checkup tonight",
		"Budget proposal within 2 hours",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			s := ExtractSignals(in)
			require.NotEmpty(t, s.SoonDeadline)
			require.NotEmpty(t, s.Importance)
			require.Empty(t, s.Delegable)
			require.Empty(t, s.LowValue)

			res := c.Classify(in)
			assert.Equal(t, DoFirst, res.Quadrant, res.Reasoning)
			assert.True(t, res.Urgent)
			assert.True(t, res.Important)
		})
	}
}

func TestPatternClassifier_Precedence(t *testing.T) {
	c := NewPatternClassifier()

	tests := []struct {
		input    string
		expected Quadrant
		base     float64
	}{
		{"Plan the team learning roadmap", Schedule, 0.75},
		{"Urgent: the printer jammed", Delegate, 0.60},
		{"Reply to the vendor asap", Delegate, 0.60},
		{"Organize the shared drive", Delegate, 0.70},
		{"Watch netflix", Eliminate, 0.60},
		{"Think about things", Schedule, 0.55},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := c.Classify(tt.input)
			assert.Equal(t, tt.expected, res.Quadrant, res.Reasoning)
			assert.GreaterOrEqual(t, res.Confidence, tt.base)
		})
	}
}

func TestPatternClassifier_ConfidenceCapped(t *testing.T) {
	c := NewPatternClassifier()

	// Every urgency and importance trigger at once.
	in := "URGENT emergency asap: critical deadline, production is down, " +
		"customers can't access, revenue blocked, security launch due today, " +
		"investor board presentation, quarterly strategy, time-sensitive"

	res := c.Classify(in)
	assert.Equal(t, DoFirst, res.Quadrant)
	assert.Equal(t, MaxPatternConfidence, res.Confidence)
}

func TestPatternClassifier_ConfidenceRange(t *testing.T) {
	c := NewPatternClassifier()

	inputs := []string{
		"", "   ", "x", "Order supplies and file expenses and print receipts",
		"Browse social media, scroll tiktok, watch youtube, gaming, gossip",
		"Server is down!!! customers revenue production security",
	}
	for _, in := range inputs {
		res := c.Classify(in)
		assert.True(t, res.Quadrant.IsValid())
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, MaxPatternConfidence)
	}
}

func TestPatternClassifier_WordBoundaries(t *testing.T) {
	s := ExtractSignals("Download the product profile")
	assert.Empty(t, s.Urgency)
	assert.Empty(t, s.Importance)
	assert.Empty(t, s.Delegable)
}

func TestPatternClassifier_InNDaysBounded(t *testing.T) {
	assert.NotEmpty(t, ExtractSignals("ship it in two days").SoonDeadline)
	assert.NotEmpty(t, ExtractSignals("ship it in 7 days").SoonDeadline)
	assert.Empty(t, ExtractSignals("ship it in 30 days").SoonDeadline)
}

// ============================================================================
// Request context
// ============================================================================

func TestPatternClassifier_ClassifyRequestUsesContext(t *testing.T) {
	c := NewPatternClassifier()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	req, err := NewRequest("Write the onboarding guide",
		WithClock(now),
		WithDue(now.Add(24*time.Hour)),
		WithGoals("Improve onboarding"),
		WithCorrelationID("abc-123"),
	)
	require.NoError(t, err)

	res := c.ClassifyRequest(req)
	assert.Equal(t, DoFirst, res.Quadrant, res.Reasoning)
	assert.Equal(t, "abc-123", res.CorrelationID)

	far, err := NewRequest("Write the onboarding guide",
		WithClock(now),
		WithDue(now.Add(30*24*time.Hour)),
		WithGoals("Improve onboarding"),
	)
	require.NoError(t, err)
	assert.Equal(t, Schedule, c.ClassifyRequest(far).Quadrant)
}

func TestPatternClassifier_WithRules(t *testing.T) {
	c := NewPatternClassifier(WithRules([]Rule{{
		Name: "always", Quadrant: Eliminate, Base: 0.3,
		When:     func(Signals) bool { return true },
		Evidence: func(Signals) int { return 0 },
		Reason:   "custom",
	}}))

	res := c.Classify("Server is down, customers can't access the app")
	assert.Equal(t, Eliminate, res.Quadrant)
	assert.InDelta(t, 0.3, res.Confidence, 1e-9)
}

func TestOrderRules(t *testing.T) {
	rules, err := OrderRules([]string{"important", "urgent-important"})
	require.NoError(t, err)

	var names []string
	for _, r := range rules {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		"important", "urgent-important",
		"low-value", "routine", "urgent", "delegable", "weak-low-value",
		"default",
	}, names)

	same, err := OrderRules(nil)
	require.NoError(t, err)
	assert.Len(t, same, len(RuleNames()))
	assert.Equal(t, "default", same[len(same)-1].Name)

	_, err = OrderRules([]string{"mystery"})
	assert.Error(t, err)
	_, err = OrderRules([]string{"urgent", "urgent"})
	assert.Error(t, err)
}
