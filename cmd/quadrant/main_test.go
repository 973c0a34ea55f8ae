package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/quadrant/internal/config"
	"github.com/normanking/quadrant/internal/quadrant"
)

func TestReadTasks(t *testing.T) {
	in := `# monday
- [ ] Fix the login outage
- Order office supplies

   Browse social media
-
`
	tasks, err := readTasks(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"Fix the login outage", "Order office supplies", "Browse social media"}, tasks)
}

func TestParseDue(t *testing.T) {
	got, err := parseDue("2026-11-02")
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.November, got.Month())
	assert.Equal(t, 2, got.Day())
	assert.Equal(t, 23, got.Hour())

	ts, err := parseDue("2026-11-02T09:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 9, ts.Hour())

	_, err = parseDue("next tuesday")
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	c := config.Default()
	c.Remote.APIKey = "sk-secret"

	r := redacted(c)
	assert.Equal(t, "********", r.Remote.APIKey)
	assert.Equal(t, "sk-secret", c.Remote.APIKey, "original must be untouched")
}

func TestRenderResult(t *testing.T) {
	res := quadrant.NewResult(quadrant.Schedule, 0.55, "Importance unclear")
	res.Provenance = quadrant.Provenance{ProviderID: "pattern", Kind: quadrant.KindDeterministic}
	res.CorrelationID = "abc-123"

	out := renderResult(res, 0.7)
	assert.Contains(t, out, "Schedule")
	assert.Contains(t, out, "low confidence")
	assert.Contains(t, out, "0.55")
	assert.Contains(t, out, "pattern (deterministic)")
	assert.Contains(t, out, "abc-123")
}
