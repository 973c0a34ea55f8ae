package quadrant

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in   string
		want Quadrant
		ok   bool
	}{
		{"DO", DoFirst, true},
		{"DO_FIRST", DoFirst, true},
		{"Do First", DoFirst, true},
		{"do-first", DoFirst, true},
		{"Q1", DoFirst, true},
		{"SCHEDULE", Schedule, true},
		{"q2", Schedule, true},
		{" Delegate. ", Delegate, true},
		{"ELIMINATE", Eliminate, true},
		{`"q4"`, Eliminate, true},
		{"urgent-ish", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLabel(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromFlags(t *testing.T) {
	assert.Equal(t, DoFirst, FromFlags(true, true))
	assert.Equal(t, Schedule, FromFlags(false, true))
	assert.Equal(t, Delegate, FromFlags(true, false))
	assert.Equal(t, Schedule, FromFlags(false, false))
}

func TestQuadrant_Flags(t *testing.T) {
	for _, q := range All() {
		u, i := q.Flags()
		if q == Eliminate {
			assert.False(t, u || i)
			continue
		}
		assert.Equal(t, q, FromFlags(u, i))
	}
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.2))
	assert.Equal(t, 1.0, ClampConfidence(3))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
	nan := 0.0
	assert.Equal(t, 0.0, ClampConfidence(nan/nan))
}

func TestNewRequest_RejectsBlank(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t"} {
		_, err := NewRequest(in)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmptyInput))
		assert.True(t, IsInputError(err))
	}
}

func TestNewRequest_Defaults(t *testing.T) {
	req, err := NewRequest("  call the bank  ")
	require.NoError(t, err)
	assert.Equal(t, "call the bank", req.Text())
	assert.Equal(t, CapabilityClassify, req.Capability())
	assert.Empty(t, req.CorrelationID())
}

func TestRequest_ContextIsCopied(t *testing.T) {
	req, err := NewRequest("ship", WithGoals("a", "b"))
	require.NoError(t, err)

	c := req.Context()
	c.Goals[0] = "mutated"
	assert.Equal(t, "a", req.Context().Goals[0])
}

func TestRequest_ContextDueIsCopied(t *testing.T) {
	due := time.Date(2026, 11, 2, 17, 0, 0, 0, time.UTC)
	req, err := NewRequest("ship", WithDue(due))
	require.NoError(t, err)

	c := req.Context()
	require.NotNil(t, c.Due)
	*c.Due = c.Due.Add(-72 * time.Hour)
	assert.Equal(t, due, *req.Context().Due)
}
