package metrics

import (
	"errors"
	"time"

	"github.com/normanking/quadrant/internal/quadrant"
)

// RouteEvent records the outcome of routing one request.
type RouteEvent struct {
	CorrelationID string                `json:"correlation_id"`
	Provider      string                `json:"provider"`
	Kind          quadrant.ProviderKind `json:"kind"`
	Quadrant      quadrant.Quadrant     `json:"quadrant"`
	Confidence    float64               `json:"confidence"`
	Latency       time.Duration         `json:"latency"`
	Attempts      []string              `json:"attempts"`
	Escalated     bool                  `json:"escalated"`
	Success       bool                  `json:"success"`
	Error         string                `json:"error,omitempty"`
	At            time.Time             `json:"at"`
}

// TierOutcome is the result of one provider step during routing.
type TierOutcome string

const (
	OutcomeAccepted    TierOutcome = "accepted"
	OutcomeLowConf     TierOutcome = "low_confidence"
	OutcomeFailed      TierOutcome = "failed"
	OutcomeTimeout     TierOutcome = "timeout"
	OutcomeUnavailable TierOutcome = "unavailable"
	OutcomeSkipped     TierOutcome = "skipped"
)

// Recorder receives routing events.
type Recorder interface {
	RecordRoute(ev RouteEvent) error
	RecordTier(kind quadrant.ProviderKind, outcome TierOutcome, latency time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordRoute(RouteEvent) error                                 { return nil }
func (Nop) RecordTier(quadrant.ProviderKind, TierOutcome, time.Duration) {}

// Multi fans events out to several recorders.
type Multi []Recorder

// RecordRoute forwards ev to every recorder and joins their errors.
func (m Multi) RecordRoute(ev RouteEvent) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordRoute(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordTier forwards to every recorder.
func (m Multi) RecordTier(kind quadrant.ProviderKind, outcome TierOutcome, latency time.Duration) {
	for _, r := range m {
		if r != nil {
			r.RecordTier(kind, outcome, latency)
		}
	}
}
