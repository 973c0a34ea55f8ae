// Package quadrant defines the Eisenhower priority model shared by every
// classifier in the pipeline: the four categories, the request/result value
// types, the error taxonomy, and the deterministic pattern classifier that
// serves as the guaranteed floor for routing.
package quadrant

import (
	"strings"
	"time"
)

// Quadrant is one of the four Eisenhower priority categories.
type Quadrant string

const (
	// DoFirst is urgent and important work.
	DoFirst Quadrant = "do_first"
	// Schedule is important work without time pressure.
	Schedule Quadrant = "schedule"
	// Delegate is urgent work that someone else can handle.
	Delegate Quadrant = "delegate"
	// Eliminate is neither urgent nor important.
	Eliminate Quadrant = "eliminate"
)

// All returns the quadrants in priority order.
func All() []Quadrant {
	return []Quadrant{DoFirst, Schedule, Delegate, Eliminate}
}

// String returns the string representation of a Quadrant.
func (q Quadrant) String() string {
	return string(q)
}

// IsValid checks if q is one of the four known quadrants.
func (q Quadrant) IsValid() bool {
	switch q {
	case DoFirst, Schedule, Delegate, Eliminate:
		return true
	}
	return false
}

// Index returns the position of q in All(), or -1.
func (q Quadrant) Index() int {
	for i, v := range All() {
		if v == q {
			return i
		}
	}
	return -1
}

// Title returns the human-readable label ("Do First").
func (q Quadrant) Title() string {
	switch q {
	case DoFirst:
		return "Do First"
	case Schedule:
		return "Schedule"
	case Delegate:
		return "Delegate"
	case Eliminate:
		return "Eliminate"
	default:
		return "Unknown"
	}
}

// Flags returns the urgency/importance pair the quadrant stands for.
func (q Quadrant) Flags() (urgent, important bool) {
	switch q {
	case DoFirst:
		return true, true
	case Schedule:
		return false, true
	case Delegate:
		return true, false
	default:
		return false, false
	}
}

// labelAliases maps the spellings models and stubs emit to quadrants.
var labelAliases = map[string]Quadrant{
	"do_first":             DoFirst,
	"do first":             DoFirst,
	"dofirst":              DoFirst,
	"do":                   DoFirst,
	"do now":               DoFirst,
	"q1":                   DoFirst,
	"urgent_important":     DoFirst,
	"urgent and important": DoFirst,
	"schedule":             Schedule,
	"decide":               Schedule,
	"plan":                 Schedule,
	"q2":                   Schedule,
	"delegate":             Delegate,
	"q3":                   Delegate,
	"eliminate":            Eliminate,
	"delete":               Eliminate,
	"drop":                 Eliminate,
	"q4":                   Eliminate,
}

// ParseLabel resolves a model-emitted label such as "DO", "Q2" or
// "Do First" to a Quadrant.
func ParseLabel(s string) (Quadrant, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.Trim(key, `"'.:`)
	key = strings.ReplaceAll(key, "-", " ")
	if q, ok := labelAliases[key]; ok {
		return q, true
	}
	if q, ok := labelAliases[strings.ReplaceAll(key, " ", "_")]; ok {
		return q, true
	}
	return "", false
}

// FromFlags maps an urgency/importance pair to a quadrant using the same
// truth table as the pattern classifier. With neither flag set the answer
// is Schedule, the classifier's default.
func FromFlags(urgent, important bool) Quadrant {
	switch {
	case urgent && important:
		return DoFirst
	case !urgent && important:
		return Schedule
	case urgent && !important:
		return Delegate
	default:
		return Schedule
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// CAPABILITIES & PROVENANCE
// ═══════════════════════════════════════════════════════════════════════════════

// Capability is a kind of work a provider can perform.
type Capability string

const (
	CapabilityClassify Capability = "classify"
	CapabilityExtract  Capability = "extract"
	CapabilityGenerate Capability = "generate"
)

// ProviderKind distinguishes the three provider tiers.
type ProviderKind string

const (
	// KindDeterministic is the zero-cost pattern classifier.
	KindDeterministic ProviderKind = "deterministic"
	// KindNeural is an on-device model behind the inference bridge.
	KindNeural ProviderKind = "neural"
	// KindRemote is a network model used as last resort.
	KindRemote ProviderKind = "remote"
)

// Provenance records which provider produced a result.
type Provenance struct {
	// ProviderID is the id of the producing provider (a back-reference, not a pointer).
	ProviderID string `json:"provider_id"`

	// Kind is the tier of the producing provider.
	Kind ProviderKind `json:"kind"`

	// Attempts lists the provider ids tried for this request, in order.
	Attempts []string `json:"attempts,omitempty"`

	// Latency is the wall time spent routing the request.
	Latency time.Duration `json:"latency"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// RESULT
// ═══════════════════════════════════════════════════════════════════════════════

// Result is the outcome of classifying one task description.
type Result struct {
	Quadrant      Quadrant   `json:"quadrant"`
	Confidence    float64    `json:"confidence"`
	Reasoning     string     `json:"reasoning"`
	Urgent        bool       `json:"urgent"`
	Important     bool       `json:"important"`
	Provenance    Provenance `json:"provenance"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

// NewResult builds a Result whose flags follow the quadrant and whose
// confidence is clamped to [0, 1].
func NewResult(q Quadrant, confidence float64, reasoning string) Result {
	urgent, important := q.Flags()
	return Result{
		Quadrant:   q,
		Confidence: ClampConfidence(confidence),
		Reasoning:  reasoning,
		Urgent:     urgent,
		Important:  important,
	}
}

// ClampConfidence limits c to [0, 1].
func ClampConfidence(c float64) float64 {
	if c != c || c < 0 { // NaN or negative
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
