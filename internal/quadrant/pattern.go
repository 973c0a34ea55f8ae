package quadrant

import (
	"fmt"
	"strings"
	"time"
)

const (
	// PatternProviderID identifies results produced by the pattern classifier.
	PatternProviderID = "pattern"

	// MaxPatternConfidence caps every pattern classifier confidence.
	MaxPatternConfidence = 0.95

	// DefaultSignalStep is added per matched signal beyond the first.
	DefaultSignalStep = 0.05

	// DefaultSoonWindow is how close a due-date hint must be to count as soon.
	DefaultSoonWindow = 72 * time.Hour
)

// Rule is one branch of the classifier's precedence table.
type Rule struct {
	// Name identifies the branch in reasoning strings.
	Name string

	// Quadrant is the category assigned when the rule fires.
	Quadrant Quadrant

	// Base is the confidence when exactly one relevant signal matched.
	Base float64

	// When reports whether the rule fires for the given signals.
	When func(Signals) bool

	// Evidence returns how many signals support this branch.
	Evidence func(Signals) int

	// Reason is the human-readable explanation prefix.
	Reason string
}

// DefaultRules returns the fixed precedence table. First match wins; the
// last rule always fires.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "low-value", Quadrant: Eliminate, Base: 0.75,
			When:     func(s Signals) bool { return len(s.LowValue) >= 2 },
			Evidence: func(s Signals) int { return len(s.LowValue) },
			Reason:   "Low-value activity",
		},
		{
			Name: "routine", Quadrant: Delegate, Base: 0.70,
			When:     func(s Signals) bool { return len(s.Delegable) >= 1 && !s.IsUrgent() },
			Evidence: func(s Signals) int { return len(s.Delegable) },
			Reason:   "Routine task that others can handle",
		},
		{
			Name: "urgent-important", Quadrant: DoFirst, Base: 0.80,
			When:     func(s Signals) bool { return s.IsUrgent() && s.IsImportant() },
			Evidence: func(s Signals) int { return s.urgencyCount() + len(s.Importance) },
			Reason:   "Urgent and important, needs immediate attention",
		},
		{
			Name: "important", Quadrant: Schedule, Base: 0.75,
			When:     func(s Signals) bool { return !s.IsUrgent() && s.IsImportant() },
			Evidence: func(s Signals) int { return len(s.Importance) },
			Reason:   "Important but not time-sensitive, schedule focused time",
		},
		{
			Name: "urgent", Quadrant: Delegate, Base: 0.60,
			When:     func(s Signals) bool { return s.IsUrgent() && !s.IsImportant() },
			Evidence: func(s Signals) int { return s.urgencyCount() },
			Reason:   "Urgent but not important, consider delegating",
		},
		{
			Name: "delegable", Quadrant: Delegate, Base: 0.65,
			When:     func(s Signals) bool { return len(s.Delegable) >= 1 },
			Evidence: func(s Signals) int { return len(s.Delegable) },
			Reason:   "Delegable task",
		},
		{
			Name: "weak-low-value", Quadrant: Eliminate, Base: 0.60,
			When:     func(s Signals) bool { return len(s.LowValue) >= 1 },
			Evidence: func(s Signals) int { return len(s.LowValue) },
			Reason:   "Possibly low-value activity",
		},
		{
			Name: "default", Quadrant: Schedule, Base: 0.55,
			When:     func(Signals) bool { return true },
			Evidence: func(Signals) int { return 0 },
			Reason:   "Importance unclear, scheduling for review",
		},
	}
}

// RuleNames lists the default rule names in precedence order.
func RuleNames() []string {
	rules := DefaultRules()
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}

// OrderRules returns the default rules in the given precedence order. Rules
// not named keep their relative order after the named ones, and "default"
// always stays last.
func OrderRules(order []string) ([]Rule, error) {
	byName := make(map[string]Rule)
	var fallback Rule
	for _, r := range DefaultRules() {
		if r.Name == "default" {
			fallback = r
			continue
		}
		byName[r.Name] = r
	}

	out := make([]Rule, 0, len(byName)+1)
	used := make(map[string]bool)
	for _, name := range order {
		if name == "default" {
			continue
		}
		r, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown pattern rule %q", name)
		}
		if used[name] {
			return nil, fmt.Errorf("pattern rule %q listed twice", name)
		}
		used[name] = true
		out = append(out, r)
	}
	for _, r := range DefaultRules() {
		if r.Name != "default" && !used[r.Name] {
			out = append(out, r)
		}
	}
	return append(out, fallback), nil
}

// PatternClassifier is the stateless deterministic classifier.
// It is safe for concurrent use.
type PatternClassifier struct {
	rules      []Rule
	step       float64
	soonWindow time.Duration
}

// PatternOption configures a PatternClassifier.
type PatternOption func(*PatternClassifier)

// WithRules replaces the precedence table. The table should end with a
// rule that always fires; if none fires the result is Schedule.
func WithRules(rules []Rule) PatternOption {
	return func(c *PatternClassifier) {
		c.rules = rules
	}
}

// WithSignalStep sets the per-signal confidence increment.
func WithSignalStep(step float64) PatternOption {
	return func(c *PatternClassifier) {
		c.step = step
	}
}

// WithSoonWindow sets how close a due-date hint must be to count as soon.
func WithSoonWindow(d time.Duration) PatternOption {
	return func(c *PatternClassifier) {
		c.soonWindow = d
	}
}

// NewPatternClassifier creates a classifier with the default rule table.
func NewPatternClassifier(opts ...PatternOption) *PatternClassifier {
	c := &PatternClassifier{
		rules:      DefaultRules(),
		step:       DefaultSignalStep,
		soonWindow: DefaultSoonWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify maps text to a quadrant. It never fails and always returns a label.
func (c *PatternClassifier) Classify(text string) Result {
	return c.resolve(ExtractSignals(text))
}

// ClassifyRequest classifies the request text, folding in its structured
// context: a due date inside the soon window acts as a soon deadline and
// each goal reference acts as an importance signal.
func (c *PatternClassifier) ClassifyRequest(req Request) Result {
	s := ExtractSignals(req.Text())
	rc := req.Context()
	if s.SoonDeadline == "" && rc.Due != nil && rc.Due.Sub(req.Now()) <= c.soonWindow {
		s.SoonDeadline = "due " + rc.Due.Format("2006-01-02")
	}
	for _, g := range rc.Goals {
		if g = strings.TrimSpace(g); g != "" {
			s.Importance = append(s.Importance, "goal:"+g)
		}
	}

	res := c.resolve(s)
	res.CorrelationID = req.CorrelationID()
	return res
}

// resolve walks the precedence table.
func (c *PatternClassifier) resolve(s Signals) Result {
	for _, r := range c.rules {
		if !r.When(s) {
			continue
		}
		conf := r.Base
		if extra := r.Evidence(s) - 1; extra > 0 {
			conf += c.step * float64(extra)
		}
		res := NewResult(r.Quadrant, min(conf, MaxPatternConfidence), explain(r.Reason, s))
		res.Urgent = s.IsUrgent()
		res.Important = s.IsImportant()
		res.Provenance = Provenance{ProviderID: PatternProviderID, Kind: KindDeterministic}
		return res
	}

	res := NewResult(Schedule, 0.5, "no rule matched")
	res.Provenance = Provenance{ProviderID: PatternProviderID, Kind: KindDeterministic}
	return res
}

func explain(reason string, s Signals) string {
	var parts []string
	add := func(label string, matched []string) {
		if len(matched) > 0 {
			parts = append(parts, fmt.Sprintf("%s [%s]", label, strings.Join(matched, ", ")))
		}
	}
	add("urgency", s.Urgency)
	if s.SoonDeadline != "" {
		parts = append(parts, fmt.Sprintf("deadline [%s]", s.SoonDeadline))
	}
	add("importance", s.Importance)
	add("delegable", s.Delegable)
	add("low-value", s.LowValue)

	if len(parts) == 0 {
		return reason
	}
	return reason + ": " + strings.Join(parts, "; ")
}
