package prompts

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/normanking/quadrant/internal/quadrant"
)

// Tier identifies which parser recovered a classification.
type Tier int

const (
	TierNone Tier = iota
	TierJSON
	TierChainOfThought
	TierFrequency
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierJSON:
		return "json"
	case TierChainOfThought:
		return "chain_of_thought"
	case TierFrequency:
		return "frequency"
	default:
		return "none"
	}
}

const (
	// DefaultJSONConfidence is used when a JSON answer omits confidence.
	DefaultJSONConfidence = 0.5
	// ChainOfThoughtConfidence is assigned to answers recovered from step verdicts.
	ChainOfThoughtConfidence = 0.6
	// FrequencyConfidence is assigned to answers recovered by label counting.
	FrequencyConfidence = 0.5

	defaultReasoning = "no reasoning provided"
)

// Parsed is a classification recovered from raw model text.
type Parsed struct {
	Quadrant   quadrant.Quadrant
	Confidence float64
	Reasoning  string
	Urgent     bool
	Important  bool
	Tier       Tier
}

// Result converts p into a routed result tagged with the producing provider.
func (p Parsed) Result(providerID string, kind quadrant.ProviderKind) quadrant.Result {
	res := quadrant.NewResult(p.Quadrant, p.Confidence, p.Reasoning)
	res.Urgent = p.Urgent
	res.Important = p.Important
	res.Provenance = quadrant.Provenance{ProviderID: providerID, Kind: kind}
	return res
}

// Parse recovers a classification from raw model output. Tiers run in
// order and the first success wins: outermost JSON object, chain-of-thought
// step verdicts, then label frequency. When none succeeds the error wraps
// quadrant.ErrParseFailure.
func Parse(raw string) (Parsed, error) {
	if p, ok := parseJSON(raw); ok {
		return p, nil
	}
	if p, ok := parseChainOfThought(raw); ok {
		return p, nil
	}
	if p, ok := parseFrequency(raw); ok {
		return p, nil
	}
	return Parsed{}, fmt.Errorf("%w: %q", quadrant.ErrParseFailure, truncate(raw, 80))
}

// ═══════════════════════════════════════════════════════════════════════════════
// TIER 1: JSON
// ═══════════════════════════════════════════════════════════════════════════════

var categoryKeys = []string{"category", "quadrant", "label", "classification"}

func parseJSON(raw string) (Parsed, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Parsed{}, false
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &obj); err != nil {
		return Parsed{}, false
	}

	var q quadrant.Quadrant
	for _, key := range categoryKeys {
		if v, ok := lookup(obj, key).(string); ok {
			if parsed, ok := quadrant.ParseLabel(v); ok {
				q = parsed
				break
			}
		}
	}
	if q == "" {
		return Parsed{}, false
	}

	p := Parsed{
		Quadrant:   q,
		Confidence: jsonConfidence(lookup(obj, "confidence")),
		Reasoning:  defaultReasoning,
		Tier:       TierJSON,
	}
	if r, ok := lookup(obj, "reasoning").(string); ok && strings.TrimSpace(r) != "" {
		p.Reasoning = strings.TrimSpace(r)
	}

	p.Urgent, p.Important = q.Flags()
	if u, ok := lookup(obj, "urgent").(bool); ok {
		p.Urgent = u
	}
	if i, ok := lookup(obj, "important").(bool); ok {
		p.Important = i
	}
	return p, true
}

// lookup finds key case-insensitively.
func lookup(obj map[string]interface{}, key string) interface{} {
	if v, ok := obj[key]; ok {
		return v
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

// jsonConfidence accepts numbers, numeric strings and percentages.
func jsonConfidence(v interface{}) float64 {
	var c float64
	switch t := v.(type) {
	case float64:
		c = t
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return DefaultJSONConfidence
		}
		c = f
	default:
		return DefaultJSONConfidence
	}
	if c > 1 && c <= 100 {
		c /= 100
	}
	return quadrant.ClampConfidence(c)
}

// ═══════════════════════════════════════════════════════════════════════════════
// TIER 2: CHAIN OF THOUGHT
// ═══════════════════════════════════════════════════════════════════════════════

var (
	stepMarker = regexp.MustCompile(`(?i)\bstep\s*\d+\b`)
	answerWord = regexp.MustCompile(`\b(yes|no|true|false)\b`)
	negation   = regexp.MustCompile(`\b(not|isn't|is not|non|low|no real)\W*(\w+\W+){0,2}$`)

	// negatedMention matches "not urgent", "non-urgent", "isn't really
	// important" and the like anywhere in a verdict window.
	negatedMention = map[string]*regexp.Regexp{
		"urgen":    negatedKeyword("urgen"),
		"importan": negatedKeyword("importan"),
	}
)

func negatedKeyword(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`\b(not|isn't|is not|non|no longer|low|no real)\W+(\w+\W+){0,2}` + keyword)
}

func parseChainOfThought(raw string) (Parsed, bool) {
	locs := stepMarker.FindAllStringIndex(raw, -1)
	if len(locs) == 0 {
		return Parsed{}, false
	}

	var urgent, important *bool
	for i, loc := range locs {
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segment := strings.ToLower(raw[loc[1]:end])

		if urgent == nil {
			urgent = verdict(segment, "urgen", "importan")
		}
		if important == nil {
			important = verdict(segment, "importan", "urgen")
		}
	}
	if urgent == nil || important == nil {
		return Parsed{}, false
	}

	q := quadrant.FromFlags(*urgent, *important)
	return Parsed{
		Quadrant:   q,
		Confidence: ChainOfThoughtConfidence,
		Reasoning:  fmt.Sprintf("step verdicts: urgent=%t, important=%t", *urgent, *important),
		Urgent:     *urgent,
		Important:  *important,
		Tier:       TierChainOfThought,
	}, true
}

// verdict reads the answer about keyword within segment. The window runs
// from the keyword to the first mention of other, so a step that covers both
// questions is judged separately for each. A negated mention of keyword wins
// over a yes/no word; with neither the mention itself counts as yes.
func verdict(segment, keyword, other string) *bool {
	idx := strings.Index(segment, keyword)
	if idx < 0 {
		return nil
	}
	window := segment[idx:]
	if j := strings.Index(window[len(keyword):], other); j >= 0 {
		window = window[:len(keyword)+j]
	}

	prefix := segment[:idx]
	if k := strings.LastIndex(prefix, other); k >= 0 {
		prefix = prefix[k+len(other):]
	}

	var v bool
	switch {
	case negation.MatchString(prefix), negatedMention[keyword].MatchString(window):
		v = false
	case answerWord.MatchString(window):
		a := answerWord.FindString(window)
		v = a == "yes" || a == "true"
	default:
		v = true
	}
	return &v
}

// ═══════════════════════════════════════════════════════════════════════════════
// TIER 3: LABEL FREQUENCY
// ═══════════════════════════════════════════════════════════════════════════════

var labelPatterns = map[quadrant.Quadrant]*regexp.Regexp{
	quadrant.DoFirst:   regexp.MustCompile(`(?i)\bdo[ _-]first\b`),
	quadrant.Schedule:  regexp.MustCompile(`(?i)\bschedule\b`),
	quadrant.Delegate:  regexp.MustCompile(`(?i)\bdelegate\b`),
	quadrant.Eliminate: regexp.MustCompile(`(?i)\beliminate\b`),
}

func parseFrequency(raw string) (Parsed, bool) {
	best := quadrant.Quadrant("")
	bestCount := 0
	for _, q := range quadrant.All() {
		if n := len(labelPatterns[q].FindAllStringIndex(raw, -1)); n > bestCount {
			best, bestCount = q, n
		}
	}
	if bestCount == 0 {
		return Parsed{}, false
	}

	p := Parsed{
		Quadrant:   best,
		Confidence: FrequencyConfidence,
		Reasoning:  fmt.Sprintf("label %q mentioned %d times", best.Title(), bestCount),
		Tier:       TierFrequency,
	}
	p.Urgent, p.Important = best.Flags()
	return p, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
