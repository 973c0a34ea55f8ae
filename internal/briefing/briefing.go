// Package briefing turns routed classifications into action items and a
// daily markdown briefing grouped by quadrant.
package briefing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/normanking/quadrant/internal/quadrant"
)

// Entry pairs a task description with its routed result.
type Entry struct {
	Task   string          `json:"task"`
	Result quadrant.Result `json:"result"`
}

// ActionItem is one task with the action its quadrant implies.
type ActionItem struct {
	Task          string            `json:"task"`
	Quadrant      quadrant.Quadrant `json:"quadrant"`
	Action        string            `json:"action"`
	Confidence    float64           `json:"confidence"`
	Reasoning     string            `json:"reasoning"`
	Provider      string            `json:"provider"`
	CorrelationID string            `json:"correlation_id,omitempty"`

	// NeedsReview is set when the final confidence stayed under the threshold.
	NeedsReview bool `json:"needs_review"`
}

var actions = map[quadrant.Quadrant]string{
	quadrant.DoFirst:   "Do now",
	quadrant.Schedule:  "Schedule",
	quadrant.Delegate:  "Delegate",
	quadrant.Eliminate: "Drop",
}

// Action returns the verb for q.
func Action(q quadrant.Quadrant) string {
	if a, ok := actions[q]; ok {
		return a
	}
	return "Review"
}

// ActionItems builds one item per entry, ordered Do-First to Eliminate and
// by confidence descending within a quadrant. Items under threshold are
// flagged for review.
func ActionItems(entries []Entry, threshold float64) []ActionItem {
	items := make([]ActionItem, 0, len(entries))
	for _, e := range entries {
		task := strings.TrimSpace(e.Task)
		if task == "" {
			continue
		}
		items = append(items, ActionItem{
			Task:          task,
			Quadrant:      e.Result.Quadrant,
			Action:        Action(e.Result.Quadrant),
			Confidence:    e.Result.Confidence,
			Reasoning:     e.Result.Reasoning,
			Provider:      e.Result.Provenance.ProviderID,
			CorrelationID: e.Result.CorrelationID,
			NeedsReview:   e.Result.Confidence < threshold || !e.Result.Quadrant.IsValid(),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := rank(items[i].Quadrant), rank(items[j].Quadrant)
		if ri != rj {
			return ri < rj
		}
		return items[i].Confidence > items[j].Confidence
	})
	return items
}

// rank puts unknown quadrants last.
func rank(q quadrant.Quadrant) int {
	if i := q.Index(); i >= 0 {
		return i
	}
	return len(quadrant.All())
}

// Group splits items by quadrant, preserving order.
func Group(items []ActionItem) map[quadrant.Quadrant][]ActionItem {
	out := make(map[quadrant.Quadrant][]ActionItem)
	for _, it := range items {
		out[it.Quadrant] = append(out[it.Quadrant], it)
	}
	return out
}

// Markdown renders the daily briefing for date.
func Markdown(date time.Time, items []ActionItem) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Daily briefing: %s\n\n", date.Format("Monday, January 2, 2006"))
	if len(items) == 0 {
		b.WriteString("No tasks to brief.\n")
		return b.String()
	}

	groups := Group(items)
	counts := make([]string, 0, 5)
	for _, q := range quadrant.All() {
		counts = append(counts, fmt.Sprintf("%d %s", len(groups[q]), strings.ToLower(q.Title())))
	}
	review := 0
	var unclassified []ActionItem
	for _, it := range items {
		if it.NeedsReview {
			review++
		}
		if !it.Quadrant.IsValid() {
			unclassified = append(unclassified, it)
		}
	}
	if len(unclassified) > 0 {
		counts = append(counts, fmt.Sprintf("%d unclassified", len(unclassified)))
	}
	fmt.Fprintf(&b, "%d tasks: %s", len(items), strings.Join(counts, " · "))
	if review > 0 {
		fmt.Fprintf(&b, " (%d to review)", review)
	}
	b.WriteString("\n")

	for _, q := range quadrant.All() {
		group := groups[q]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", q.Title())
		for _, it := range group {
			writeItem(&b, it)
		}
	}
	if len(unclassified) > 0 {
		b.WriteString("\n## Review\n\n")
		for _, it := range unclassified {
			writeItem(&b, it)
		}
	}
	return b.String()
}

func writeItem(b *strings.Builder, it ActionItem) {
	fmt.Fprintf(b, "- [ ] **%s:** %s", it.Action, it.Task)
	if it.Provider != "" {
		fmt.Fprintf(b, " _(%.2f, %s)_", it.Confidence, it.Provider)
	} else {
		fmt.Fprintf(b, " _(%.2f)_", it.Confidence)
	}
	if it.NeedsReview {
		b.WriteString(" ⚠ review")
	}
	b.WriteString("\n")
	if it.Reasoning != "" {
		fmt.Fprintf(b, "  - %s\n", it.Reasoning)
	}
}
