package benchmark

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/normanking/quadrant/internal/quadrant"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	bestStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")).Padding(0, 1)
	passStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("82"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Table renders the ranking as a terminal table.
func (r *Report) Table() string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("#", "STRATEGY", "ACCURACY", "CORRECT", "PARSE FAIL", "GEN FAIL", "MEAN", "P95", "TOK/S").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == 0:
				return bestStyle
			}
			return cellStyle
		})

	for i, res := range r.Results {
		t.Row(
			fmt.Sprintf("%d", i+1),
			string(res.Strategy),
			fmt.Sprintf("%.1f%%", res.Accuracy*100),
			fmt.Sprintf("%d/%d", res.Correct, res.Total),
			fmt.Sprintf("%d", res.ParseFailures),
			fmt.Sprintf("%d", res.GenerationFailures),
			formatLatency(res.MeanLatency),
			formatLatency(res.P95Latency),
			fmt.Sprintf("%.1f", res.TokensPerSecond),
		)
	}

	var b strings.Builder
	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(r.verdict(true))
	return b.String()
}

// CategoryTable renders per-quadrant precision and recall for one strategy.
func (res *StrategyResult) CategoryTable() string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("QUADRANT", "PRECISION", "RECALL", "SUPPORT").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, c := range res.Categories {
		t.Row(c.Quadrant.Title(), fmt.Sprintf("%.2f", c.Precision), fmt.Sprintf("%.2f", c.Recall), fmt.Sprintf("%d", c.Support))
	}
	return t.Render()
}

func (r *Report) verdict(styled bool) string {
	best := r.Best()
	if best == nil {
		return "No results."
	}
	status := "below target"
	style := failStyle
	switch {
	case r.IsExcellent():
		status, style = "excellent", passStyle
	case r.MeetsTarget():
		status, style = "meets target", passStyle
	}
	line := fmt.Sprintf("Best: %s at %.1f%% (target %.0f%%, excellent %.0f%%): ",
		best.Strategy, best.Accuracy*100, r.Target*100, r.Excellent*100)
	if !styled {
		return line + status
	}
	return labelStyle.Render(line) + style.Render(status)
}

// Markdown renders the full report as markdown.
func (r *Report) Markdown() string {
	var b strings.Builder

	b.WriteString("# Strategy benchmark\n\n")
	if r.Dataset != "" {
		fmt.Fprintf(&b, "- Dataset: `%s` (%d cases)\n", r.Dataset, r.Cases)
	} else {
		fmt.Fprintf(&b, "- Cases: %d\n", r.Cases)
	}
	fmt.Fprintf(&b, "- Duration: %s\n", r.Duration.Round(time.Millisecond))
	if r.LoadTime > 0 {
		fmt.Fprintf(&b, "- Model load: %s\n", r.LoadTime.Round(time.Millisecond))
	}
	if r.Degraded {
		b.WriteString("- Runtime: **simulated** (degraded mode)\n")
	}
	fmt.Fprintf(&b, "- %s\n\n", r.verdict(false))

	b.WriteString("## Ranking\n\n")
	b.WriteString("| # | Strategy | Accuracy | Correct | Parse failures | Generation failures | Mean | p50 | p95 | Tok/s |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|---|\n")
	for i, res := range r.Results {
		fmt.Fprintf(&b, "| %d | %s | %.1f%% | %d/%d | %d | %d | %s | %s | %s | %.1f |\n",
			i+1, res.Strategy, res.Accuracy*100, res.Correct, res.Total,
			res.ParseFailures, res.GenerationFailures,
			formatLatency(res.MeanLatency), formatLatency(res.P50Latency), formatLatency(res.P95Latency),
			res.TokensPerSecond)
	}

	if best := r.Best(); best != nil {
		fmt.Fprintf(&b, "\n## Per-quadrant scores (%s)\n\n", best.Strategy)
		b.WriteString("| Quadrant | Precision | Recall | Support |\n|---|---|---|---|\n")
		for _, c := range best.Categories {
			fmt.Fprintf(&b, "| %s | %.2f | %.2f | %d |\n", c.Quadrant.Title(), c.Precision, c.Recall, c.Support)
		}

		b.WriteString("\n## Confusion matrix\n\n")
		b.WriteString("| true \\ predicted |")
		for _, q := range quadrant.All() {
			fmt.Fprintf(&b, " %s |", q.Title())
		}
		b.WriteString(" no answer |\n|---|---|---|---|---|---|\n")
		for i, q := range quadrant.All() {
			fmt.Fprintf(&b, "| %s |", q.Title())
			for j := range quadrant.All() {
				fmt.Fprintf(&b, " %d |", best.Confusion.Counts[i][j])
			}
			fmt.Fprintf(&b, " %d |\n", best.Confusion.Missed[i])
		}
	}
	return b.String()
}

func formatLatency(d time.Duration) string {
	switch {
	case d == 0:
		return "-"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
