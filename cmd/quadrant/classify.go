package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/normanking/quadrant/internal/briefing"
	"github.com/normanking/quadrant/internal/quadrant"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STYLES
// ═══════════════════════════════════════════════════════════════════════════════

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	quadrantHue = map[quadrant.Quadrant]lipgloss.Color{
		quadrant.DoFirst:   lipgloss.Color("#EF4444"),
		quadrant.Schedule:  lipgloss.Color("#3B82F6"),
		quadrant.Delegate:  lipgloss.Color("#F59E0B"),
		quadrant.Eliminate: lipgloss.Color("#6B7280"),
	}
)

func quadrantBadge(q quadrant.Quadrant) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(quadrantHue[q]).
		Padding(0, 1).
		Render(q.Title())
}

// ═══════════════════════════════════════════════════════════════════════════════
// CLASSIFY COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func classifyCmd() *cobra.Command {
	var (
		due   string
		goals []string
	)

	cmd := &cobra.Command{
		Use:   "classify <task...>",
		Short: "Classify one task",
		Example: `  quadrant classify "Server is down, customers can't access the app"
  quadrant classify --due 2026-11-02 --goal "launch v2" "Write the release notes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []quadrant.RequestOption{quadrant.WithCorrelationID(uuid.NewString())}
			if due != "" {
				t, err := parseDue(due)
				if err != nil {
					return err
				}
				opts = append(opts, quadrant.WithDue(t))
			}
			if len(goals) > 0 {
				opts = append(opts, quadrant.WithGoals(goals...))
			}

			s, err := buildStack(cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			s.warmup(cmd.Context(), cfg)

			res, err := s.router.RouteText(cmd.Context(), strings.Join(args, " "), opts...)
			if err != nil {
				return err
			}

			for _, line := range s.summary() {
				log.Debug("%s", line)
			}

			if jsonOut {
				return printJSON(res)
			}
			fmt.Println(renderResult(res, s.router.Threshold()))
			return nil
		},
	}

	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringSliceVar(&goals, "goal", nil, "goal the task serves (repeatable)")
	return cmd
}

// renderResult formats a result as a bordered card.
func renderResult(res quadrant.Result, threshold float64) string {
	var b strings.Builder
	b.WriteString(quadrantBadge(res.Quadrant))
	b.WriteString("  ")
	b.WriteString(titleStyle.Render(briefing.Action(res.Quadrant)))
	if res.Confidence < threshold {
		b.WriteString("  ")
		b.WriteString(warnStyle.Render("⚠ low confidence"))
	}
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("Confidence", fmt.Sprintf("%.2f", res.Confidence))
	row("Urgent", yesNo(res.Urgent))
	row("Important", yesNo(res.Important))
	row("Provider", fmt.Sprintf("%s (%s)", res.Provenance.ProviderID, res.Provenance.Kind))
	if len(res.Provenance.Attempts) > 1 {
		row("Attempts", strings.Join(res.Provenance.Attempts, " → "))
	}
	row("Latency", res.Provenance.Latency.Round(time.Microsecond).String())
	if res.Reasoning != "" {
		row("Reasoning", res.Reasoning)
	}
	b.WriteString(dimStyle.Render(res.CorrelationID))

	return boxStyle.Render(b.String())
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// parseDue accepts a calendar date (end of that day, local time) or a full
// RFC 3339 timestamp.
func parseDue(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --due %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return d.Add(24*time.Hour - time.Second), nil
}

func printJSON(v interface{}) error {
	data, err := jsonIndent(v)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func jsonIndent(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return append(data, '\n'), nil
}

