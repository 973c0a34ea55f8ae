package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/normanking/quadrant/internal/quadrant"
)

// Dashboard provides formatted routing metrics for terminal display.
type Dashboard struct {
	collector *Collector
	styles    DashboardStyles
	width     int
}

// DashboardStyles defines the styling for the dashboard.
type DashboardStyles struct {
	Border    lipgloss.Style
	Header    lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
}

// NewDashboard creates a dashboard renderer.
func NewDashboard(collector *Collector) *Dashboard {
	return &Dashboard{
		collector: collector,
		width:     80,
		styles:    defaultDashboardStyles(),
	}
}

// defaultDashboardStyles returns the default dashboard styling.
func defaultDashboardStyles() DashboardStyles {
	return DashboardStyles{
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		Value: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")),
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("82")),
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")),
		Highlight: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")),
	}
}

// SetWidth sets the dashboard width.
func (d *Dashboard) SetWidth(w int) {
	d.width = w
}

// Render returns the session panel.
func (d *Dashboard) Render() string {
	stats := d.collector.GetSessionStats()

	avgLatency := float64(0)
	successRate := float64(100)
	localRate := float64(0)
	escalationRate := float64(0)
	if stats.RequestCount > 0 {
		n := float64(stats.RequestCount)
		avgLatency = float64(stats.TotalLatencyMs) / n
		successRate = float64(stats.SuccessCount) / n * 100
		localRate = float64(stats.LocalRequests) / n * 100
		escalationRate = float64(stats.Escalations) / n * 100
	}

	var content strings.Builder

	content.WriteString(d.styles.Header.Render("ROUTING"))
	content.WriteString("\n")

	// Row 1: Session, Success, Escalations
	row1 := fmt.Sprintf("%s %s │ %s %s │ %s %s",
		d.styles.Label.Render("Session:"),
		d.styles.Value.Render(fmt.Sprintf("%d requests", stats.RequestCount)),
		d.styles.Label.Render("Success:"),
		d.formatSuccessRate(successRate),
		d.styles.Label.Render("Escalated:"),
		d.styles.Highlight.Render(fmt.Sprintf("%.0f%%", escalationRate)),
	)
	content.WriteString(row1)
	content.WriteString("\n")

	// Row 2: Latency, Local, tiers
	row2 := fmt.Sprintf("%s %s │ %s %s │ %s %s",
		d.styles.Label.Render("Latency:"),
		d.styles.Value.Render(fmt.Sprintf("%.0fms avg", avgLatency)),
		d.styles.Label.Render("Local:"),
		d.styles.Highlight.Render(fmt.Sprintf("%.0f%%", localRate)),
		d.styles.Label.Render("Tiers:"),
		d.styles.Value.Render(formatKinds(stats.ByKind)),
	)
	content.WriteString(row2)
	content.WriteString("\n")

	// Row 3: Quadrant mix
	content.WriteString(fmt.Sprintf("%s %s",
		d.styles.Label.Render("Quadrants:"),
		d.styles.Value.Render(formatQuadrants(stats.ByQuadrant)),
	))
	content.WriteString("\n")

	// Row 4: Last event and activity
	lastEvent := stats.LastEvent
	if lastEvent == "" {
		lastEvent = "none"
	}
	if len(lastEvent) > 32 {
		lastEvent = lastEvent[:29] + "..."
	}
	row4 := fmt.Sprintf("%s %s │ %s",
		d.styles.Label.Render("Last:"),
		d.styles.Value.Render(fmt.Sprintf("%s (%s)", lastEvent, sinceLabel(stats.LastEventTime))),
		d.renderEventActivity(),
	)
	content.WriteString(row4)

	return d.styles.Border.Width(d.width - 4).Render(content.String())
}

// RenderCompact returns a single-line summary.
func (d *Dashboard) RenderCompact() string {
	stats := d.collector.GetSessionStats()

	avgLatency := float64(0)
	if stats.RequestCount > 0 {
		avgLatency = float64(stats.TotalLatencyMs) / float64(stats.RequestCount)
	}

	return fmt.Sprintf("[Routing] %d req │ %d escalated │ %.0fms avg │ %d failed │ %s",
		stats.RequestCount,
		stats.Escalations,
		avgLatency,
		stats.FailureCount,
		d.renderEventActivity(),
	)
}

// RenderProviders renders per-provider history as a table.
func (d *Dashboard) RenderProviders(stats []ProviderStats) string {
	if len(stats) == 0 {
		return d.styles.Label.Render("No routing history yet.")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("PROVIDER", "REQUESTS", "SUCCESS", "AVG LATENCY", "AVG CONF").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return d.styles.Header.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, ps := range stats {
		t.Row(
			ps.Provider,
			fmt.Sprintf("%d", ps.RequestCount),
			fmt.Sprintf("%.0f%%", ps.SuccessRate),
			fmt.Sprintf("%.0fms", ps.AvgLatencyMs),
			fmt.Sprintf("%.2f", ps.AvgConfidence),
		)
	}
	return t.Render()
}

// formatSuccessRate formats the success rate with color.
func (d *Dashboard) formatSuccessRate(rate float64) string {
	formatted := fmt.Sprintf("%.0f%%", rate)
	if rate >= 90 {
		return d.styles.Success.Render(formatted)
	} else if rate >= 70 {
		return d.styles.Highlight.Render(formatted)
	}
	return d.styles.Error.Render(formatted)
}

// renderEventActivity renders a visual indicator of recent event activity.
func (d *Dashboard) renderEventActivity() string {
	events := d.collector.GetRecentEvents(5)

	activity := make([]string, 5)
	for i := 0; i < 5; i++ {
		switch {
		case i >= len(events):
			activity[i] = "○"
		case events[i].Success:
			activity[i] = "●"
		default:
			activity[i] = "✕"
		}
	}

	return strings.Join(activity, "")
}

func formatQuadrants(counts map[quadrant.Quadrant]int) string {
	parts := make([]string, 0, 4)
	for _, q := range quadrant.All() {
		parts = append(parts, fmt.Sprintf("%s %d", q, counts[q]))
	}
	return strings.Join(parts, " · ")
}

func formatKinds(counts map[quadrant.ProviderKind]int) string {
	kinds := []quadrant.ProviderKind{quadrant.KindDeterministic, quadrant.KindNeural, quadrant.KindRemote}
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%c%d", string(k)[0], counts[k]))
	}
	return strings.Join(parts, "/")
}

func sinceLabel(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	elapsed := time.Since(t)
	switch {
	case elapsed < time.Second:
		return "now"
	case elapsed < time.Minute:
		return fmt.Sprintf("%.0fs", elapsed.Seconds())
	case elapsed < time.Hour:
		return fmt.Sprintf("%.0fm", elapsed.Minutes())
	}
	return fmt.Sprintf("%.0fh", elapsed.Hours())
}
