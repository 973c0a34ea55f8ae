package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/normanking/quadrant/internal/briefing"
	"github.com/normanking/quadrant/internal/metrics"
	"github.com/normanking/quadrant/internal/quadrant"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BRIEF COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func briefCmd() *cobra.Command {
	var (
		raw   bool
		date  string
		width int
		stats bool
	)

	cmd := &cobra.Command{
		Use:   "brief [file|-]",
		Short: "Classify a task list and print a daily briefing",
		Long: `Reads one task per line from a file or stdin and prints the tasks
grouped by quadrant, most pressing first. Blank lines and lines starting
with # are ignored; leading "- " and "- [ ] " bullets are stripped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now()
			if date != "" {
				d, err := time.ParseInLocation("2006-01-02", date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
				day = d
			}

			in := io.Reader(os.Stdin)
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			tasks, err := readTasks(in)
			if err != nil {
				return err
			}

			s, err := buildStack(cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			s.warmup(cmd.Context(), cfg)

			entries := make([]briefing.Entry, 0, len(tasks))
			for _, task := range tasks {
				res, err := s.router.RouteText(cmd.Context(), task, quadrant.WithCorrelationID(uuid.NewString()))
				if err != nil {
					if quadrant.IsInputError(err) {
						log.Warn("Skipping task %q: %v", task, err)
						continue
					}
					return err
				}
				entries = append(entries, briefing.Entry{Task: task, Result: res})
			}

			if stats {
				fmt.Fprintln(os.Stderr, metrics.NewDashboard(s.collector).Render())
				for _, line := range s.summary()[1:] {
					fmt.Fprintln(os.Stderr, dimStyle.Render(line))
				}
			}

			items := briefing.ActionItems(entries, s.router.Threshold())
			if jsonOut {
				return printJSON(items)
			}

			md := briefing.Markdown(day, items)
			if raw {
				fmt.Print(md)
				return nil
			}
			out, err := renderMarkdown(md, width)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print plain Markdown")
	cmd.Flags().StringVar(&date, "date", "", "briefing date (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width")
	cmd.Flags().BoolVar(&stats, "stats", false, "print routing statistics for this run to stderr")
	return cmd
}

// readTasks returns the non-empty task lines of r.
func readTasks(r io.Reader) ([]string, error) {
	var tasks []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "- [ ] ")
		line = strings.TrimPrefix(line, "- ")
		if line = strings.TrimSpace(line); line != "" {
			tasks = append(tasks, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return tasks, nil
}

// renderMarkdown renders md for the terminal.
func renderMarkdown(md string, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	return renderer.Render(md)
}
