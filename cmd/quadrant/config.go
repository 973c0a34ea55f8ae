package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/normanking/quadrant/internal/config"
	"github.com/normanking/quadrant/internal/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	// Show command
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOut {
				return printJSON(redacted(cfg))
			}

			fmt.Println("quadrant configuration:")
			fmt.Println("───────────────────────")
			fmt.Printf("Threshold:     %.2f\n", cfg.Router.ConfidenceThreshold)
			fmt.Printf("Backend:       %s\n", cfg.Inference.Backend)
			fmt.Printf("Model:         %s\n", cfg.Inference.ModelPath)
			fmt.Printf("Neural tier:   %s (%s)\n", enabled(cfg.Neural.Enabled), cfg.Neural.Strategy)
			fmt.Printf("Remote tier:   %s (%s)\n", enabled(cfg.Remote.Enabled), cfg.Remote.Provider)
			fmt.Printf("Metrics DB:    %s\n", cfg.Metrics.DBPath)
			fmt.Printf("Server:        %s\n", cfg.Server.Addr)
			fmt.Printf("Log Level:     %s\n", cfg.Logging.Level)
			return nil
		},
	})

	// Dump command
	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(redacted(cfg))
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})

	// Path command
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(getConfigPath())
		},
	})

	// Validate command
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			if _, err := cfg.PatternOptions(); err != nil {
				return err
			}
			fmt.Println("Configuration is valid")
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of c with the API key masked.
func redacted(c *config.Config) *config.Config {
	out := *c
	if out.Remote.APIKey != "" {
		out.Remote.APIKey = "********"
	}
	return &out
}

func enabled(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

// formatEvent renders one stored route for the stats listing.
func formatEvent(ev metrics.StoredEvent) string {
	when := dimStyle.Render(ev.At.Local().Format("Jan 02 15:04:05"))
	if !ev.Success {
		return fmt.Sprintf("%s  %s %s", when, errorStyle.Render("failed"), ev.Error)
	}
	line := fmt.Sprintf("%s  %-9s %.2f  %-8s %5dms", when, ev.Quadrant.Title(), ev.Confidence, ev.Provider, ev.Latency.Milliseconds())
	if ev.Escalated {
		line += "  " + warnStyle.Render("via "+strings.Join(ev.Attempts, " → "))
	}
	return line
}
