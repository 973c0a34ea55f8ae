// Package main is the entry point for the quadrant CLI.
// quadrant sorts free-text tasks into Eisenhower quadrants, escalating from
// a deterministic pattern classifier to an on-device model and, when
// allowed, a remote model.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/normanking/quadrant/internal/config"
	"github.com/normanking/quadrant/internal/logging"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	jsonOut bool
	cfg     *config.Config
	log     *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quadrant",
		Short: "quadrant - Eisenhower task triage",
		Long: `quadrant classifies tasks as Do First, Schedule, Delegate or Eliminate.

Each task is tried against the pattern classifier first. Answers below the
confidence threshold escalate to the on-device model, then to the remote
model when it is enabled.

Classify one task:     quadrant classify "Fix the production outage"
Brief a task list:     quadrant brief tasks.txt
Compare strategies:    quadrant benchmark
Serve the HTTP API:    quadrant serve`,
		PersistentPreRunE: initLogging,
		SilenceUsage:      true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.quadrant/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print JSON instead of styled output")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("quadrant v%s\n", version)
		},
	})

	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(briefCmd())
	rootCmd.AddCommand(benchmarkCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())

	lipgloss.SetColorProfile(termenv.NewOutput(os.Stdout).EnvColorProfile())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

// initLogging loads the configuration and sets up the global logger.
func initLogging(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	var lc *logging.Config
	if verbose {
		lc = logging.VerboseConfig()
	} else {
		lc = logging.DefaultConfig()
		lc.Level = logging.ParseLevel(cfg.Logging.Level)
	}
	lc.FilePath = cfg.Logging.File

	log = logging.New(lc)
	logging.SetGlobal(log)

	// One-shot commands print results on stdout; their logs go to the file only.
	if !verbose && cfg.Logging.File != "" && cmd.Name() != "serve" {
		logging.DisableConsoleOutput()
	}

	log.Debug("quadrant %s started, config %s", version, getConfigPath())
	return nil
}

func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFromPath(cfgPath)
	}
	return config.Load()
}

func getConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.Default().GetConfigPath()
}
