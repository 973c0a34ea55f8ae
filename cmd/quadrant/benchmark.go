package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/normanking/quadrant/internal/benchmark"
	"github.com/normanking/quadrant/internal/prompts"
	"github.com/normanking/quadrant/internal/quadrant"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BENCHMARK COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func benchmarkCmd() *cobra.Command {
	var (
		datasetPath string
		strategies  []string
		only        []string
		markdown    bool
		output      string
		categories  bool
		strict      bool
	)

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Rank prompt strategies against the labelled dataset",
		Long: `Loads the configured model once, runs every labelled case under each
prompt strategy and ranks the strategies by accuracy, then mean latency.`,
		Example: `  quadrant benchmark
  quadrant benchmark --strategy structured --strategy few_shot --markdown
  quadrant benchmark --dataset ./cases.json --output report.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			if datasetPath == "" {
				datasetPath = cfg.Benchmark.Dataset
			}
			var (
				ds  *benchmark.Dataset
				err error
			)
			if datasetPath != "" {
				ds, err = benchmark.LoadDataset(datasetPath)
			} else {
				ds, err = benchmark.DefaultDataset()
			}
			if err != nil {
				return err
			}

			cases := ds.Cases
			if len(only) > 0 {
				qs := make([]quadrant.Quadrant, 0, len(only))
				for _, name := range only {
					q, ok := quadrant.ParseLabel(name)
					if !ok {
						return fmt.Errorf("unknown quadrant %q", name)
					}
					qs = append(qs, q)
				}
				cases = ds.Filter(qs...)
			}

			selected := cfg.BenchmarkStrategies()
			if len(strategies) > 0 {
				store := prompts.Default()
				selected = make([]prompts.Strategy, 0, len(strategies))
				for _, name := range strategies {
					s := prompts.Strategy(name)
					if !store.Has(s) {
						return fmt.Errorf("unknown strategy %q", name)
					}
					selected = append(selected, s)
				}
			}

			bridge, err := newBridge(cfg, nil)
			if err != nil {
				return err
			}
			defer bridge.Close()

			if bridge.Degraded() {
				fmt.Fprintln(os.Stderr, warnStyle.Render("⚠ No model runtime found; using the simulated backend. Accuracy reflects the stub, not a model."))
			}

			h := benchmark.New(bridge,
				benchmark.WithTargets(cfg.Benchmark.Target, cfg.Benchmark.Excellent),
				benchmark.WithProgress(func(s prompts.Strategy, done, total int) {
					if jsonOut {
						return
					}
					fmt.Fprintf(os.Stderr, "\r%s %-16s %d/%d", dimStyle.Render("running"), s, done, total)
					if done == total {
						fmt.Fprintln(os.Stderr)
					}
				}),
			)

			report, err := h.Run(cmd.Context(), cfg.LoadSpec(), selected, cases)
			if err != nil {
				return err
			}
			report.Dataset = ds.Label()

			switch {
			case output != "":
				if err := writeReport(output, report); err != nil {
					return err
				}
				fmt.Printf("Report written to %s\n", output)
			case jsonOut:
				if err := printJSON(report); err != nil {
					return err
				}
			case markdown:
				fmt.Print(report.Markdown())
			default:
				fmt.Println(report.Table())
				if best := report.Best(); categories && best != nil {
					fmt.Println()
					fmt.Println(titleStyle.Render("Per-category results for " + string(best.Strategy)))
					fmt.Println(best.CategoryTable())
				}
			}

			if strict && !report.MeetsTarget() {
				return fmt.Errorf("best accuracy below target %.0f%%", report.Target*100)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "", "dataset file (default: embedded dataset)")
	cmd.Flags().StringSliceVar(&strategies, "strategy", nil, "strategy to evaluate (repeatable, default all)")
	cmd.Flags().StringSliceVar(&only, "quadrant", nil, "only evaluate cases labelled with this quadrant (repeatable)")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "print the report as Markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file (.json or Markdown)")
	cmd.Flags().BoolVar(&categories, "categories", false, "show per-category results for the best strategy")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the best strategy misses the target")
	return cmd
}

// writeReport writes report as JSON for .json paths and Markdown otherwise.
func writeReport(path string, report *benchmark.Report) error {
	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".json") {
		b, err := jsonIndent(report)
		if err != nil {
			return err
		}
		data = b
	} else {
		data = []byte(report.Markdown())
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
