package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/normanking/quadrant/internal/metrics"
	"github.com/normanking/quadrant/internal/server"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SERVE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the classification HTTP API",
		Long: `Serves POST /v1/classify, POST /v1/brief, GET /v1/routes, GET /healthz
and GET /metrics until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := buildStack(cfg)
			if err != nil {
				return err
			}
			defer func() {
				for _, line := range s.summary() {
					log.Info("%s", line)
				}
				if err := s.Close(); err != nil {
					log.Warn("Shutdown: %v", err)
				}
			}()
			s.warmup(ctx, cfg)

			sc := cfg.ServerConfig(version)
			if addr != "" {
				sc.Addr = addr
			}

			opts := []server.Option{server.WithProm(s.prom)}
			if s.store != nil {
				opts = append(opts, server.WithStore(s.store))
			}

			fmt.Printf("quadrant %s listening on http://%s (threshold %.2f)\n", version, sc.Addr, s.router.Threshold())
			return server.New(sc, s.router, opts...).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func statsCmd() *cobra.Command {
	var (
		days   int
		recent int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show routing history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.Metrics.Enabled {
				return fmt.Errorf("metrics are disabled (metrics.enabled: false)")
			}

			store, err := metrics.Open(cfg.Metrics.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			providers, err := store.ProviderStats(days)
			if err != nil {
				return err
			}
			events, err := store.Recent(recent)
			if err != nil {
				return err
			}

			today, err := store.TodayStats()
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(map[string]interface{}{
					"today":     today,
					"providers": providers,
					"recent":    events,
				})
			}

			dash := metrics.NewDashboard(metrics.NewCollector(store))
			fmt.Println(titleStyle.Render("Today"))
			fmt.Printf("%d requests · %d failed · %d escalated · %.0fms avg · %.0f%% local\n\n",
				today.TotalRequests, today.FailedReqs, today.Escalations, today.AvgLatencyMs, today.LocalRate)
			fmt.Println(titleStyle.Render(fmt.Sprintf("Routing history (last %d days)", days)))
			fmt.Println(dash.RenderProviders(providers))

			if len(events) > 0 {
				fmt.Println()
				fmt.Println(titleStyle.Render("Recent routes"))
				for _, ev := range events {
					fmt.Println(formatEvent(ev))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "history window in days")
	cmd.Flags().IntVar(&recent, "recent", 10, "number of recent routes to list")
	return cmd
}
