package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/normanking/quadrant/internal/config"
	"github.com/normanking/quadrant/internal/inference"
	"github.com/normanking/quadrant/internal/llm"
	"github.com/normanking/quadrant/internal/metrics"
	"github.com/normanking/quadrant/internal/quadrant"
	"github.com/normanking/quadrant/internal/router"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CLASSIFICATION STACK
// ═══════════════════════════════════════════════════════════════════════════════

// stack is the router with everything it owns.
type stack struct {
	router    *router.Router
	bridge    *inference.Bridge
	store     *metrics.Store
	collector *metrics.Collector
	prom      *metrics.Prom
	tiers     []*llm.MetricsProvider
}

// newBridge builds the inference bridge for the configured backend.
func newBridge(cfg *config.Config, prom *metrics.Prom) (*inference.Bridge, error) {
	backend, err := inference.NewBackend(cfg.BackendConfig())
	if err != nil {
		return nil, err
	}
	bc := cfg.BridgeConfig()
	if prom != nil {
		bc.OnGenerate = prom.RecordGeneration
	}
	bridge := inference.NewBridge(backend, bc)
	log.Debug("Inference backend: %s (degraded=%t)", bridge.Backend(), bridge.Degraded())
	return bridge, nil
}

// buildStack wires the pattern classifier, the neural and remote tiers and
// the metrics recorders from cfg.
func buildStack(cfg *config.Config) (*stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &stack{prom: metrics.NewProm()}

	if cfg.Metrics.Enabled {
		store, err := metrics.Open(cfg.Metrics.DBPath)
		if err != nil {
			// History is optional; classification still works without it.
			log.Warn("Metrics store unavailable: %v", err)
		} else {
			s.store = store
		}
	}
	s.collector = metrics.NewCollector(s.store)

	patternOpts, err := cfg.PatternOptions()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("pattern rules: %w", err)
	}

	opts := []router.Option{
		router.WithClassifier(quadrant.NewPatternClassifier(patternOpts...)),
		router.WithThreshold(cfg.Router.ConfidenceThreshold),
		router.WithNeuralTimeout(cfg.Router.NeuralTimeout),
		router.WithRemoteTimeout(cfg.Router.RemoteTimeout),
		router.WithInitTimeout(cfg.Router.InitTimeout),
		router.WithInitWait(cfg.Router.InitWait),
		router.WithNeuralConcurrency(cfg.Router.NeuralConcurrency),
		router.WithRecorder(metrics.Multi{s.collector, s.prom}),
		router.WithLogger(log.WithComponent("router")),
	}

	if cfg.Neural.Enabled {
		bridge, err := newBridge(cfg, s.prom)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.bridge = bridge
		neural := llm.WithMetrics(llm.NewNeuralProvider(bridge, cfg.LoadSpec(), cfg.NeuralProviderConfig()))
		s.tiers = append(s.tiers, neural)
		opts = append(opts, router.WithNeural(neural))
	}

	// The remote tier is registered even when disabled so it shows up in
	// the provider listing.
	remote := llm.WithMetrics(llm.NewRemoteProvider(cfg.RemoteProviderConfig()))
	s.tiers = append(s.tiers, remote)
	opts = append(opts, router.WithRemote(remote, cfg.Remote.Enabled))

	s.router = router.New(opts...)
	return s, nil
}

// warmup initializes the model tiers up front when the config asks for it.
func (s *stack) warmup(ctx context.Context, cfg *config.Config) {
	if !cfg.Router.WarmupOnStart {
		return
	}
	start := time.Now()
	s.router.Warmup(ctx)
	log.Info("Providers warmed up in %s", time.Since(start).Round(time.Millisecond))
}

// summary is the one-line session summary plus a line per model tier that
// was called.
func (s *stack) summary() []string {
	lines := []string{metrics.NewDashboard(s.collector).RenderCompact()}
	for _, t := range s.tiers {
		if m := t.Metrics(); m.Calls > 0 {
			lines = append(lines, m.String())
		}
	}
	return lines
}

// Close releases the providers, the model and the history database.
func (s *stack) Close() error {
	var errs []error
	if s.router != nil {
		errs = append(errs, s.router.Close())
	}
	if s.bridge != nil {
		errs = append(errs, s.bridge.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
