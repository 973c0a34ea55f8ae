package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/normanking/quadrant/internal/logging"
	"github.com/normanking/quadrant/internal/metrics"
	"github.com/normanking/quadrant/internal/quadrant"
	"github.com/normanking/quadrant/internal/router"
)

// Classifier is the part of the router the server drives.
type Classifier interface {
	Route(ctx context.Context, req quadrant.Request) (quadrant.Result, error)
	Providers() []router.ProviderDescriptor
	Stats() router.RouterStats
	Threshold() float64
}

// Server serves the classification API.
type Server struct {
	cfg        *Config
	classifier Classifier
	store      *metrics.Store
	prom       *metrics.Prom
	validate   *validator.Validate
	log        *logging.Logger
	startedAt  time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables the routing history endpoint.
func WithStore(store *metrics.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithProm enables the Prometheus scrape endpoint.
func WithProm(p *metrics.Prom) Option {
	return func(s *Server) {
		s.prom = p
	}
}

// New creates a server over c.
func New(cfg *Config, c Classifier, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		cfg:        cfg,
		classifier: c,
		validate:   newValidator(),
		log:        logging.Global().WithComponent("server"),
		startedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxTextBytes
	})
	return v
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/classify", s.handleClassify)
	mux.HandleFunc("POST /v1/brief", s.handleBrief)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	RegisterMetricsRoutes(mux, s.store, s.prom)
	return s.logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info("[Server] listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("[Server] stopped")
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Response(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, e *APIError) {
	writeJSON(w, e.Code, e)
}
