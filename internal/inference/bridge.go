// Package inference owns the on-device model. A Bridge holds at most one
// loaded model at a time and serializes every load, generate and unload
// against it. Backends plug in the actual runtime: a llama-server process
// or a deterministic simulated stand-in for machines without one.
package inference

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/normanking/quadrant/internal/logging"
	"github.com/normanking/quadrant/internal/quadrant"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultGenerateTimeout bounds a single generation once it holds the lock.
	DefaultGenerateTimeout = 60 * time.Second

	// DefaultLoadTimeout bounds opening the model.
	DefaultLoadTimeout = 2 * time.Minute

	// MaxContextSize is the largest context window the bridge will request.
	MaxContextSize = 131072

	// MaxThreads caps the worker threads passed to the runtime.
	MaxThreads = 256
)

// ═══════════════════════════════════════════════════════════════════════════════
// TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// LoadSpec describes the weights to load.
type LoadSpec struct {
	Path        string
	ContextSize int
	Threads     int

	// ExpectedSize, when positive, must equal the file size in bytes.
	ExpectedSize int64
}

// GenerateParams are the sampling parameters of one generation.
type GenerateParams struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// LoadOutcome reports a load attempt. Failures carry a reason instead of an error.
type LoadOutcome struct {
	Success     bool
	Reason      string
	LoadTime    time.Duration
	Degraded    bool
	MemoryBytes int64
}

// Err converts a failed outcome into an error wrapping quadrant.ErrResourceLoad.
func (o LoadOutcome) Err() error {
	if o.Success {
		return nil
	}
	return fmt.Errorf("%w: %s", quadrant.ErrResourceLoad, o.Reason)
}

// GenerateOutcome reports one generation.
type GenerateOutcome struct {
	Success  bool
	Reason   string
	Text     string
	Tokens   int
	Duration time.Duration
}

// TokensPerSecond derives throughput from the recorded tokens and duration.
func (o GenerateOutcome) TokensPerSecond() float64 {
	if o.Duration <= 0 {
		return 0
	}
	return float64(o.Tokens) / o.Duration.Seconds()
}

// Stats is a snapshot of bridge instrumentation.
type Stats struct {
	Backend           string
	Loaded            bool
	Degraded          bool
	ModelPath         string
	Loads             int64
	LoadFailures      int64
	Generations       int64
	GenerateFailures  int64
	LastLoadTime      time.Duration
	LastInferenceTime time.Duration
	LastTokens        int
	TotalTokens       int64
	MemoryBytes       int64
}

// Config configures a Bridge.
type Config struct {
	GenerateTimeout time.Duration
	LoadTimeout     time.Duration

	// OnGenerate, if set, observes every generation that reached the backend.
	OnGenerate func(backend string, success bool, d time.Duration)
}

// DefaultConfig returns the default bridge timeouts.
func DefaultConfig() Config {
	return Config{
		GenerateTimeout: DefaultGenerateTimeout,
		LoadTimeout:     DefaultLoadTimeout,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// BRIDGE
// ═══════════════════════════════════════════════════════════════════════════════

// Bridge owns exactly one model handle at a time.
//
// State machine: Unloaded -> Load -> Loaded -> Generate* -> Unload -> Unloaded.
// Loading while Loaded closes the previous handle first.
type Bridge struct {
	backend Backend
	cfg     Config
	log     *logging.Logger

	// lock is a one-slot semaphore so waiters can give up on their context.
	lock chan struct{}

	initOnce sync.Once
	initErr  error

	// Guarded by lock.
	handle Handle
	spec   LoadSpec
	closed bool

	statsMu sync.RWMutex
	stats   Stats
}

// NewBridge creates a bridge over backend.
func NewBridge(backend Backend, cfg Config) *Bridge {
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = DefaultGenerateTimeout
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	return &Bridge{
		backend: backend,
		cfg:     cfg,
		log:     logging.Global().WithComponent("inference"),
		lock:    make(chan struct{}, 1),
		stats: Stats{
			Backend:  backend.Name(),
			Degraded: backend.Degraded(),
		},
	}
}

func (b *Bridge) acquire(ctx context.Context) error {
	select {
	case b.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) release() {
	<-b.lock
}

// Backend returns the backend name.
func (b *Bridge) Backend() string {
	return b.backend.Name()
}

// Degraded reports whether the bridge runs on a simulated backend.
func (b *Bridge) Degraded() bool {
	return b.backend.Degraded()
}

// Loaded reports whether a model is currently loaded.
func (b *Bridge) Loaded() bool {
	b.statsMu.RLock()
	defer b.statsMu.RUnlock()
	return b.stats.Loaded
}

// Stats returns a snapshot of bridge instrumentation.
func (b *Bridge) Stats() Stats {
	b.statsMu.RLock()
	defer b.statsMu.RUnlock()
	return b.stats
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOAD / UNLOAD
// ═══════════════════════════════════════════════════════════════════════════════

// Load opens the weights described by spec. It never returns an error or
// panics; failures are reported in the outcome.
func (b *Bridge) Load(ctx context.Context, spec LoadSpec) (out LoadOutcome) {
	start := time.Now()
	out.Degraded = b.backend.Degraded()

	fail := func(format string, args ...interface{}) LoadOutcome {
		out.Success = false
		out.Reason = fmt.Sprintf(format, args...)
		out.LoadTime = time.Since(start)
		b.statsMu.Lock()
		b.stats.LoadFailures++
		b.statsMu.Unlock()
		b.log.Warn("load failed: %s", out.Reason)
		return out
	}

	if err := b.acquire(ctx); err != nil {
		return fail("waiting for model lock: %v", err)
	}
	defer b.release()

	defer func() {
		if r := recover(); r != nil {
			out = fail("backend panic during load: %v", r)
		}
	}()

	if b.closed {
		return fail("bridge closed")
	}

	if b.handle != nil {
		b.log.Info("unloading %s before reload", b.spec.Path)
		b.unloadLocked()
	}

	if err := validateSpec(spec, b.backend.Degraded()); err != nil {
		return fail("%v", err)
	}

	b.initOnce.Do(func() {
		b.initErr = b.backend.Init()
	})
	if b.initErr != nil {
		return fail("backend %s init: %v", b.backend.Name(), b.initErr)
	}

	openCtx, cancel := context.WithTimeout(ctx, b.cfg.LoadTimeout)
	defer cancel()

	h, err := b.backend.Open(openCtx, spec)
	if err != nil {
		return fail("backend %s open: %v", b.backend.Name(), err)
	}

	b.handle = h
	b.spec = spec
	out.Success = true
	out.LoadTime = time.Since(start)
	out.MemoryBytes = h.MemoryBytes()

	b.statsMu.Lock()
	b.stats.Loaded = true
	b.stats.ModelPath = spec.Path
	b.stats.Loads++
	b.stats.LastLoadTime = out.LoadTime
	b.stats.MemoryBytes = out.MemoryBytes
	b.statsMu.Unlock()

	b.log.Info("loaded %s via %s in %v (degraded=%t)", spec.Path, b.backend.Name(), out.LoadTime.Round(time.Millisecond), out.Degraded)
	return out
}

// Unload releases the current model. Unloading an empty bridge is a no-op.
func (b *Bridge) Unload() error {
	if err := b.acquire(context.Background()); err != nil {
		return err
	}
	defer b.release()
	return b.unloadLocked()
}

func (b *Bridge) unloadLocked() error {
	if b.handle == nil {
		return nil
	}
	err := b.handle.Close()
	b.handle = nil
	b.spec = LoadSpec{}

	b.statsMu.Lock()
	b.stats.Loaded = false
	b.stats.ModelPath = ""
	b.stats.MemoryBytes = 0
	b.statsMu.Unlock()

	if err != nil {
		return fmt.Errorf("close handle: %w", err)
	}
	return nil
}

// Close unloads the model and shuts the backend down. The bridge cannot be
// reused afterwards.
func (b *Bridge) Close() error {
	if err := b.acquire(context.Background()); err != nil {
		return err
	}
	defer b.release()

	if b.closed {
		return nil
	}
	b.closed = true

	err := b.unloadLocked()
	if serr := b.backend.Shutdown(); serr != nil && err == nil {
		err = fmt.Errorf("shutdown %s: %w", b.backend.Name(), serr)
	}
	return err
}

// ═══════════════════════════════════════════════════════════════════════════════
// GENERATE
// ═══════════════════════════════════════════════════════════════════════════════

// Generate runs one generation against the loaded model. Concurrent callers
// queue on the model lock; ctx only bounds the wait. Once the lock is held
// the generation runs to completion under the bridge's own timeout so the
// execution context is never abandoned mid-call.
func (b *Bridge) Generate(ctx context.Context, params GenerateParams) (out GenerateOutcome) {
	fail := func(format string, args ...interface{}) GenerateOutcome {
		out.Success = false
		out.Reason = fmt.Sprintf(format, args...)
		b.statsMu.Lock()
		b.stats.GenerateFailures++
		b.statsMu.Unlock()
		return out
	}

	if params.MaxTokens <= 0 {
		return fail("max tokens must be positive, got %d", params.MaxTokens)
	}

	if err := b.acquire(ctx); err != nil {
		return fail("waiting for model lock: %v", err)
	}
	defer b.release()

	if b.handle == nil {
		return fail("no model loaded")
	}

	genCtx, cancel := logging.DetachContextWithTimeout(ctx, b.cfg.GenerateTimeout)
	defer cancel()

	start := time.Now()
	text, tokens, err := b.safeGenerate(genCtx, params)
	out.Duration = time.Since(start)
	if b.cfg.OnGenerate != nil {
		b.cfg.OnGenerate(b.backend.Name(), err == nil, out.Duration)
	}
	if err != nil {
		b.log.Warn("generate failed after %v: %v", out.Duration.Round(time.Millisecond), err)
		return fail("generate: %v", err)
	}

	out.Success = true
	out.Text = text
	out.Tokens = tokens

	b.statsMu.Lock()
	b.stats.Generations++
	b.stats.LastInferenceTime = out.Duration
	b.stats.LastTokens = tokens
	b.stats.TotalTokens += int64(tokens)
	b.statsMu.Unlock()

	b.log.Debug("generated %d tokens in %v (%.1f tok/s)", tokens, out.Duration.Round(time.Millisecond), out.TokensPerSecond())
	return out
}

func (b *Bridge) safeGenerate(ctx context.Context, params GenerateParams) (text string, tokens int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return b.handle.Generate(ctx, params)
}

// ═══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ═══════════════════════════════════════════════════════════════════════════════

func validateSpec(spec LoadSpec, degraded bool) error {
	if spec.ContextSize <= 0 || spec.ContextSize > MaxContextSize {
		return fmt.Errorf("cannot allocate context of %d tokens (max %d)", spec.ContextSize, MaxContextSize)
	}
	if spec.Threads <= 0 || spec.Threads > MaxThreads {
		return fmt.Errorf("invalid thread count %d", spec.Threads)
	}
	// The simulated runtime needs no weights on disk.
	if spec.Path == "" && degraded {
		return nil
	}
	return ValidateWeights(spec.Path, spec.ExpectedSize)
}

// ValidateWeights checks that path is a non-empty regular file and, when
// expected is positive, that its size matches.
func ValidateWeights(path string, expected int64) error {
	if path == "" {
		return fmt.Errorf("weights path is empty")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("weights %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("weights %s is not a regular file", path)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("weights %s is empty", path)
	}
	if expected > 0 && fi.Size() != expected {
		return fmt.Errorf("weights %s has size %d, expected %d", path, fi.Size(), expected)
	}
	return nil
}
