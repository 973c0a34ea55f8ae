package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/normanking/quadrant/internal/llm"
	"github.com/normanking/quadrant/internal/logging"
	"github.com/normanking/quadrant/internal/metrics"
	"github.com/normanking/quadrant/internal/quadrant"
)

// Router routes classification requests through the escalation chain.
// It tries the pattern classifier first and only escalates when the
// confidence is below the threshold. It never fails a well-formed request:
// the pattern result is the guaranteed floor.
type Router struct {
	classifier *quadrant.PatternClassifier
	neural     *slot
	remote     *slot
	threshold  float64

	neuralTimeout time.Duration
	remoteTimeout time.Duration
	initTimeout   time.Duration
	initWait      time.Duration
	neuralSem     *semaphore.Weighted

	pendingNeural llm.Provider
	pendingRemote llm.Provider
	remoteEnabled bool

	recorder metrics.Recorder
	log      *logging.Logger

	// Statistics (thread-safe)
	stats RouterStats
	mu    sync.RWMutex

	closeOnce sync.Once
}

// Option is a functional option for configuring Router.
type Option func(*Router)

// WithThreshold sets a custom confidence threshold.
func WithThreshold(threshold float64) Option {
	return func(r *Router) {
		r.threshold = threshold
	}
}

// WithClassifier replaces the default pattern classifier.
func WithClassifier(c *quadrant.PatternClassifier) Option {
	return func(r *Router) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithNeural registers the on-device provider.
func WithNeural(p llm.Provider) Option {
	return func(r *Router) {
		r.pendingNeural = p
	}
}

// WithRemote registers the remote provider. It is only consulted when
// enabled is true.
func WithRemote(p llm.Provider, enabled bool) Option {
	return func(r *Router) {
		r.pendingRemote = p
		r.remoteEnabled = enabled
	}
}

// WithNeuralTimeout bounds each neural call.
func WithNeuralTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.neuralTimeout = d
		}
	}
}

// WithRemoteTimeout bounds each remote call.
func WithRemoteTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.remoteTimeout = d
		}
	}
}

// WithInitTimeout bounds provider initialization.
func WithInitTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.initTimeout = d
		}
	}
}

// WithInitWait sets how long a request waits on a pending initialization.
// Zero means do not wait at all.
func WithInitWait(d time.Duration) Option {
	return func(r *Router) {
		if d >= 0 {
			r.initWait = d
		}
	}
}

// WithNeuralConcurrency caps in-flight neural calls. Requests that cannot get
// a slot within the neural timeout skip the tier.
func WithNeuralConcurrency(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.neuralSem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithRecorder sets where route events are sent.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Router) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithLogger sets the router logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a Router. With no providers registered it is a pure
// pattern classifier with provenance and stats.
func New(opts ...Option) *Router {
	r := &Router{
		classifier:    quadrant.NewPatternClassifier(),
		threshold:     DefaultConfidenceThreshold,
		neuralTimeout: DefaultNeuralTimeout,
		remoteTimeout: DefaultRemoteTimeout,
		initTimeout:   DefaultInitTimeout,
		initWait:      DefaultInitWait,
		recorder:      metrics.Nop{},
		log:           logging.Global().WithComponent("router"),
		stats:         newStats(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.pendingNeural != nil {
		r.neural = newSlot(r.pendingNeural, r.neuralTimeout, r.initTimeout, r.log)
	}
	if r.pendingRemote != nil {
		r.remote = newSlot(r.pendingRemote, r.remoteTimeout, r.initTimeout, r.log)
		r.remote.enabled.Store(r.remoteEnabled)
	}
	r.pendingNeural, r.pendingRemote = nil, nil

	return r
}

// Threshold returns the confidence threshold.
func (r *Router) Threshold() float64 {
	return r.threshold
}

// SetRemoteEnabled flips the remote policy switch at runtime.
func (r *Router) SetRemoteEnabled(enabled bool) {
	if r.remote != nil {
		r.remote.enabled.Store(enabled)
	}
}

// Warmup starts initialization of every registered provider and waits for
// it to finish or for ctx to end.
func (r *Router) Warmup(ctx context.Context) {
	for _, s := range []*slot{r.neural, r.remote} {
		if s == nil || !s.enabled.Load() {
			continue
		}
		_ = s.ensureInit(ctx, 0)
		s.waitInit(ctx)
	}
}

// RouteText builds a request from text and routes it.
func (r *Router) RouteText(ctx context.Context, text string, opts ...quadrant.RequestOption) (quadrant.Result, error) {
	req, err := quadrant.NewRequest(text, opts...)
	if err != nil {
		r.countInputError()
		return quadrant.Result{}, err
	}
	return r.Route(ctx, req)
}

// Route classifies req. The only errors returned are *quadrant.InputError
// for blank input and the context error when ctx ends mid-route.
func (r *Router) Route(ctx context.Context, req quadrant.Request) (quadrant.Result, error) {
	if err := req.Validate(); err != nil {
		r.countInputError()
		return quadrant.Result{}, err
	}

	tr := &trace{start: time.Now(), req: req}

	if err := ctx.Err(); err != nil {
		return r.abandon(tr, err)
	}

	// 1. Pattern classifier
	base := r.classifier.ClassifyRequest(req)
	base.Provenance.ProviderID = quadrant.PatternProviderID
	base.Provenance.Kind = quadrant.KindDeterministic
	tr.attempt(quadrant.PatternProviderID)

	if base.Confidence >= r.threshold {
		r.recorder.RecordTier(quadrant.KindDeterministic, metrics.OutcomeAccepted, time.Since(tr.start))
		return r.finish(tr, base, false), nil
	}
	r.recorder.RecordTier(quadrant.KindDeterministic, metrics.OutcomeLowConf, time.Since(tr.start))
	r.log.Debug("[Router] pattern confidence %.2f below %.2f for %q, escalating", base.Confidence, r.threshold, truncate(req.Text(), 60))

	var candidate *quadrant.Result

	// 2. Neural provider
	if r.neural != nil && r.neural.available(req.Capability()) {
		res, err := r.invokeNeural(ctx, tr)
		if cerr := ctx.Err(); cerr != nil {
			return r.abandon(tr, cerr)
		}
		if err == nil {
			if res.Confidence >= r.threshold || !r.remoteAvailable(req.Capability()) {
				return r.finish(tr, res, true), nil
			}
			candidate = &res
		}
	}

	// 3. Remote provider
	if r.remoteAvailable(req.Capability()) {
		res, err := r.invoke(ctx, tr, r.remote, time.Time{}, nil)
		if cerr := ctx.Err(); cerr != nil {
			return r.abandon(tr, cerr)
		}
		if err == nil {
			return r.finish(tr, res, true), nil
		}
	}

	// 4. Best collected result, else the pattern floor
	if candidate != nil && candidate.Confidence > base.Confidence {
		return r.finish(tr, *candidate, true), nil
	}
	r.mu.Lock()
	r.stats.Fallbacks++
	r.mu.Unlock()
	return r.finish(tr, base, true), nil
}

func (r *Router) remoteAvailable(c quadrant.Capability) bool {
	return r.remote != nil && r.remote.available(c)
}

// invokeNeural applies the optional concurrency bound around the neural call.
// The permit wait, the init wait and the call share one neural deadline.
func (r *Router) invokeNeural(ctx context.Context, tr *trace) (quadrant.Result, error) {
	start := time.Now()
	deadline := start.Add(r.neuralTimeout)
	if r.neuralSem == nil {
		return r.invoke(ctx, tr, r.neural, deadline, nil)
	}

	semCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	if err := r.neuralSem.Acquire(semCtx, 1); err != nil {
		r.recorder.RecordTier(quadrant.KindNeural, metrics.OutcomeSkipped, time.Since(start))
		r.log.Debug("[Router] neural tier saturated, skipping")
		return quadrant.Result{}, fmt.Errorf("%w: neural tier saturated", quadrant.ErrProviderUnavailable)
	}
	return r.invoke(ctx, tr, r.neural, deadline, func() { r.neuralSem.Release(1) })
}

// invoke runs one escalation step and records its outcome. A zero deadline
// gives the call the slot's own timeout.
func (r *Router) invoke(ctx context.Context, tr *trace, s *slot, deadline time.Time, done func()) (quadrant.Result, error) {
	kind := s.provider.Kind()
	start := time.Now()

	wait := r.initWait
	if !deadline.IsZero() {
		if left := time.Until(deadline); left < wait {
			wait = max(left, 0)
		}
	}
	if err := s.ensureInit(ctx, wait); err != nil {
		if done != nil {
			done()
		}
		if ctx.Err() != nil {
			return quadrant.Result{}, err
		}
		r.recorder.RecordTier(kind, metrics.OutcomeUnavailable, time.Since(start))
		r.log.Debug("[Router] skipping %s: %v", s.id(), err)
		return quadrant.Result{}, err
	}

	tr.attempt(s.id())
	res, err := s.call(ctx, tr.req, deadline, done)
	latency := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return quadrant.Result{}, err
		}
		outcome := metrics.OutcomeFailed
		r.mu.Lock()
		r.stats.ProviderFailures[s.id()]++
		if errors.Is(err, quadrant.ErrProviderTimeout) {
			r.stats.Timeouts++
			outcome = metrics.OutcomeTimeout
		}
		r.mu.Unlock()
		r.recorder.RecordTier(kind, outcome, latency)
		r.log.Warn("[Router] %s failed after %v, falling through: %v", s.id(), latency.Round(time.Millisecond), err)
		return quadrant.Result{}, err
	}

	urgent, important := res.Urgent, res.Important
	res = quadrant.NewResult(res.Quadrant, res.Confidence, res.Reasoning)
	res.Urgent, res.Important = urgent, important
	res.Provenance.ProviderID = s.id()
	res.Provenance.Kind = kind

	outcome := metrics.OutcomeAccepted
	if res.Confidence < r.threshold {
		outcome = metrics.OutcomeLowConf
	}
	r.recorder.RecordTier(kind, outcome, latency)
	r.log.Debug("[Router] %s -> %s (%.2f) in %v", s.id(), res.Quadrant, res.Confidence, latency.Round(time.Millisecond))
	return res, nil
}

// trace accumulates per-request routing state.
type trace struct {
	start    time.Time
	req      quadrant.Request
	attempts []string
}

func (t *trace) attempt(id string) {
	t.attempts = append(t.attempts, id)
}

// finish stamps provenance, updates stats and emits the route event.
func (r *Router) finish(tr *trace, res quadrant.Result, escalated bool) quadrant.Result {
	res.Provenance.Attempts = append([]string(nil), tr.attempts...)
	res.Provenance.Latency = time.Since(tr.start)
	res.CorrelationID = tr.req.CorrelationID()

	r.mu.Lock()
	r.stats.TotalRequests++
	switch res.Provenance.Kind {
	case quadrant.KindNeural:
		r.stats.NeuralHits++
	case quadrant.KindRemote:
		r.stats.RemoteHits++
	default:
		r.stats.DeterministicHits++
	}
	if escalated {
		r.stats.Escalations++
	}
	r.stats.QuadrantDistribution[res.Quadrant]++
	answered := float64(r.stats.DeterministicHits + r.stats.NeuralHits + r.stats.RemoteHits)
	r.stats.AverageConfidence = (r.stats.AverageConfidence*(answered-1) + res.Confidence) / answered
	r.mu.Unlock()

	r.emit(metrics.RouteEvent{
		CorrelationID: res.CorrelationID,
		Provider:      res.Provenance.ProviderID,
		Kind:          res.Provenance.Kind,
		Quadrant:      res.Quadrant,
		Confidence:    res.Confidence,
		Latency:       res.Provenance.Latency,
		Attempts:      res.Provenance.Attempts,
		Escalated:     escalated,
		Success:       true,
	})
	return res
}

// abandon records a request the caller gave up on.
func (r *Router) abandon(tr *trace, err error) (quadrant.Result, error) {
	r.mu.Lock()
	r.stats.TotalRequests++
	r.stats.Cancelled++
	r.mu.Unlock()

	last := quadrant.PatternProviderID
	kind := quadrant.KindDeterministic
	if n := len(tr.attempts); n > 0 {
		last = tr.attempts[n-1]
		switch {
		case r.neural != nil && last == r.neural.id():
			kind = quadrant.KindNeural
		case r.remote != nil && last == r.remote.id():
			kind = quadrant.KindRemote
		}
	}
	r.emit(metrics.RouteEvent{
		CorrelationID: tr.req.CorrelationID(),
		Provider:      last,
		Kind:          kind,
		Latency:       time.Since(tr.start),
		Attempts:      append([]string(nil), tr.attempts...),
		Escalated:     len(tr.attempts) > 1,
		Error:         err.Error(),
	})
	r.log.Debug("[Router] request abandoned after %v: %v", time.Since(tr.start).Round(time.Millisecond), err)
	return quadrant.Result{}, err
}

func (r *Router) emit(ev metrics.RouteEvent) {
	ev.At = time.Now()
	if err := r.recorder.RecordRoute(ev); err != nil {
		r.log.Warn("[Router] failed to record route: %v", err)
	}
}

func (r *Router) countInputError() {
	r.mu.Lock()
	r.stats.TotalRequests++
	r.stats.InputErrors++
	r.mu.Unlock()
}

// Providers describes the registered tiers in escalation order.
func (r *Router) Providers() []ProviderDescriptor {
	out := []ProviderDescriptor{{
		ID:           quadrant.PatternProviderID,
		Kind:         quadrant.KindDeterministic,
		Capabilities: []quadrant.Capability{quadrant.CapabilityClassify},
		Live:         true,
		Initialized:  true,
		Enabled:      true,
	}}
	if r.neural != nil {
		out = append(out, r.neural.descriptor())
	}
	if r.remote != nil {
		out = append(out, r.remote.descriptor())
	}
	return out
}

// Stats returns a copy of the current routing statistics.
func (r *Router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.stats
	s.ProviderFailures = make(map[string]int64, len(r.stats.ProviderFailures))
	for k, v := range r.stats.ProviderFailures {
		s.ProviderFailures[k] = v
	}
	s.QuadrantDistribution = make(map[quadrant.Quadrant]int64, len(r.stats.QuadrantDistribution))
	for k, v := range r.stats.QuadrantDistribution {
		s.QuadrantDistribution[k] = v
	}
	return s
}

// ResetStats resets all routing statistics.
func (r *Router) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = newStats()
}

// Close releases every initialized provider. A pending initialization is
// cancelled and awaited so nothing is left loading after Close returns.
func (r *Router) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		for _, s := range []*slot{r.neural, r.remote} {
			if s == nil {
				continue
			}
			s.shutdown()
			if err := s.release(); err != nil {
				errs = append(errs, fmt.Errorf("release %s: %w", s.id(), err))
			}
		}
	})
	return errors.Join(errs...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
