package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/normanking/quadrant/internal/llm"
	"github.com/normanking/quadrant/internal/logging"
	"github.com/normanking/quadrant/internal/quadrant"
)

// slot wraps a provider with init-once and liveness tracking.
type slot struct {
	provider    llm.Provider
	timeout     time.Duration
	initTimeout time.Duration
	enabled     atomic.Bool
	log         *logging.Logger

	once       sync.Once
	ready      chan struct{} // closed when initialization finishes
	cancelInit context.CancelFunc
	live       atomic.Bool
	dead       atomic.Bool
	initErr    error // written before ready is closed
}

func newSlot(p llm.Provider, timeout, initTimeout time.Duration, log *logging.Logger) *slot {
	s := &slot{
		provider:    p,
		timeout:     timeout,
		initTimeout: initTimeout,
		ready:       make(chan struct{}),
		log:         log,
	}
	s.enabled.Store(true)
	return s
}

func (s *slot) id() string { return s.provider.Name() }

// available reports whether the slot may still serve requests.
func (s *slot) available(c quadrant.Capability) bool {
	return s.enabled.Load() && !s.dead.Load() && llm.Supports(s.provider, c)
}

// ensureInit starts initialization on first use and waits up to wait for it.
// The initialization itself runs detached from ctx so an impatient caller
// cannot leave the provider half-initialized.
func (s *slot) ensureInit(ctx context.Context, wait time.Duration) error {
	s.once.Do(func() {
		initCtx, cancel := logging.DetachContextWithTimeout(ctx, s.initTimeout)
		s.cancelInit = cancel
		go func() {
			defer cancel()
			defer close(s.ready)
			start := time.Now()
			err := s.safeInitialize(initCtx)
			if err != nil {
				s.initErr = err
				s.dead.Store(true)
				s.log.Warn("[Router] %s initialization failed, marking not live: %v", s.id(), err)
				return
			}
			s.live.Store(true)
			s.log.Info("[Router] %s initialized in %v", s.id(), time.Since(start).Round(time.Millisecond))
		}()
	})

	if s.live.Load() {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-s.ready:
		if s.live.Load() {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", quadrant.ErrProviderUnavailable, s.id(), s.initErr)
	case <-timer.C:
		return fmt.Errorf("%w: %s still initializing", quadrant.ErrProviderUnavailable, s.id())
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *slot) safeInitialize(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initialize panic: %v", r)
		}
	}()
	return s.provider.Initialize(ctx)
}

// waitInit blocks until a started initialization finishes or ctx is done.
func (s *slot) waitInit(ctx context.Context) {
	select {
	case <-s.ready:
	case <-ctx.Done():
	}
}

type callResult struct {
	res quadrant.Result
	err error
}

// call runs the provider until deadline, or for the slot timeout when
// deadline is zero. The provider runs on its own goroutine so a hung provider
// cannot stall the caller past the bound; done is invoked when that goroutine
// actually returns.
func (s *slot) call(ctx context.Context, req quadrant.Request, deadline time.Time, done func()) (quadrant.Result, error) {
	if deadline.IsZero() {
		deadline = time.Now().Add(s.timeout)
	}
	callCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ch := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- callResult{err: fmt.Errorf("%w: %s panicked: %v", quadrant.ErrProviderUnavailable, s.id(), r)}
			}
			if done != nil {
				done()
			}
		}()
		res, err := s.provider.Execute(callCtx, req)
		ch <- callResult{res: res, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return quadrant.Result{}, fmt.Errorf("%w: %s: %v", quadrant.ErrProviderTimeout, s.id(), out.err)
			}
			return quadrant.Result{}, out.err
		}
		if !out.res.Quadrant.IsValid() {
			return quadrant.Result{}, fmt.Errorf("%w: %s returned unknown quadrant %q", quadrant.ErrParseFailure, s.id(), out.res.Quadrant)
		}
		return out.res, nil
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return quadrant.Result{}, err
		}
		return quadrant.Result{}, fmt.Errorf("%w: %s exceeded %v", quadrant.ErrProviderTimeout, s.id(), s.timeout)
	}
}

// shutdown stops new initializations, aborts a pending one and waits for it
// to return.
func (s *slot) shutdown() {
	s.enabled.Store(false)
	s.once.Do(func() { close(s.ready) })
	if s.cancelInit != nil {
		s.cancelInit()
	}
	<-s.ready
}

// release calls Release if initialization succeeded.
func (s *slot) release() error {
	if !s.live.Load() {
		return nil
	}
	s.live.Store(false)
	s.dead.Store(true)
	return s.provider.Release()
}

func (s *slot) descriptor() ProviderDescriptor {
	d := ProviderDescriptor{
		ID:           s.id(),
		Kind:         s.provider.Kind(),
		Capabilities: s.provider.Capabilities(),
		Live:         s.enabled.Load() && !s.dead.Load(),
		Initialized:  s.live.Load(),
		Enabled:      s.enabled.Load(),
	}
	select {
	case <-s.ready:
		if s.initErr != nil {
			d.InitError = s.initErr.Error()
		}
	default:
	}
	return d
}
