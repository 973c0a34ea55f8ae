package logging

import (
	"context"
	"time"
)

// DetachContext returns a context that keeps the parent's values but is
// never cancelled with it.
func DetachContext(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// DetachContextWithTimeout detaches from parent and applies its own deadline.
// Provider warm-up uses it so a cancelled request cannot abort a model load
// that later requests will reuse:
//
//	initCtx, cancel := logging.DetachContextWithTimeout(ctx, 30*time.Second)
//	defer cancel()
//	err := provider.Initialize(initCtx)
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
