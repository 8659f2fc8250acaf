package channel

import "context"

// Handler processes one request of type R.
type Handler[R any] func(ctx context.Context, req R) error

// Middleware wraps a Handler with a cross-cutting check or side effect.
// A middleware that rejects a request returns without calling next.
type Middleware[R any] func(next Handler[R]) Handler[R]

// Chain wraps h with mws. The first middleware is the outermost, so it runs
// first on the way in and last on the way out.
func Chain[R any](h Handler[R], mws ...Middleware[R]) Handler[R] {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
