package obs

import (
	"context"

	"github.com/go-chi/chi/v5"
)

type routeKey struct{}

// requestRoute lets middleware mounted above the router read the pattern the
// router matched. chi fills rctx in place while routing, so reading it after
// the handler returns yields the full pattern including mount prefixes.
type requestRoute struct {
	pattern string
	rctx    *chi.Context
}

// WithRoutePattern pins the route pattern on the context.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routeKey{}, &requestRoute{pattern: pattern})
}

func trackRoute(ctx context.Context) context.Context {
	rc := chi.RouteContext(ctx)
	if rc == nil {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, &requestRoute{rctx: rc})
}

// RoutePatternFromContext returns the matched route pattern, or "" before the
// router has matched anything.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if rt, ok := ctx.Value(routeKey{}).(*requestRoute); ok {
		if rt.pattern != "" {
			return rt.pattern
		}
		if rt.rctx != nil {
			return rt.rctx.RoutePattern()
		}
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
