// Package kit is the transport-neutral layer between the studio engine and
// its outer surfaces: an operation is written once as an Endpoint and served
// over HTTP and MCP.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is one operation: decoded request in, response out.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(next Endpoint) Endpoint

// Chain composes middlewares; the first is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs each call of the named operation with its transport.
func Logging(logger *slog.Logger, op string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{"op", op, "transport", GetTransport(ctx), "duration_ms", time.Since(start).Milliseconds()}
			if c := GetClient(ctx); c != "" {
				attrs = append(attrs, "client", c)
			}
			if err != nil {
				logger.WarnContext(ctx, "kit: op failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "kit: op ok", attrs...)
			}
			return resp, err
		}
	}
}
