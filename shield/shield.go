// Package shield holds the HTTP middleware in front of the local control API:
// security headers, request tracing, body limits and per-endpoint rate limits
// on the routes that spend generation credits.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.ControlStack(rl) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// ControlStack returns the standard control API stack:
// HeadToGet → SecurityHeaders → MaxBody → TraceID → RateLimiter.
// rl may be nil.
func ControlStack(rl *RateLimiter) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(256 * 1024),
		TraceID,
	}
	if rl != nil {
		stack = append(stack, rl.Middleware)
	}
	return stack
}
