package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"
)

// HandlerMiddleware wraps a Handler without changing its signature.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares; the first is the outermost.
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of service with its duration.
func Logging(logger *slog.Logger) ServiceMiddleware {
	return func(service, strategy string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, payload []byte) ([]byte, error) {
				start := time.Now()
				resp, err := next(ctx, payload)
				dur := time.Since(start)
				if err != nil {
					logger.WarnContext(ctx, "connectivity: call failed",
						"service", service, "strategy", strategy,
						"duration_ms", dur.Milliseconds(), "error", err)
				} else {
					logger.DebugContext(ctx, "connectivity: call ok",
						"service", service, "strategy", strategy,
						"duration_ms", dur.Milliseconds(), "response_bytes", len(resp))
				}
				return resp, err
			}
		}
	}
}

// Timeout bounds every call to d. The handler goroutine may keep running but
// the caller gets context.DeadlineExceeded.
func Timeout(d time.Duration) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if d <= 0 {
				return next(ctx, payload)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, payload)
		}
	}
}

// Recovery converts handler panics into *ErrPanic.
func Recovery(logger *slog.Logger) ServiceMiddleware {
	return func(service, _ string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, payload []byte) (resp []byte, err error) {
				defer func() {
					if v := recover(); v != nil {
						logger.ErrorContext(ctx, "connectivity: handler panic recovered",
							"service", service, "panic", v, "stack", string(debug.Stack()))
						err = &ErrPanic{Service: service, Value: v}
					}
				}()
				return next(ctx, payload)
			}
		}
	}
}

// WithFallback falls back to local when the primary handler fails. Caller
// cancellation is returned as is.
func WithFallback(local Handler, service string, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		if local == nil {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			resp, err := next(ctx, payload)
			if err == nil || ctx.Err() != nil {
				return resp, err
			}
			if logger != nil {
				logger.WarnContext(ctx, "connectivity: remote failed, falling back to local",
					"service", service, "remote_error", err)
			}
			return local(ctx, payload)
		}
	}
}

// WithRetry retries failed calls with exponential backoff starting at base.
// Open circuits and caller cancellation are not retried.
func WithRetry(maxRetries int, base time.Duration, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				resp, err := next(ctx, payload)
				if err == nil {
					return resp, nil
				}
				lastErr = err
				var open *ErrCircuitOpen
				if ctx.Err() != nil || errors.As(err, &open) {
					return nil, err
				}
				if attempt == maxRetries {
					break
				}
				wait := base * (1 << uint(attempt))
				if logger != nil {
					logger.WarnContext(ctx, "connectivity: retrying call",
						"attempt", attempt+1, "max_retries", maxRetries,
						"backoff_ms", wait.Milliseconds(), "error", err)
				}
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil, lastErr
				case <-t.C:
				}
			}
			return nil, lastErr
		}
	}
}
