package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/tubemaster/idgen"
	"github.com/hazyhaar/tubemaster/kit"
)

var newTraceID = idgen.NanoID(8)

// TraceID tags each request with a trace ID (kit.GetTraceID, X-Trace-ID
// header) and a per-request logger (LoggerKey).
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := newTraceID()
		ctx := kit.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("shield: request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger returns the per-request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
