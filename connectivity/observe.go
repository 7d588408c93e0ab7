package connectivity

import (
	"context"
	"time"

	"github.com/hazyhaar/tubemaster/observability"
)

// Metric names recorded by WithObservability.
const (
	MetricCallDuration = "connectivity.call.duration_ms"
	MetricCallError    = "connectivity.call.error"
)

// WithObservability records every call's duration, and failures, in mm.
func WithObservability(mm *observability.MetricsManager) ServiceMiddleware {
	return func(service, strategy string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, payload []byte) ([]byte, error) {
				start := time.Now()
				resp, err := next(ctx, payload)
				labels := map[string]string{"service": service, "strategy": strategy}
				mm.Record(&observability.Metric{
					Name:      MetricCallDuration,
					Timestamp: start,
					Value:     float64(time.Since(start).Milliseconds()),
					Labels:    labels,
					Unit:      "milliseconds",
				})
				if err != nil {
					mm.Record(&observability.Metric{
						Name:      MetricCallError,
						Timestamp: start,
						Value:     1,
						Labels:    labels,
						Unit:      "count",
					})
				}
				return resp, err
			}
		}
	}
}
