package kit

import "context"

type ctxKey int

const (
	clientKey ctxKey = iota
	scopeKey
	transportKey
	traceIDKey
)

// WithClient records the control client that made the call.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// GetClient returns the control client, or "" for local calls.
func GetClient(ctx context.Context) string {
	v, _ := ctx.Value(clientKey).(string)
	return v
}

// WithScope records the control token scope ("read" or "write").
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

func GetScope(ctx context.Context) string {
	v, _ := ctx.Value(scopeKey).(string)
	return v
}

// WithTransport records the surface a call came in on: "http" or "mcp".
func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport defaults to "local" for calls made in-process.
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(transportKey).(string); ok {
		return v
	}
	return "local"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}
