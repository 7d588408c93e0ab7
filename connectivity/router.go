// Package connectivity routes named actions (generateTitles, checkAuth, ...)
// to a handler. The page side never holds API credentials: it sends an
// action through the Router and the privileged background service answers.
//
// By default every action is served by a local handler registered in the
// same process. A row in the routes table can reroute an action to an HTTP
// endpoint or disable it ("noop") at runtime:
//
//	router := connectivity.New()
//	router.RegisterTransport("http", connectivity.HTTPFactory())
//	router.RegisterLocal("generateTitles", bg.GenerateTitles)
//	go router.Watch(ctx, db, time.Second)
//
//	resp, err := router.Call(ctx, "generateTitles", payload)
package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Handler is a transport-agnostic action handler: JSON bytes in, JSON bytes out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory builds a Handler for a remote endpoint from a route row.
// close may be nil.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

// ServiceMiddleware builds a HandlerMiddleware for one call target. The
// router applies it to every Call.
type ServiceMiddleware func(service, strategy string) HandlerMiddleware

type route struct {
	Service  string
	Strategy string
	Endpoint string
	Config   json.RawMessage
}

func (rt route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + string(rt.Config)
}

type remoteEntry struct {
	handler Handler
	close   func()
	timeout time.Duration
}

// Router dispatches action calls. Safe for concurrent use.
type Router struct {
	mu        sync.RWMutex
	locals    map[string]Handler
	remotes   map[string]remoteEntry
	routes    map[string]route
	factories map[string]TransportFactory
	mws       []ServiceMiddleware
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware adds per-call middleware, outermost first.
func WithMiddleware(mws ...ServiceMiddleware) Option {
	return func(r *Router) { r.mws = append(r.mws, mws...) }
}

// New creates a Router with no routes.
func New(opts ...Option) *Router {
	r := &Router{
		locals:    make(map[string]Handler),
		remotes:   make(map[string]remoteEntry),
		routes:    make(map[string]route),
		factories: make(map[string]TransportFactory),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers the in-process handler for an action.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.locals[service] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for a route strategy ("http").
func (r *Router) RegisterTransport(strategy string, f TransportFactory) {
	r.mu.Lock()
	r.factories[strategy] = f
	r.mu.Unlock()
}

// Services lists every action that has a local handler or a route.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for s := range r.locals {
		seen[s] = true
	}
	for s := range r.routes {
		seen[s] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Call dispatches an action. Resolution order: noop route (returns nil, nil),
// remote route, local handler, ErrServiceNotFound.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	remote, hasRemote := r.remotes[service]
	local := r.locals[service]
	rt, hasRoute := r.routes[service]
	mws := r.mws
	r.mu.RUnlock()

	if hasRoute && rt.Strategy == "noop" {
		r.logger.DebugContext(ctx, "connectivity: noop", "service", service)
		return nil, nil
	}

	var h Handler
	strategy := "local"
	switch {
	case hasRemote:
		h, strategy = remote.handler, rt.Strategy
		if remote.timeout > 0 {
			h = remoteTimeout(service, remote.timeout)(h)
		}
	case local != nil:
		h = local
	default:
		return nil, &ErrServiceNotFound{Service: service}
	}

	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](service, strategy)(h)
	}
	return h(ctx, payload)
}

// Reload reads the routes table and rebuilds the remote handlers whose row
// changed. Unchanged routes keep their handler.
func (r *Router) Reload(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT service_name, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}') FROM routes`)
	if err != nil {
		return fmt.Errorf("connectivity: query routes: %w", err)
	}
	defer rows.Close()

	next := make(map[string]route)
	for rows.Next() {
		var rt route
		var cfg string
		if err := rows.Scan(&rt.Service, &rt.Strategy, &rt.Endpoint, &cfg); err != nil {
			return fmt.Errorf("connectivity: scan route: %w", err)
		}
		rt.Config = json.RawMessage(cfg)
		next[rt.Service] = rt
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("connectivity: rows: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make(map[string]remoteEntry, len(next))
	var buildErrs []error
	for name, rt := range next {
		if rt.Strategy == "local" || rt.Strategy == "noop" {
			continue
		}
		if old, ok := r.routes[name]; ok && old.fingerprint() == rt.fingerprint() {
			if e, ok := r.remotes[name]; ok {
				entries[name] = e
				continue
			}
		}
		factory, ok := r.factories[rt.Strategy]
		if !ok {
			buildErrs = append(buildErrs, &ErrNoFactory{Service: name, Strategy: rt.Strategy})
			continue
		}
		h, closeFn, err := factory(rt.Endpoint, rt.Config)
		if err != nil {
			buildErrs = append(buildErrs, &ErrFactoryFailed{Service: name, Strategy: rt.Strategy, Endpoint: rt.Endpoint, Cause: err})
			continue
		}
		entries[name] = remoteEntry{handler: h, close: closeFn, timeout: callTimeout(rt.Config, 0)}
		r.logger.Info("connectivity: route built", "service", name, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
	}

	for name, old := range r.remotes {
		if old.close == nil {
			continue
		}
		if _, kept := entries[name]; !kept || r.routes[name].fingerprint() != next[name].fingerprint() {
			old.close()
		}
	}

	r.remotes = entries
	r.routes = next
	for _, err := range buildErrs {
		r.logger.Warn("connectivity: route skipped", "error", err)
	}
	r.logger.Info("connectivity: routes reloaded", "total", len(next), "remote", len(entries))
	return errors.Join(buildErrs...)
}

// Close shuts down all remote handlers.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.remotes {
		if e.close != nil {
			e.close()
		}
	}
	r.remotes = make(map[string]remoteEntry)
	r.routes = make(map[string]route)
	return nil
}

func callTimeout(cfg json.RawMessage, def time.Duration) time.Duration {
	var parsed struct {
		TimeoutMs int64 `json:"timeout_ms"`
	}
	if json.Unmarshal(cfg, &parsed) == nil && parsed.TimeoutMs > 0 {
		return time.Duration(parsed.TimeoutMs) * time.Millisecond
	}
	return def
}

// remoteTimeout bounds a remote call and reports expiry as ErrCallTimeout.
func remoteTimeout(service string, d time.Duration) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			resp, err := next(cctx, payload)
			if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, &ErrCallTimeout{Service: service}
			}
			return resp, err
		}
	}
}
