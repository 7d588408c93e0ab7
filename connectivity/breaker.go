package connectivity

import (
	"context"
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls pass through
	BreakerOpen                         // calls rejected
	BreakerHalfOpen                     // probes allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker stops hammering the generation API after repeated failures.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	successes    int
	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int
	lastFailure  time.Time
	now          func() time.Time
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerThreshold sets the consecutive failures that open the breaker.
func WithBreakerThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) { cb.threshold = n }
}

// WithBreakerResetTimeout sets how long the breaker stays open.
func WithBreakerResetTimeout(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// WithBreakerHalfOpenMax sets the half-open successes needed to close.
func WithBreakerHalfOpenMax(n int) BreakerOption {
	return func(cb *CircuitBreaker) { cb.halfOpenMax = n }
}

// WithBreakerClock injects a clock.
func WithBreakerClock(fn func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) { cb.now = fn }
}

// NewCircuitBreaker defaults: 5 failures, 30s open, 2 successes to close.
func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		threshold:    5,
		resetTimeout: 30 * time.Second,
		halfOpenMax:  2,
		now:          time.Now,
	}
	for _, o := range opts {
		o(cb)
	}
	return cb
}

// State returns the current state, moving open to half-open when due.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.tick()
	return cb.state
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	return cb.State() != BreakerOpen
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case BreakerHalfOpen:
		cb.successes++
		if cb.successes >= cb.halfOpenMax {
			cb.state, cb.failures, cb.successes = BreakerClosed, 0, 0
		}
	case BreakerClosed:
		cb.failures = 0
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailure = cb.now()
	switch cb.state {
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.state = BreakerOpen
		}
	case BreakerHalfOpen:
		cb.state, cb.successes = BreakerOpen, 0
	}
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.state, cb.failures, cb.successes = BreakerClosed, 0, 0
	cb.mu.Unlock()
}

// mu held.
func (cb *CircuitBreaker) tick() {
	if cb.state == BreakerOpen && cb.now().Sub(cb.lastFailure) >= cb.resetTimeout {
		cb.state, cb.successes = BreakerHalfOpen, 0
	}
}

// WithCircuitBreaker guards one handler with cb.
func WithCircuitBreaker(cb *CircuitBreaker, service string) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if !cb.Allow() {
				return nil, &ErrCircuitOpen{Service: service}
			}
			resp, err := next(ctx, payload)
			if err != nil && ctx.Err() == nil {
				cb.RecordFailure()
			} else if err == nil {
				cb.RecordSuccess()
			}
			return resp, err
		}
	}
}

// Breakers keeps one CircuitBreaker per remote service.
type Breakers struct {
	mu   sync.Mutex
	opts []BreakerOption
	m    map[string]*CircuitBreaker
}

// NewBreakers creates an empty set; opts apply to every breaker created.
func NewBreakers(opts ...BreakerOption) *Breakers {
	return &Breakers{opts: opts, m: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for service, creating it on first use.
func (b *Breakers) Get(service string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.m[service]
	if !ok {
		cb = NewCircuitBreaker(b.opts...)
		b.m[service] = cb
	}
	return cb
}

// States snapshots every breaker's state.
func (b *Breakers) States() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.m))
	for s, cb := range b.m {
		out[s] = cb.State().String()
	}
	return out
}

// Middleware guards remote strategies only; local handlers fail fast on
// their own.
func (b *Breakers) Middleware() ServiceMiddleware {
	return func(service, strategy string) HandlerMiddleware {
		if strategy == "local" {
			return func(next Handler) Handler { return next }
		}
		return WithCircuitBreaker(b.Get(service), service)
	}
}
