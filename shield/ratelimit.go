package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig is the rule for one "METHOD /path" endpoint.
type RateLimitConfig struct {
	MaxRequests   int
	WindowSeconds int
	Enabled       bool
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter limits requests per client and endpoint using rules from the
// rate_limits table. Unlisted endpoints are unlimited.
type RateLimiter struct {
	db      *sql.DB
	mu      sync.RWMutex
	rules   map[string]RateLimitConfig
	buckets sync.Map
	now     func() time.Time
}

// NewRateLimiter loads the rules from db.
func NewRateLimiter(ctx context.Context, db *sql.DB) (*RateLimiter, error) {
	rl := &RateLimiter{db: db, rules: make(map[string]RateLimitConfig), now: time.Now}
	if err := rl.Reload(ctx); err != nil {
		return nil, err
	}
	return rl, nil
}

// Reload rereads the rules.
func (rl *RateLimiter) Reload(ctx context.Context) error {
	rows, err := rl.db.QueryContext(ctx, `SELECT endpoint, max_requests, window_seconds, enabled FROM rate_limits`)
	if err != nil {
		return fmt.Errorf("shield: load rate limits: %w", err)
	}
	defer rows.Close()

	rules := make(map[string]RateLimitConfig)
	for rows.Next() {
		var endpoint string
		var cfg RateLimitConfig
		if err := rows.Scan(&endpoint, &cfg.MaxRequests, &cfg.WindowSeconds, &cfg.Enabled); err != nil {
			return fmt.Errorf("shield: scan rate limit: %w", err)
		}
		rules[endpoint] = cfg
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rl.mu.Lock()
	rl.rules = rules
	rl.mu.Unlock()
	return nil
}

// GC drops expired buckets.
func (rl *RateLimiter) GC() {
	now := rl.now()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

func (rl *RateLimiter) allow(client, endpoint string) (bool, int) {
	rl.mu.RLock()
	cfg, ok := rl.rules[endpoint]
	rl.mu.RUnlock()
	if !ok || !cfg.Enabled {
		return true, 0
	}

	window := time.Duration(cfg.WindowSeconds) * time.Second
	v, _ := rl.buckets.LoadOrStore(client+" "+endpoint, &bucket{})
	b := v.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	now := rl.now()
	if b.resetAt.IsZero() || now.After(b.resetAt) {
		b.count, b.resetAt = 0, now.Add(window)
	}
	b.count++
	return b.count <= cfg.MaxRequests, int(b.resetAt.Sub(now).Seconds()) + 1
}

// Middleware answers 429 with a JSON error when a rule is exceeded.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.Method + " " + r.URL.Path
		client := clientKey(r)
		ok, retry := rl.allow(client, endpoint)
		if ok {
			next.ServeHTTP(w, r)
			return
		}
		slog.Warn("shield: rate limited", "client", client, "endpoint", endpoint)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// clientKey prefers the bearer token over the address: every control client
// connects from loopback.
func clientKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 24 {
			h = h[len(h)-24:]
		}
		return "tok:" + h
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
