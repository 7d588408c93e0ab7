// Package authgate tracks whether a TubeMaster account session is stored.
// The session lives in a singleton SQLite row so the CLI, the control API
// and the daemon share it; Watch turns writes by another process into the
// same events a local Store or Clear produces.
package authgate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/tubemaster/auth"
	"github.com/hazyhaar/tubemaster/dbopen"
	"github.com/hazyhaar/tubemaster/watch"
)

// Schema is the session table. Signing out blanks the token and bumps
// updated_at; the row is never deleted.
const Schema = `
CREATE TABLE IF NOT EXISTS auth_session (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    token      TEXT NOT NULL DEFAULT '',
    email      TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
);
`

// Init creates the auth_session table.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Event is an auth notification.
type Event string

const (
	SignedIn               Event = "signedIn"
	SignedOut              Event = "signedOut"
	AuthenticationComplete Event = "authenticationComplete"
)

// ErrEmptyToken is returned by Store for a blank token.
var ErrEmptyToken = errors.New("authgate: empty token")

// Snapshot is the current session state.
type Snapshot struct {
	Authenticated bool      `json:"authenticated"`
	Email         string    `json:"email,omitempty"`
	Plan          string    `json:"plan,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(g *Gate) { g.logger = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(g *Gate) { g.now = now } }

// Gate is safe for concurrent use.
type Gate struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	token   string
	info    auth.TokenInfo
	email   string
	updated time.Time

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Open creates the table if needed and loads the stored session.
func Open(ctx context.Context, db *sql.DB, opts ...Option) (*Gate, error) {
	g := &Gate{db: db, logger: slog.Default(), now: time.Now, subs: map[int]func(Event){}}
	for _, o := range opts {
		o(g)
	}
	if err := Init(db); err != nil {
		return nil, fmt.Errorf("authgate: init: %w", err)
	}
	if _, err := g.load(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// IsAuthenticated reports whether a non-expired token is stored.
func (g *Gate) IsAuthenticated(_ context.Context) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authenticatedLocked()
}

func (g *Gate) authenticatedLocked() bool {
	return g.token != "" && !g.info.Expired(g.now())
}

// Token returns the stored token, or "" when signed out or expired.
func (g *Gate) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.authenticatedLocked() {
		return ""
	}
	return g.token
}

// Snapshot returns the current state.
func (g *Gate) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Snapshot{Authenticated: g.authenticatedLocked(), UpdatedAt: g.updated}
	if s.Authenticated {
		s.Email = g.email
		if s.Email == "" {
			s.Email = g.info.Email
		}
		s.Plan = g.info.Plan
		s.ExpiresAt = g.info.ExpiresAt
	}
	return s
}

// Subscribe registers fn for auth events. fn runs on the goroutine that
// caused the change and must not block. The returned func unsubscribes.
func (g *Gate) Subscribe(fn func(Event)) (cancel func()) {
	g.subMu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.subMu.Unlock()
	return func() {
		g.subMu.Lock()
		delete(g.subs, id)
		g.subMu.Unlock()
	}
}

func (g *Gate) emit(evs ...Event) {
	g.subMu.Lock()
	fns := make([]func(Event), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.subMu.Unlock()
	for _, ev := range evs {
		g.logger.Info("authgate: auth event", "event", string(ev))
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// Store saves token. A token whose JWT expiry has passed is rejected.
func (g *Gate) Store(ctx context.Context, token, email string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if info := auth.Inspect(token); info.Expired(g.now()) {
		return fmt.Errorf("authgate: token expired at %s", info.ExpiresAt.Format(time.RFC3339))
	}
	if err := g.write(ctx, token, email); err != nil {
		return err
	}
	_, err := g.Reload(ctx)
	return err
}

// Clear signs out.
func (g *Gate) Clear(ctx context.Context) error {
	if err := g.write(ctx, "", ""); err != nil {
		return err
	}
	_, err := g.Reload(ctx)
	return err
}

func (g *Gate) write(ctx context.Context, token, email string) error {
	_, err := dbopen.Exec(ctx, g.db, `
		INSERT INTO auth_session (id, token, email, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			email = excluded.email,
			updated_at = MAX(excluded.updated_at, auth_session.updated_at + 1)`,
		token, email, g.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("authgate: write session: %w", err)
	}
	return nil
}

// Reload reads the stored row and emits the events of any transition:
// signedIn then authenticationComplete on sign in, authenticationComplete
// alone when an authenticated token is replaced, signedOut on sign out.
func (g *Gate) Reload(ctx context.Context) ([]Event, error) {
	evs, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	g.emit(evs...)
	return evs, nil
}

func (g *Gate) load(ctx context.Context) ([]Event, error) {
	var token, email string
	var updated int64
	err := g.db.QueryRowContext(ctx,
		`SELECT token, email, updated_at FROM auth_session WHERE id = 1`).Scan(&token, &email, &updated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("authgate: read session: %w", err)
	}

	g.mu.Lock()
	was := g.authenticatedLocked()
	prev := g.token
	g.token = token
	g.email = email
	g.info = auth.Inspect(token)
	if updated > 0 {
		g.updated = time.UnixMilli(updated)
	} else {
		g.updated = time.Time{}
	}
	now := g.authenticatedLocked()
	g.mu.Unlock()

	switch {
	case !was && now:
		return []Event{SignedIn, AuthenticationComplete}, nil
	case was && !now:
		return []Event{SignedOut}, nil
	case was && now && prev != token:
		return []Event{AuthenticationComplete}, nil
	}
	return nil, nil
}

// Watch polls for writes by other processes until ctx is done. db should
// be pinned to one connection.
func (g *Gate) Watch(ctx context.Context, interval time.Duration) {
	w := watch.New(g.db, watch.Options{
		Name:     "auth_session",
		Interval: interval,
		Detector: watch.MaxColumnDetector("auth_session", "updated_at"),
		Logger:   g.logger,
	})
	w.OnChange(ctx, func(ctx context.Context, _ int64) error {
		_, err := g.Reload(ctx)
		return err
	})
}

// CheckExpiry emits signedOut once a stored token has expired. Callers
// run it on a ticker.
func (g *Gate) CheckExpiry() {
	g.mu.Lock()
	expired := g.token != "" && g.info.Expired(g.now())
	if expired {
		g.token = ""
	}
	g.mu.Unlock()
	if expired {
		g.emit(SignedOut)
	}
}
