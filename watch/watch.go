// Package watch polls the state database for changes made by another
// connection or process (the CLI signing out, a settings edit) and runs a
// reload action once the change has settled.
//
//	w := watch.New(db, watch.Options{Detector: watch.MaxColumnDetector("auth_session", "updated_at")})
//	go w.OnChange(ctx, func(ctx context.Context, v int64) error { return gate.Reload(ctx) })
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token. Two different values mean something
// changed.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Name tags log lines. Default: "db".
	Name string
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action fires.
	// Further changes restart it. 0 fires immediately.
	Debounce time.Duration
	// Detector defaults to PragmaDataVersion.
	Detector ChangeDetector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Name == "" {
		o.Name = "db"
	}
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher is safe for concurrent use; OnChange should run once.
type Watcher struct {
	db   *sql.DB
	opts Options

	version atomic.Int64
	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	reloads atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64 `json:"checks"`
	ChangesDetected int64 `json:"changes_detected"`
	Errors          int64 `json:"errors"`
	Reloads         int64 `json:"reloads"`
}

// New creates a Watcher. Call OnChange to start the loop.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Reloads:         w.reloads.Load(),
	}
}

// Version returns the last version whose action succeeded.
func (w *Watcher) Version() int64 { return w.version.Load() }

// OnChange blocks until ctx is cancelled. The initial version is seeded
// without firing. If action fails the version is not advanced and the next
// poll retries.
func (w *Watcher) OnChange(ctx context.Context, action func(ctx context.Context, version int64) error) {
	log := w.opts.Logger.With("watch", w.opts.Name)

	if v, err := w.opts.Detector(ctx, w.db); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.errors.Add(1)
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || cur == pending {
				continue
			}
			w.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				w.fire(ctx, log, action, pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if pending >= 0 {
				w.fire(ctx, log, action, pending)
				pending = -1
			}
		}
	}
}

func (w *Watcher) fire(ctx context.Context, log *slog.Logger, action func(context.Context, int64) error, v int64) {
	if err := action(ctx, v); err != nil {
		w.errors.Add(1)
		log.Error("watch: reload failed", "error", err, "version", v)
		return
	}
	w.reloads.Add(1)
	w.version.Store(v)
	log.Debug("watch: reloaded", "version", v)
}

// PragmaDataVersion changes whenever another connection commits to the file.
// It is per-connection, so it only works on a pool pinned to one connection.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// PragmaUserVersion reads the application-controlled user_version.
func PragmaUserVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}

// MaxColumnDetector polls MAX(column) on table. Rows deleted below the max
// are not seen; tubemaster tables keep updated_at on a singleton row instead
// of deleting it.
func MaxColumnDetector(table, column string) ChangeDetector {
	query := "SELECT COALESCE(MAX(" + quoteIdent(column) + "), 0) FROM " + quoteIdent(table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, query).Scan(&v)
		return v, err
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
