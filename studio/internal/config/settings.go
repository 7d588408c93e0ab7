package config

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/tubemaster/dbopen"
	"github.com/hazyhaar/tubemaster/watch"
)

// SettingsSchema is the runtime settings table, one row per key.
const SettingsSchema = `
CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// Setting keys.
const (
	KeyAutoSuggest     = "auto_suggest"
	KeySuggestionDelay = "suggestion_delay_ms"
	KeyMaxSuggestions  = "max_suggestions"
)

// Settings are the user-tunable runtime settings.
type Settings struct {
	AutoSuggest     bool          `json:"auto_suggest"`
	SuggestionDelay time.Duration `json:"suggestion_delay"`
	MaxSuggestions  int           `json:"max_suggestions"`
}

// DefaultSettings match a fresh install.
func DefaultSettings() Settings {
	return Settings{AutoSuggest: true, SuggestionDelay: time.Second, MaxSuggestions: 8}
}

// LoadSettings reads the settings table over the defaults. Unknown keys
// and unparsable values are skipped.
func LoadSettings(ctx context.Context, db *sql.DB, logger *slog.Logger) (Settings, error) {
	s := DefaultSettings()
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return s, fmt.Errorf("config: load settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return s, fmt.Errorf("config: load settings: %w", err)
		}
		if err := s.apply(k, v); err != nil && logger != nil {
			logger.Warn("config: setting ignored", "key", k, "value", v, "error", err)
		}
	}
	return s, rows.Err()
}

func (s *Settings) apply(key, value string) error {
	switch key {
	case KeyAutoSuggest:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		s.AutoSuggest = b
	case KeySuggestionDelay:
		ms, err := strconv.Atoi(value)
		if err != nil || ms < 0 {
			return fmt.Errorf("not a delay in ms: %q", value)
		}
		s.SuggestionDelay = time.Duration(ms) * time.Millisecond
	case KeyMaxSuggestions:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("not a positive count: %q", value)
		}
		s.MaxSuggestions = n
	default:
		return fmt.Errorf("unknown key")
	}
	return nil
}

// SetSetting validates and stores one setting.
func SetSetting(ctx context.Context, db *sql.DB, key, value string) error {
	var probe Settings
	if err := probe.apply(key, value); err != nil {
		return fmt.Errorf("config: setting %s: %w", key, err)
	}
	_, err := dbopen.Exec(ctx, db, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("config: setting %s: %w", key, err)
	}
	return nil
}

// SettingsStore serves the current settings to the page goroutines and
// reloads them when the table changes.
type SettingsStore struct {
	db     *sql.DB
	logger *slog.Logger
	cur    atomic.Pointer[Settings]
}

// OpenSettings creates the table if needed and loads it.
func OpenSettings(ctx context.Context, db *sql.DB, logger *slog.Logger) (*SettingsStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.ExecContext(ctx, SettingsSchema); err != nil {
		return nil, fmt.Errorf("config: settings schema: %w", err)
	}
	st := &SettingsStore{db: db, logger: logger}
	if err := st.Reload(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// Get returns the current settings.
func (st *SettingsStore) Get() Settings { return *st.cur.Load() }

// Reload rereads the table.
func (st *SettingsStore) Reload(ctx context.Context) error {
	s, err := LoadSettings(ctx, st.db, st.logger)
	if err != nil {
		return err
	}
	st.cur.Store(&s)
	return nil
}

// Set stores one setting and reloads.
func (st *SettingsStore) Set(ctx context.Context, key, value string) error {
	if err := SetSetting(ctx, st.db, key, value); err != nil {
		return err
	}
	return st.Reload(ctx)
}

// Watch reloads on changes by other processes until ctx is done.
func (st *SettingsStore) Watch(ctx context.Context, interval time.Duration) {
	w := watch.New(st.db, watch.Options{
		Name:     "settings",
		Interval: interval,
		Debounce: 200 * time.Millisecond,
		Detector: watch.MaxColumnDetector("settings", "updated_at"),
		Logger:   st.logger,
	})
	w.OnChange(ctx, func(ctx context.Context, _ int64) error {
		if err := st.Reload(ctx); err != nil {
			return err
		}
		st.logger.Info("config: settings reloaded", "settings", st.Get())
		return nil
	})
}
