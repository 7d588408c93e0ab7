package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/tubemaster/idgen"
)

// Studio event types.
const (
	EventTitlePopulated      = "title.populated"
	EventDescriptionInserted = "description.inserted"
	EventPanelsTornDown      = "panels.torn_down"
	EventAuthChanged         = "auth.changed"
	EventPageAttached        = "page.attached"
)

// BusinessEvent is a domain-level event.
type BusinessEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	EntityType string    `json:"entity_type,omitempty"` // "title", "description", "panel"
	EntityID   string    `json:"entity_id,omitempty"`
	Action     string    `json:"action"`
	Details    string    `json:"details,omitempty"` // JSON
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventLogger writes business events.
type EventLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets the ID generator.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithEventLogger sets the slog logger used for write failures.
func WithEventLogger(lg *slog.Logger) EventLoggerOption {
	return func(l *EventLogger) { l.logger = lg }
}

// NewEventLogger creates an EventLogger over db (Init must have run).
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:     db,
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records ev. Failures are logged, not returned.
func (l *EventLogger) LogEvent(ctx context.Context, ev BusinessEvent) {
	if ev.EventID == "" {
		ev.EventID = l.newID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO business_event_logs (event_id, event_type, entity_type, entity_id, action, details, success, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		ev.EventID, ev.EventType, ev.EntityType, ev.EntityID, ev.Action, ev.Details, ev.Success, ev.CreatedAt.Unix())
	if err != nil {
		l.logger.Error("observability: event log failed", "error", err, "event_type", ev.EventType)
	}
}

// Recent returns the latest events, newest first. Empty eventType means all.
func (l *EventLogger) Recent(ctx context.Context, eventType string, limit int) ([]BusinessEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT event_id, event_type, COALESCE(entity_type, ''), COALESCE(entity_id, ''), action,
		COALESCE(details, ''), success, created_at FROM business_event_logs`
	args := []any{}
	if eventType != "" {
		q += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query events: %w", err)
	}
	defer rows.Close()

	var out []BusinessEvent
	for rows.Next() {
		var ev BusinessEvent
		var ts int64
		if err := rows.Scan(&ev.EventID, &ev.EventType, &ev.EntityType, &ev.EntityID,
			&ev.Action, &ev.Details, &ev.Success, &ts); err != nil {
			return nil, fmt.Errorf("observability: scan event: %w", err)
		}
		ev.CreatedAt = time.Unix(ts, 0)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RetentionConfig is per-table retention in days. Zero keeps everything.
type RetentionConfig struct {
	MetricsDays int `yaml:"metrics_days"`
	EventsDays  int `yaml:"events_days"`
}

// Cleanup deletes rows older than the retention thresholds.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	now := time.Now().Unix()
	targets := []struct {
		query string
		days  int
	}{
		{`DELETE FROM metrics_timeseries WHERE timestamp < ?`, cfg.MetricsDays},
		{`DELETE FROM business_event_logs WHERE created_at < ?`, cfg.EventsDays},
	}
	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		if _, err := db.ExecContext(ctx, t.query, now-int64(t.days*86400)); err != nil {
			return fmt.Errorf("observability: cleanup: %w", err)
		}
	}
	return nil
}
