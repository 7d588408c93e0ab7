package connectivity

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the routes table. A missing row means "local handler".
//
// Strategies:
//   - "local": the in-process handler registered with RegisterLocal.
//   - "http":  POST to endpoint via HTTPFactory.
//   - "noop":  succeed with an empty response (action disabled).
//
// config is per-route JSON: timeout_ms, content_type, headers.
const Schema = `
CREATE TABLE IF NOT EXISTS routes (
    service_name TEXT PRIMARY KEY,
    strategy     TEXT NOT NULL CHECK(strategy IN ('local', 'http', 'noop')),
    endpoint     TEXT,
    config       TEXT DEFAULT '{}',
    updated_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
`

// Init creates the routes table.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// SetRoute upserts a route row. The watcher picks it up on its next poll.
func SetRoute(ctx context.Context, db *sql.DB, service, strategy, endpoint, config string) error {
	if config == "" {
		config = "{}"
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO routes (service_name, strategy, endpoint, config)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(service_name) DO UPDATE SET
			strategy = excluded.strategy,
			endpoint = excluded.endpoint,
			config = excluded.config,
			updated_at = strftime('%s', 'now')`,
		service, strategy, endpoint, config)
	if err != nil {
		return fmt.Errorf("connectivity: set route %s: %w", service, err)
	}
	return nil
}

// DeleteRoute removes a route, restoring the local handler.
func DeleteRoute(ctx context.Context, db *sql.DB, service string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM routes WHERE service_name = ?`, service); err != nil {
		return fmt.Errorf("connectivity: delete route %s: %w", service, err)
	}
	return nil
}
