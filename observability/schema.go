package observability

import "database/sql"

// Schema holds the telemetry tables.
const Schema = `
CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_id   TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
    metric_name TEXT NOT NULL,
    timestamp   INTEGER NOT NULL,
    value       REAL NOT NULL,
    labels      TEXT,
    unit        TEXT
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);

CREATE TABLE IF NOT EXISTS business_event_logs (
    event_id    TEXT PRIMARY KEY,
    event_type  TEXT NOT NULL,
    entity_type TEXT,
    entity_id   TEXT,
    action      TEXT NOT NULL,
    details     TEXT,
    success     INTEGER NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_logs_type ON business_event_logs(event_type, created_at DESC);
`

// Init applies Schema.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
