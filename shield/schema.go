package shield

import "database/sql"

// Schema is the rate_limits table, seeded with limits on the endpoints that
// call the generation API. Existing rows are left alone.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_limits (
    endpoint       TEXT PRIMARY KEY,
    max_requests   INTEGER NOT NULL DEFAULT 60,
    window_seconds INTEGER NOT NULL DEFAULT 60,
    enabled        INTEGER NOT NULL DEFAULT 1
);

INSERT OR IGNORE INTO rate_limits (endpoint, max_requests, window_seconds) VALUES
    ('POST /api/titles', 30, 60),
    ('POST /api/descriptions', 20, 60),
    ('POST /api/thumbnails', 10, 60);
`

// Init creates and seeds the shield tables.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
