// Package observability records tubemaster's own telemetry in the state
// database: generation call timings (MetricsManager) and studio business
// events such as a populated title or an inserted description (EventLogger).
//
// Persistence is best-effort: a failing write is logged and dropped, never
// surfaced to the page controller.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Metric is one timeseries datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
	Unit      string // "milliseconds", "count"
}

// MetricsManager buffers metrics and flushes them in batches.
type MetricsManager struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	buffer []*Metric

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMetricsManager starts the flush loop. bufferSize <= 0 means 100,
// flushInterval <= 0 means 5s.
func NewMetricsManager(db *sql.DB, bufferSize int, flushInterval time.Duration) *MetricsManager {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	mm := &MetricsManager{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		logger:        slog.Default(),
		buffer:        make([]*Metric, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go mm.flushLoop()
	return mm
}

// Record queues a metric. A full buffer is flushed inline.
func (mm *MetricsManager) Record(m *Metric) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.buffer = append(mm.buffer, m)
	if len(mm.buffer) >= mm.bufferSize {
		mm.flushLocked()
	}
}

// Flush writes buffered metrics now.
func (mm *MetricsManager) Flush() {
	mm.mu.Lock()
	mm.flushLocked()
	mm.mu.Unlock()
}

// Summary aggregates one metric name per label value.
type Summary struct {
	Name   string  `json:"name"`
	Label  string  `json:"label"`
	Count  int64   `json:"count"`
	Avg    float64 `json:"avg"`
	Max    float64 `json:"max"`
	Latest int64   `json:"latest_unix"`
}

// Summarize groups metric name by the given label key since the cutoff.
func (mm *MetricsManager) Summarize(ctx context.Context, name, labelKey string, since time.Time) ([]Summary, error) {
	rows, err := mm.db.QueryContext(ctx, `
		SELECT COALESCE(json_extract(labels, '$.' || ?), ''), COUNT(*), AVG(value), MAX(value), MAX(timestamp)
		FROM metrics_timeseries
		WHERE metric_name = ? AND timestamp >= ?
		GROUP BY 1 ORDER BY 1`, labelKey, name, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("observability: summarize %s: %w", name, err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		s := Summary{Name: name}
		if err := rows.Scan(&s.Label, &s.Count, &s.Avg, &s.Max, &s.Latest); err != nil {
			return nil, fmt.Errorf("observability: scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close flushes what is left and stops the loop. Safe to call twice.
func (mm *MetricsManager) Close() error {
	mm.stopOnce.Do(func() { close(mm.stop) })
	<-mm.done
	return nil
}

func (mm *MetricsManager) flushLoop() {
	defer close(mm.done)
	ticker := time.NewTicker(mm.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-mm.stop:
			mm.Flush()
			return
		case <-ticker.C:
			mm.Flush()
		}
	}
}

func (mm *MetricsManager) flushLocked() {
	if len(mm.buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		mm.logger.Error("observability: metrics begin tx", "error", err)
		return
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		mm.logger.Error("observability: metrics prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, m := range mm.buffer {
		var labels sql.NullString
		if len(m.Labels) > 0 {
			if b, err := json.Marshal(m.Labels); err == nil {
				labels = sql.NullString{String: string(b), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, m.Name, m.Timestamp.Unix(), m.Value, labels, m.Unit); err != nil {
			mm.logger.Error("observability: metrics insert", "error", err, "metric", m.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		mm.logger.Error("observability: metrics commit", "error", err)
	}
	mm.buffer = mm.buffer[:0]
}
