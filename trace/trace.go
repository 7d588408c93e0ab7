// Package trace logs the state database's SQL through a wrapping driver.
//
// It registers a "sqlite-trace" driver around modernc.org/sqlite. Opening
// the database with that name is the only change needed:
//
//	db, _ := sql.Open(trace.DriverName, "tubemaster.db")
//
// Every Exec and Query is logged via slog: Debug normally, Warn above the
// slow threshold, Error on failure. The trace ID set by the control API
// middleware is attached when present. Counters are kept for Snapshot.
package trace

import (
	"database/sql"
	"sync/atomic"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the database/sql name of the tracing driver.
const DriverName = "sqlite-trace"

// Stats counts traced statements since process start.
type Stats struct {
	Queries int64 `json:"queries"`
	Execs   int64 `json:"execs"`
	Errors  int64 `json:"errors"`
	Slow    int64 `json:"slow"`
}

var (
	slowNanos atomic.Int64
	queries   atomic.Int64
	execs     atomic.Int64
	errs      atomic.Int64
	slow      atomic.Int64
)

func init() {
	slowNanos.Store(int64(100 * time.Millisecond))
	sql.Register(DriverName, &TracingDriver{Driver: &sqlite.Driver{}})
}

// SetSlowThreshold sets the duration above which statements log at Warn.
// Non-positive values are ignored.
func SetSlowThreshold(d time.Duration) {
	if d > 0 {
		slowNanos.Store(int64(d))
	}
}

// Snapshot returns the current counters.
func Snapshot() Stats {
	return Stats{
		Queries: queries.Load(),
		Execs:   execs.Load(),
		Errors:  errs.Load(),
		Slow:    slow.Load(),
	}
}

func count(op string, d time.Duration, err error) (isSlow bool) {
	if op == "Query" {
		queries.Add(1)
	} else {
		execs.Add(1)
	}
	if err != nil {
		errs.Add(1)
	}
	if d > time.Duration(slowNanos.Load()) {
		slow.Add(1)
		return true
	}
	return false
}
