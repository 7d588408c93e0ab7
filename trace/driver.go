package trace

import (
	"context"
	"database/sql/driver"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/tubemaster/kit"
)

// TracingDriver wraps the modernc.org/sqlite driver and times every
// prepared statement.
type TracingDriver struct {
	driver.Driver
}

func (d *TracingDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	return &tracingConn{Conn: conn}, nil
}

type tracingConn struct {
	driver.Conn
}

func (c *tracingConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.Conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &tracingStmt{Stmt: stmt, query: query}, nil
}

func (c *tracingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if pc, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err := pc.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		return &tracingStmt{Stmt: stmt, query: query}, nil
	}
	return c.Prepare(query)
}

func (c *tracingConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx keeps the context and isolation options reaching sqlite, which
// the embedded Conn would hide.
func (c *tracingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bt, ok := c.Conn.(driver.ConnBeginTx); ok {
		return bt.BeginTx(ctx, opts)
	}
	return c.Conn.Begin()
}

type tracingStmt struct {
	driver.Stmt
	query string
}

func (s *tracingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	var result driver.Result
	var err error
	if ec, ok := s.Stmt.(driver.StmtExecContext); ok {
		result, err = ec.ExecContext(ctx, args)
	} else {
		result, err = s.Stmt.Exec(namedToValues(args))
	}
	s.record(ctx, "Exec", time.Since(start), err)
	return result, err
}

func (s *tracingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	var rows driver.Rows
	var err error
	if qc, ok := s.Stmt.(driver.StmtQueryContext); ok {
		rows, err = qc.QueryContext(ctx, args)
	} else {
		rows, err = s.Stmt.Query(namedToValues(args))
	}
	s.record(ctx, "Query", time.Since(start), err)
	return rows, err
}

func (s *tracingStmt) Exec(args []driver.Value) (driver.Result, error) {
	start := time.Now()
	result, err := s.Stmt.Exec(args)
	s.record(context.Background(), "Exec", time.Since(start), err)
	return result, err
}

func (s *tracingStmt) Query(args []driver.Value) (driver.Rows, error) {
	start := time.Now()
	rows, err := s.Stmt.Query(args)
	s.record(context.Background(), "Query", time.Since(start), err)
	return rows, err
}

func (s *tracingStmt) record(ctx context.Context, op string, d time.Duration, err error) {
	isSlow := count(op, d, err)
	// Watchers poll PRAGMA data_version or MAX(updated_at) every tick.
	if err == nil && !isSlow && isPoll(s.query) {
		return
	}

	level := slog.LevelDebug
	switch {
	case err != nil:
		level = slog.LevelError
	case isSlow:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("query", compact(s.query)),
		slog.Duration("duration", d),
	}
	if id := kit.GetTraceID(ctx); id != "" {
		attrs = append(attrs, slog.String("trace_id", id))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	slog.LogAttrs(ctx, level, "trace: sql", attrs...)
}

func isPoll(q string) bool {
	q = strings.TrimSpace(q)
	return strings.HasPrefix(q, "PRAGMA ") || strings.HasPrefix(q, "SELECT COALESCE(MAX(")
}

// compact folds whitespace so multi-line statements stay on one log line.
func compact(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func namedToValues(named []driver.NamedValue) []driver.Value {
	vals := make([]driver.Value, len(named))
	for i, nv := range named {
		vals[i] = nv.Value
	}
	return vals
}
