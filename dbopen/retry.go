package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// busyAttempts bounds retries of a statement that hit a lock. The CLI
// (-token, -signout) and the daemon write the same file.
const busyAttempts = 3

// IsBusy reports whether err is an SQLite BUSY or locked condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"SQLITE_BUSY", "database is locked", "database table is locked"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// onBusy runs fn until it succeeds, fails with something other than BUSY,
// or runs out of attempts. Backoff is 100, 200 ms.
func onBusy[T any](ctx context.Context, what string, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil || !IsBusy(err) || attempt == busyAttempts {
			return v, err
		}
		t := time.NewTimer(time.Duration(attempt) * 100 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, fmt.Errorf("dbopen: %s: %w (last error: %v)", what, ctx.Err(), err)
		case <-t.C:
		}
	}
}

// RunTx runs fn in a transaction, retried as a whole on BUSY. fn must not
// have side effects outside tx.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	_, err := onBusy(ctx, "tx", func() (struct{}, error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("dbopen: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return struct{}{}, err
		}
		if err := tx.Commit(); err != nil {
			return struct{}{}, fmt.Errorf("dbopen: commit: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// Exec runs one statement with the same BUSY policy as RunTx.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	return onBusy(ctx, "exec", func() (sql.Result, error) {
		return db.ExecContext(ctx, query, args...)
	})
}
