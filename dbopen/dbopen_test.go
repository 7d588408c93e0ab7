package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tubemaster/dbopen"
)

func TestOpenMemory_Pragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}

	var busy int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatal(err)
	}
	if busy != 10_000 {
		t.Fatalf("busy_timeout = %d, want 10000", busy)
	}
}

func TestWithBusyTimeout(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithBusyTimeout(2500))
	var busy int
	db.QueryRow("PRAGMA busy_timeout").Scan(&busy)
	if busy != 2500 {
		t.Fatalf("busy_timeout = %d, want 2500", busy)
	}
}

func TestWithSchema(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(
		`CREATE TABLE a (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE b (id INTEGER PRIMARY KEY)`,
	))
	for _, table := range []string{"a", "b"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = ?`, table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Fatalf("table %s: got %d, want 1", table, n)
		}
	}
}

func TestWithMkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	db.Close()
}

func TestWithDriverUnknown(t *testing.T) {
	if _, err := dbopen.Open(":memory:", dbopen.WithDriver("nope")); err == nil {
		t.Fatal("Open with an unregistered driver: expected error")
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("some other error"), false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("database is locked"), true},
		{errors.New("database table is locked"), true},
	}
	for _, tt := range tests {
		if got := dbopen.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRunTxRollback(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE rb (id TEXT PRIMARY KEY)`))

	sentinel := errors.New("rollback me")
	err := dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO rb (id) VALUES ('1')`)
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunTx error = %v, want sentinel", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM rb`).Scan(&count)
	if count != 0 {
		t.Fatalf("count = %d, want 0 after rollback", count)
	}
}

func TestExec(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE ex (id TEXT PRIMARY KEY)`))
	if _, err := dbopen.Exec(context.Background(), db, `INSERT INTO ex (id) VALUES (?)`, "1"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	var count int
	db.QueryRow(`SELECT COUNT(*) FROM ex`).Scan(&count)
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
