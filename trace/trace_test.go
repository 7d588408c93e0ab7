package trace

import (
	"database/sql"
	"testing"
	"time"
)

func openTraced(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(DriverName, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDriverCountsStatements(t *testing.T) {
	db := openTraced(t)
	before := Snapshot()

	if _, err := db.Exec("CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO t VALUES (?)", 7); err != nil {
		t.Fatal(err)
	}
	var v int
	if err := db.QueryRow("SELECT v FROM t").Scan(&v); err != nil {
		t.Fatal(err)
	}
	if v != 7 {
		t.Fatalf("value: got %d, want 7", v)
	}

	after := Snapshot()
	if got := after.Execs - before.Execs; got < 2 {
		t.Fatalf("execs: got %d, want >= 2", got)
	}
	if got := after.Queries - before.Queries; got < 1 {
		t.Fatalf("queries: got %d, want >= 1", got)
	}
}

func TestDriverCountsErrors(t *testing.T) {
	db := openTraced(t)
	if _, err := db.Exec("CREATE TABLE t (v INTEGER PRIMARY KEY)"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatal(err)
	}

	before := Snapshot()
	if _, err := db.Exec("INSERT INTO t VALUES (1)"); err == nil {
		t.Fatal("expected a primary key violation")
	}
	if got := Snapshot().Errors - before.Errors; got != 1 {
		t.Fatalf("errors: got %d, want 1", got)
	}
}

func TestSlowThreshold(t *testing.T) {
	defer SetSlowThreshold(100 * time.Millisecond)

	SetSlowThreshold(-1)
	if got := time.Duration(slowNanos.Load()); got != 100*time.Millisecond {
		t.Fatalf("threshold: got %v, want unchanged", got)
	}

	SetSlowThreshold(time.Nanosecond)
	before := Snapshot()
	if !count("Query", time.Millisecond, nil) {
		t.Fatal("1ms over a 1ns threshold must count as slow")
	}
	if got := Snapshot().Slow - before.Slow; got != 1 {
		t.Fatalf("slow: got %d, want 1", got)
	}
}

func TestIsPoll(t *testing.T) {
	tests := []struct {
		q    string
		want bool
	}{
		{"PRAGMA data_version", true},
		{`SELECT COALESCE(MAX("updated_at"), 0) FROM "settings"`, true},
		{"SELECT v FROM t", false},
		{"  INSERT INTO t VALUES (1)", false},
	}
	for _, tt := range tests {
		if got := isPoll(tt.q); got != tt.want {
			t.Errorf("isPoll(%q): got %v, want %v", tt.q, got, tt.want)
		}
	}
}

func TestCompact(t *testing.T) {
	got := compact("SELECT a,\n\t\tb\n  FROM t")
	if got != "SELECT a, b FROM t" {
		t.Fatalf("compact: got %q", got)
	}
}

func TestTxThroughTracedDriver(t *testing.T) {
	db := openTraced(t)
	if _, err := db.Exec("CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatal(err)
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tx.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("rows after rollback: got %d, want 0", n)
	}
}
