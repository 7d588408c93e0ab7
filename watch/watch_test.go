package watch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tubemaster/dbopen"
)

func setUserVersion(t *testing.T, db *sql.DB, v int) {
	t.Helper()
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMaxColumnDetector(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE auth_session (id INTEGER PRIMARY KEY, updated_at INTEGER)`))
	ctx := context.Background()
	det := MaxColumnDetector("auth_session", "updated_at")

	v, err := det(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Fatalf("empty table: got %d, want 0", v)
	}

	db.Exec(`INSERT INTO auth_session (id, updated_at) VALUES (1, 1700)`)
	v, _ = det(ctx, db)
	if v != 1700 {
		t.Fatalf("got %d, want 1700", v)
	}
}

func TestOnChange_SeedDoesNotFire(t *testing.T) {
	db := dbopen.OpenMemory(t)
	setUserVersion(t, db, 5)

	var fired atomic.Int32
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: PragmaUserVersion})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func(context.Context, int64) error {
		fired.Add(1)
		return nil
	})

	waitFor(t, "a few checks", func() bool { return w.Stats().Checks >= 3 })
	if fired.Load() != 0 {
		t.Fatalf("fired %d times without a change", fired.Load())
	}
}

func TestOnChange_FiresWithNewVersion(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var got atomic.Int64
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: PragmaUserVersion})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func(_ context.Context, v int64) error {
		got.Store(v)
		return nil
	})

	waitFor(t, "first check", func() bool { return w.Stats().Checks >= 1 })
	setUserVersion(t, db, 7)
	waitFor(t, "reload", func() bool { return got.Load() == 7 })
	if w.Version() != 7 {
		t.Fatalf("Version: got %d, want 7", w.Version())
	}
}

func TestOnChange_Debounce(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var fired atomic.Int32
	w := New(db, Options{
		Interval: 10 * time.Millisecond,
		Debounce: 150 * time.Millisecond,
		Detector: PragmaUserVersion,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func(context.Context, int64) error {
		fired.Add(1)
		return nil
	})

	waitFor(t, "first check", func() bool { return w.Stats().Checks >= 1 })
	for v := 1; v <= 4; v++ {
		setUserVersion(t, db, v)
		time.Sleep(30 * time.Millisecond)
	}
	waitFor(t, "debounced reload", func() bool { return fired.Load() >= 1 })
	time.Sleep(200 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("fired %d times, want 1", n)
	}
	if w.Version() != 4 {
		t.Fatalf("Version: got %d, want 4", w.Version())
	}
}

func TestOnChange_ErrorRetries(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var calls atomic.Int32
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: PragmaUserVersion})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func(context.Context, int64) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	})

	waitFor(t, "first check", func() bool { return w.Stats().Checks >= 1 })
	setUserVersion(t, db, 3)
	waitFor(t, "retry success", func() bool { return w.Version() == 3 })
	if s := w.Stats(); s.Errors < 1 || s.Reloads != 1 {
		t.Fatalf("stats: %+v", s)
	}
}

func TestOnChange_StopsOnCancel(t *testing.T) {
	db := dbopen.OpenMemory(t)
	w := New(db, Options{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.OnChange(ctx, func(context.Context, int64) error { return nil })
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnChange did not return after cancel")
	}
}
