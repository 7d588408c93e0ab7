package authgate

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tubemaster/dbopen"
)

type recorder struct {
	mu  sync.Mutex
	evs []Event
}

func (r *recorder) add(e Event) {
	r.mu.Lock()
	r.evs = append(r.evs, e)
	r.mu.Unlock()
}

func (r *recorder) list() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.evs...)
}

func accountToken(t *testing.T, email string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "u1", "email": email, "exp": exp.Unix()}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("issuer-secret-not-known-locally"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func equal(a, b []Event) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStoreAndClear(t *testing.T) {
	ctx := context.Background()
	g, err := Open(ctx, dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	if g.IsAuthenticated(ctx) {
		t.Fatal("fresh gate is authenticated")
	}
	var rec recorder
	g.Subscribe(rec.add)

	if err := g.Store(ctx, "opaque-token", "a@b.c"); err != nil {
		t.Fatal(err)
	}
	if !g.IsAuthenticated(ctx) || g.Token() != "opaque-token" {
		t.Fatal("not authenticated after Store")
	}
	if s := g.Snapshot(); s.Email != "a@b.c" {
		t.Fatalf("email: got %q", s.Email)
	}
	if got := rec.list(); !equal(got, []Event{SignedIn, AuthenticationComplete}) {
		t.Fatalf("events: got %v", got)
	}

	if err := g.Store(ctx, "rotated-token", ""); err != nil {
		t.Fatal(err)
	}
	if got := rec.list(); len(got) != 3 || got[2] != AuthenticationComplete {
		t.Fatalf("rotate events: got %v", got)
	}

	if err := g.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if g.IsAuthenticated(ctx) || g.Token() != "" {
		t.Fatal("still authenticated after Clear")
	}
	if got := rec.list(); got[len(got)-1] != SignedOut {
		t.Fatalf("events: got %v", got)
	}
}

func TestStoreRejects(t *testing.T) {
	ctx := context.Background()
	g, err := Open(ctx, dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Store(ctx, "  ", ""); err != ErrEmptyToken {
		t.Fatalf("blank: got %v", err)
	}
	if err := g.Store(ctx, accountToken(t, "x@y.z", time.Now().Add(-time.Hour)), ""); err == nil {
		t.Fatal("expired token stored")
	}
}

func TestJWTClaimsAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := now
	g, err := Open(ctx, dbopen.OpenMemory(t), WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Store(ctx, accountToken(t, "jwt@b.c", now.Add(time.Minute)), ""); err != nil {
		t.Fatal(err)
	}
	if s := g.Snapshot(); s.Email != "jwt@b.c" || s.ExpiresAt.IsZero() {
		t.Fatalf("snapshot: got %+v", s)
	}

	var rec recorder
	g.Subscribe(rec.add)
	clock = now.Add(2 * time.Minute)
	if g.IsAuthenticated(ctx) {
		t.Fatal("expired token still authenticated")
	}
	g.CheckExpiry()
	g.CheckExpiry()
	if got := rec.list(); !equal(got, []Event{SignedOut}) {
		t.Fatalf("events: got %v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	g, err := Open(ctx, dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	var rec recorder
	cancel := g.Subscribe(rec.add)
	cancel()
	g.Store(ctx, "tok", "")
	if len(rec.list()) != 0 {
		t.Fatal("event after unsubscribe")
	}
}

func TestWatchSeesOtherProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	path := filepath.Join(t.TempDir(), "state.db")

	daemonDB, err := dbopen.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer daemonDB.Close()
	daemonDB.SetMaxOpenConns(1)
	daemon, err := Open(ctx, daemonDB)
	if err != nil {
		t.Fatal(err)
	}
	var rec recorder
	daemon.Subscribe(rec.add)
	go daemon.Watch(ctx, 10*time.Millisecond)

	cliDB, err := dbopen.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer cliDB.Close()
	cli, err := Open(ctx, cliDB)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := cli.Store(ctx, "from-cli", ""); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !daemon.IsAuthenticated(ctx) {
		if time.Now().After(deadline) {
			t.Fatal("daemon never saw the CLI sign in")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := rec.list(); len(got) == 0 || got[0] != SignedIn {
		t.Fatalf("events: got %v", got)
	}
}
