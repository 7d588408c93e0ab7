package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tubemaster/dbopen"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echo(prefix string) Handler {
	return func(_ context.Context, payload []byte) ([]byte, error) {
		return append([]byte(prefix), payload...), nil
	}
}

func TestRegisterLocal_and_Call(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	r.RegisterLocal("generateTitles", echo("local:"))

	resp, err := r.Call(context.Background(), "generateTitles", []byte("x"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(resp) != "local:x" {
		t.Fatalf("got %q, want %q", resp, "local:x")
	}
}

func TestCall_ServiceNotFound(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	_, err := r.Call(context.Background(), "checkAuth", nil)
	var snf *ErrServiceNotFound
	if !errors.As(err, &snf) {
		t.Fatalf("expected ErrServiceNotFound, got %T: %v", err, err)
	}
	if snf.Service != "checkAuth" {
		t.Fatalf("service: got %q, want %q", snf.Service, "checkAuth")
	}
}

func TestReload_Noop(t *testing.T) {
	db := setupTestDB(t)
	r := New(WithLogger(quietLogger()))
	var called atomic.Bool
	r.RegisterLocal("generateThumbnails", func(context.Context, []byte) ([]byte, error) {
		called.Store(true)
		return []byte("x"), nil
	})

	if err := SetRoute(context.Background(), db, "generateThumbnails", "noop", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	resp, err := r.Call(context.Background(), "generateThumbnails", nil)
	if err != nil || resp != nil {
		t.Fatalf("noop: got (%q, %v), want (nil, nil)", resp, err)
	}
	if called.Load() {
		t.Fatal("local handler called for noop route")
	}
}

func TestReload_RemoteOverridesLocal(t *testing.T) {
	db := setupTestDB(t)
	r := New(WithLogger(quietLogger()))
	r.RegisterLocal("generateTitles", echo("local:"))
	r.RegisterTransport("http", func(endpoint string, _ json.RawMessage) (Handler, func(), error) {
		return echo("remote:"), nil, nil
	})

	SetRoute(context.Background(), db, "generateTitles", "http", "https://relay.example/titles", "")
	r.Reload(context.Background(), db)

	resp, _ := r.Call(context.Background(), "generateTitles", []byte("x"))
	if string(resp) != "remote:x" {
		t.Fatalf("got %q, want %q", resp, "remote:x")
	}

	DeleteRoute(context.Background(), db, "generateTitles")
	r.Reload(context.Background(), db)
	resp, _ = r.Call(context.Background(), "generateTitles", []byte("x"))
	if string(resp) != "local:x" {
		t.Fatalf("after delete: got %q, want %q", resp, "local:x")
	}
}

func TestReload_UnchangedRouteKeepsHandler(t *testing.T) {
	db := setupTestDB(t)
	r := New(WithLogger(quietLogger()))
	var builds, closes atomic.Int32
	r.RegisterTransport("http", func(string, json.RawMessage) (Handler, func(), error) {
		builds.Add(1)
		return echo(""), func() { closes.Add(1) }, nil
	})

	ctx := context.Background()
	SetRoute(ctx, db, "generateTitles", "http", "https://a.example", "")
	r.Reload(ctx, db)
	r.Reload(ctx, db)
	if builds.Load() != 1 {
		t.Fatalf("builds: got %d, want 1", builds.Load())
	}

	SetRoute(ctx, db, "generateTitles", "http", "https://b.example", "")
	r.Reload(ctx, db)
	if builds.Load() != 2 || closes.Load() != 1 {
		t.Fatalf("after change: builds=%d closes=%d, want 2/1", builds.Load(), closes.Load())
	}

	DeleteRoute(ctx, db, "generateTitles")
	r.Reload(ctx, db)
	if closes.Load() != 2 {
		t.Fatalf("after delete: closes=%d, want 2", closes.Load())
	}
}

func TestReload_NoFactory(t *testing.T) {
	db := setupTestDB(t)
	r := New(WithLogger(quietLogger()))
	SetRoute(context.Background(), db, "generateTitles", "http", "https://a.example", "")

	err := r.Reload(context.Background(), db)
	var nf *ErrNoFactory
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNoFactory, got %v", err)
	}
}

func TestCall_RouteTimeout(t *testing.T) {
	db := setupTestDB(t)
	r := New(WithLogger(quietLogger()))
	r.RegisterTransport("http", func(string, json.RawMessage) (Handler, func(), error) {
		return func(ctx context.Context, _ []byte) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, nil, nil
	})
	SetRoute(context.Background(), db, "generateDescription", "http", "https://a.example", `{"timeout_ms": 20}`)
	r.Reload(context.Background(), db)

	_, err := r.Call(context.Background(), "generateDescription", nil)
	var to *ErrCallTimeout
	if !errors.As(err, &to) {
		t.Fatalf("expected ErrCallTimeout, got %T: %v", err, err)
	}
}

func TestWithMiddleware_OrderAndLabels(t *testing.T) {
	var trail []string
	mark := func(name string) ServiceMiddleware {
		return func(service, strategy string) HandlerMiddleware {
			return func(next Handler) Handler {
				return func(ctx context.Context, p []byte) ([]byte, error) {
					trail = append(trail, name+":"+service+":"+strategy)
					return next(ctx, p)
				}
			}
		}
	}
	r := New(WithLogger(quietLogger()), WithMiddleware(mark("a"), mark("b")))
	r.RegisterLocal("checkAuth", echo(""))
	r.Call(context.Background(), "checkAuth", nil)

	want := []string{"a:checkAuth:local", "b:checkAuth:local"}
	if len(trail) != 2 || trail[0] != want[0] || trail[1] != want[1] {
		t.Fatalf("trail: got %v, want %v", trail, want)
	}
}

func TestRecovery(t *testing.T) {
	r := New(WithLogger(quietLogger()), WithMiddleware(Recovery(quietLogger())))
	r.RegisterLocal("signOut", func(context.Context, []byte) ([]byte, error) {
		panic("boom")
	})
	_, err := r.Call(context.Background(), "signOut", nil)
	var p *ErrPanic
	if !errors.As(err, &p) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
	if p.Service != "signOut" {
		t.Fatalf("service: got %q", p.Service)
	}
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(
		WithBreakerThreshold(2),
		WithBreakerResetTimeout(10*time.Second),
		WithBreakerHalfOpenMax(1),
		WithBreakerClock(func() time.Time { return now }),
	)
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("state: got %v, want open", cb.State())
	}
	now = now.Add(11 * time.Second)
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state: got %v, want half-open", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Fatalf("state: got %v, want closed", cb.State())
	}
}

func TestBreakers_SkipLocal(t *testing.T) {
	b := NewBreakers(WithBreakerThreshold(1))
	failing := func(context.Context, []byte) ([]byte, error) { return nil, errors.New("down") }

	local := b.Middleware()("generateTitles", "local")(failing)
	local(context.Background(), nil)
	local(context.Background(), nil)
	if len(b.States()) != 0 {
		t.Fatalf("local strategy created a breaker: %v", b.States())
	}

	remote := b.Middleware()("generateTitles", "http")(failing)
	remote(context.Background(), nil)
	_, err := remote(context.Background(), nil)
	var open *ErrCircuitOpen
	if !errors.As(err, &open) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestWithRetry(t *testing.T) {
	var calls atomic.Int32
	h := WithRetry(2, time.Millisecond, nil)(func(context.Context, []byte) ([]byte, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("flaky")
		}
		return []byte("ok"), nil
	})
	resp, err := h(context.Background(), nil)
	if err != nil || string(resp) != "ok" {
		t.Fatalf("got (%q, %v)", resp, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls: got %d, want 3", calls.Load())
	}
}

func TestWithRetry_NoRetryOnOpenCircuit(t *testing.T) {
	var calls atomic.Int32
	h := WithRetry(3, time.Millisecond, nil)(func(context.Context, []byte) ([]byte, error) {
		calls.Add(1)
		return nil, &ErrCircuitOpen{Service: "x"}
	})
	h(context.Background(), nil)
	if calls.Load() != 1 {
		t.Fatalf("calls: got %d, want 1", calls.Load())
	}
}

func TestWithFallback(t *testing.T) {
	h := WithFallback(echo("local:"), "generateTitles", nil)(func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("remote down")
	})
	resp, err := h(context.Background(), []byte("x"))
	if err != nil || string(resp) != "local:x" {
		t.Fatalf("got (%q, %v)", resp, err)
	}
}

func TestChain(t *testing.T) {
	var order []string
	mk := func(n string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, p []byte) ([]byte, error) {
				order = append(order, n)
				return next(ctx, p)
			}
		}
	}
	Chain(mk("1"), mk("2"), mk("3"))(echo(""))(context.Background(), nil)
	if len(order) != 3 || order[0] != "1" || order[2] != "3" {
		t.Fatalf("order: %v", order)
	}
}

func TestHTTPFactory_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Relay") != "1" {
			http.Error(w, "missing header", http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Write(append([]byte("echo:"), body...))
	}))
	defer srv.Close()

	h, closeFn, err := HTTPFactory(HTTPAllowLoopback())(srv.URL, json.RawMessage(`{"headers":{"X-Relay":"1"}}`))
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	defer closeFn()

	resp, err := h(context.Background(), []byte(`{"action":"generateTitles"}`))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(resp) != `echo:{"action":"generateTitles"}` {
		t.Fatalf("got %q", resp)
	}
}

func TestHTTPFactory_RejectsPrivateURL(t *testing.T) {
	if _, _, err := HTTPFactory()("http://127.0.0.1:9/", nil); err == nil {
		t.Fatal("expected loopback endpoint to be rejected")
	}
}

func TestHTTPFactory_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()
	h, _, _ := HTTPFactory(HTTPAllowLoopback())(srv.URL, nil)
	if _, err := h(context.Background(), nil); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestServices(t *testing.T) {
	db := setupTestDB(t)
	r := New(WithLogger(quietLogger()))
	r.RegisterLocal("checkAuth", echo(""))
	SetRoute(context.Background(), db, "generateTitles", "noop", "", "")
	r.Reload(context.Background(), db)

	got := r.Services()
	if len(got) != 2 || got[0] != "checkAuth" || got[1] != "generateTitles" {
		t.Fatalf("Services: got %v", got)
	}
}
