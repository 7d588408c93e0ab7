package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/tubemaster/studio/internal/genclient"
)

// loop plays the page goroutine: the test goroutine runs posted closures.
type loop struct{ ch chan func() }

func newLoop() *loop { return &loop{ch: make(chan func(), 64)} }

func (l *loop) post(fn func()) { l.ch <- fn }

func (l *loop) runUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case fn := <-l.ch:
			fn()
		case <-deadline:
			t.Fatal("condition not reached")
		}
	}
}

// runFor runs posted closures for d.
func (l *loop) runFor(d time.Duration) {
	deadline := time.After(d)
	for {
		select {
		case fn := <-l.ch:
			fn()
		case <-deadline:
			return
		}
	}
}

type guard struct {
	populating bool
	last       string
}

func (g *guard) Populating() bool    { return g.populating }
func (g *guard) LastWritten() string { return g.last }

type view struct {
	loading int
	shown   [][]genclient.Suggestion
	failed  bool
	cleared int
}

func (v *view) Loading() { v.loading++ }
func (v *view) Show(items []genclient.Suggestion, failed bool) {
	v.shown = append(v.shown, items)
	v.failed = failed
}
func (v *view) Clear() { v.cleared++ }

func (v *view) last() []genclient.Suggestion {
	if len(v.shown) == 0 {
		return nil
	}
	return v.shown[len(v.shown)-1]
}

type fetcher struct {
	mu    sync.Mutex
	calls []string
	fn    func(text string) ([]genclient.Suggestion, error)
}

func (f *fetcher) fetch(_ context.Context, text string) ([]genclient.Suggestion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	return f.fn(text)
}

func (f *fetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func echo(text string) ([]genclient.Suggestion, error) {
	return []genclient.Suggestion{{ID: "1", Text: text + "!", Score: 99}}, nil
}

func newController(l *loop, g *guard, f *fetcher, v *view, cfg Config) *Controller {
	if cfg.Debounce == 0 {
		cfg.Debounce = 20 * time.Millisecond
	}
	return New(context.Background(), cfg, l.post, g, f.fetch, v)
}

func TestDebounceLastKeystrokeWins(t *testing.T) {
	l, g, v := newLoop(), &guard{}, &view{}
	f := &fetcher{fn: echo}
	c := newController(l, g, f, v, Config{})

	for _, s := range []string{"c", "co", "coo", "cook"} {
		c.Input(s)
	}
	if c.State() != Debouncing {
		t.Fatalf("state: got %v, want debouncing", c.State())
	}
	l.runUntil(t, func() bool { return c.State() == Rendered })
	if f.count() != 1 || f.calls[0] != "cook" {
		t.Fatalf("calls: got %q, want [cook]", f.calls)
	}
	if got := v.last(); len(got) != 1 || got[0].Text != "cook!" {
		t.Fatalf("shown: got %+v", got)
	}
}

func TestSameTextNotRequestedTwice(t *testing.T) {
	l, g, v := newLoop(), &guard{}, &view{}
	f := &fetcher{fn: echo}
	c := newController(l, g, f, v, Config{})

	c.Input("pasta")
	l.runUntil(t, func() bool { return c.State() == Rendered })
	c.Input("pasta")
	l.runFor(80 * time.Millisecond)
	if f.count() != 1 {
		t.Fatalf("calls: got %d, want 1", f.count())
	}
	if c.State() != Rendered {
		t.Fatalf("state: got %v", c.State())
	}
}

func TestGuardSuppressesOwnWrite(t *testing.T) {
	l, g, v := newLoop(), &guard{}, &view{}
	f := &fetcher{fn: echo}
	c := newController(l, g, f, v, Config{})

	// Input arriving inside the populating window is ignored outright.
	g.populating, g.last = true, "Example Title"
	c.Input("Example Title")
	if c.State() != Idle {
		t.Fatalf("state during populating: got %v, want idle", c.State())
	}

	// After the window, the written text still does not trigger.
	g.populating = false
	c.Input("Example Title")
	l.runFor(80 * time.Millisecond)
	if f.count() != 0 {
		t.Fatalf("calls: got %q, want none", f.calls)
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	l, g, v := newLoop(), &guard{}, &view{}
	releaseFirst := make(chan struct{})
	f := &fetcher{fn: func(text string) ([]genclient.Suggestion, error) {
		if text == "first" {
			<-releaseFirst
		}
		return echo(text)
	}}
	c := newController(l, g, f, v, Config{})

	var firstResult Result
	c.Request("first", func(r Result) { firstResult = r })
	c.Request("second", nil)
	l.runUntil(t, func() bool { return c.State() == Rendered })
	close(releaseFirst)
	l.runUntil(t, func() bool { return firstResult.Token != 0 })

	if !firstResult.Stale {
		t.Fatal("first result not marked stale")
	}
	if got := v.last(); len(got) != 1 || got[0].Text != "second!" {
		t.Fatalf("panel: got %+v, want second's result", got)
	}
	if len(v.shown) != 1 {
		t.Fatalf("renders: got %d, want 1", len(v.shown))
	}
}

func TestFailureRendersFallback(t *testing.T) {
	l, g, v := newLoop(), &guard{}, &view{}
	f := &fetcher{fn: func(string) ([]genclient.Suggestion, error) {
		return nil, errors.New("network down")
	}}
	c := newController(l, g, f, v, Config{})

	c.Input("cooking pasta")
	l.runUntil(t, func() bool { return c.State() == Failed })
	got := v.last()
	if len(got) != 8 || !v.failed {
		t.Fatalf("fallback: got %d items, failed=%v", len(got), v.failed)
	}
	if got[0].Text != "cooking pasta - Complete Guide" || got[0].Score != 95 {
		t.Fatalf("first: got %+v", got[0])
	}
	if got[1].Text != "How to cooking pasta in 2024" || got[1].Score != 92 {
		t.Fatalf("second: got %+v", got[1])
	}
}

func TestEmptyInputClears(t *testing.T) {
	l, g, v := newLoop(), &guard{}, &view{}
	f := &fetcher{fn: echo}
	c := newController(l, g, f, v, Config{})

	c.Input("pasta")
	c.Input("   ")
	if c.State() != Idle || v.cleared != 1 {
		t.Fatalf("state %v, cleared %d", c.State(), v.cleared)
	}
	l.runFor(80 * time.Millisecond)
	if f.count() != 0 {
		t.Fatal("cleared input still fired")
	}
}

func TestEmptyInputInvalidatesInFlight(t *testing.T) {
	l, g, v := newLoop(), &guard{}, &view{}
	release := make(chan struct{})
	f := &fetcher{fn: func(text string) ([]genclient.Suggestion, error) {
		<-release
		return echo(text)
	}}
	c := newController(l, g, f, v, Config{})

	var res Result
	c.Request("pasta", func(r Result) { res = r })
	c.Input("")
	close(release)
	l.runUntil(t, func() bool { return res.Token != 0 })
	if !res.Stale || len(v.shown) != 0 {
		t.Fatal("result rendered after the field was cleared")
	}
}

func TestMaxSuggestionsAndAutoSuggest(t *testing.T) {
	l, g, v := newLoop(), &guard{}, &view{}
	auto := true
	f := &fetcher{fn: func(text string) ([]genclient.Suggestion, error) {
		return genclient.FallbackTitles(text), nil
	}}
	c := newController(l, g, f, v, Config{
		AutoSuggest:    func() bool { return auto },
		MaxSuggestions: func() int { return 3 },
	})

	c.Input("pasta")
	l.runUntil(t, func() bool { return c.State() == Rendered })
	if n := len(v.last()); n != 3 {
		t.Fatalf("items: got %d, want 3", n)
	}

	auto = false
	c.Input("risotto")
	l.runFor(80 * time.Millisecond)
	if f.count() != 1 {
		t.Fatal("input handled with auto suggest off")
	}
}

func TestPrime(t *testing.T) {
	l, g, v := newLoop(), &guard{}, &view{}
	f := &fetcher{fn: echo}
	c := newController(l, g, f, v, Config{PrimeDelay: func() time.Duration { return 10 * time.Millisecond }})

	c.Prime("")
	if c.State() != Idle {
		t.Fatal("empty prime changed state")
	}
	c.Prime("draft title")
	l.runUntil(t, func() bool { return c.State() == Rendered })
	if f.calls[0] != "draft title" {
		t.Fatalf("calls: got %q", f.calls)
	}
	c.Prime("draft title")
	l.runFor(50 * time.Millisecond)
	if f.count() != 1 {
		t.Fatal("prime repeated an already processed value")
	}
}

func TestSequencer(t *testing.T) {
	var s Sequencer
	if s.Current(0) {
		t.Fatal("zero token is never current")
	}
	a := s.Next()
	b := s.Next()
	if b <= a || s.Current(a) || !s.Current(b) {
		t.Fatalf("tokens %d, %d", a, b)
	}
}

func TestRetypeAfterClearRequestsAgain(t *testing.T) {
	l, g, v := newLoop(), &guard{}, &view{}
	f := &fetcher{fn: echo}
	c := newController(l, g, f, v, Config{})

	c.Input("pasta")
	l.runUntil(t, func() bool { return c.State() == Rendered })

	c.Input("")
	if c.State() != Idle || v.cleared != 1 {
		t.Fatalf("after clear: state %v, cleared %d", c.State(), v.cleared)
	}
	if got := c.LastProcessed(); got != "" {
		t.Fatalf("last processed after clear: got %q, want empty", got)
	}

	c.Input("pasta")
	l.runUntil(t, func() bool { return f.count() == 2 && c.State() == Rendered })
	if len(v.shown) != 2 {
		t.Fatalf("shown: got %d renders, want 2", len(v.shown))
	}
}

func TestInputComparesTrimmedText(t *testing.T) {
	l, g, v := newLoop(), &guard{}, &view{}
	f := &fetcher{fn: echo}
	c := newController(l, g, f, v, Config{})

	c.Input("pasta")
	l.runUntil(t, func() bool { return c.State() == Rendered })

	c.Input("pasta  ")
	l.runFor(60 * time.Millisecond)
	if f.count() != 1 {
		t.Fatalf("calls: got %q, want one request", f.calls)
	}
	if c.State() != Rendered {
		t.Fatalf("state: got %v, want rendered", c.State())
	}
}
