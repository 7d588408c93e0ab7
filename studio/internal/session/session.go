// Package session coordinates the title suggestion flow of one field:
// debounced input, one request per settled text, stale result discard and
// fallback rendering. A Controller is driven from the page goroutine; its
// timers and network results come back through Post.
package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/tubemaster/studio/internal/genclient"
)

// State is the controller state.
type State int

const (
	Idle State = iota
	Debouncing
	Requesting
	Rendered
	Failed
)

func (s State) String() string {
	switch s {
	case Debouncing:
		return "debouncing"
	case Requesting:
		return "requesting"
	case Rendered:
		return "rendered"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Guard exposes the bridge's write state.
type Guard interface {
	Populating() bool
	LastWritten() string
}

// View renders session output into the title panel.
type View interface {
	Loading()
	Show(items []genclient.Suggestion, failed bool)
	Clear()
}

// Fetch asks for suggestions. On failure it may return fallback items
// together with the error.
type Fetch func(ctx context.Context, text string) ([]genclient.Suggestion, error)

// Stopper is a pending timer.
type Stopper interface{ Stop() bool }

// Result is delivered to Request callbacks on the page goroutine.
type Result struct {
	Token uint64
	Text  string
	Items []genclient.Suggestion
	Err   error
	// Stale is set when a newer request superseded this one; the panel
	// was not updated.
	Stale bool
}

// Config configures a Controller.
type Config struct {
	Debounce time.Duration
	// PrimeDelay is the wait before suggesting for a pre-filled field.
	PrimeDelay     func() time.Duration
	AutoSuggest    func() bool
	MaxSuggestions func() int
	AfterFunc      func(d time.Duration, fn func()) Stopper
	Logger         *slog.Logger
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 800 * time.Millisecond
	}
	if c.PrimeDelay == nil {
		c.PrimeDelay = func() time.Duration { return time.Second }
	}
	if c.AutoSuggest == nil {
		c.AutoSuggest = func() bool { return true }
	}
	if c.MaxSuggestions == nil {
		c.MaxSuggestions = func() int { return 8 }
	}
	if c.AfterFunc == nil {
		c.AfterFunc = func(d time.Duration, fn func()) Stopper { return time.AfterFunc(d, fn) }
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Controller is the session state machine of one field.
type Controller struct {
	ctx   context.Context
	cfg   Config
	post  func(func())
	guard Guard
	fetch Fetch
	view  View

	state     State
	pending   string
	processed string
	timer     Stopper
	debounce  uint64
	seq       Sequencer
}

// New returns a Controller. ctx bounds every request it issues.
func New(ctx context.Context, cfg Config, post func(func()), guard Guard, fetch Fetch, view View) *Controller {
	cfg.defaults()
	return &Controller{ctx: ctx, cfg: cfg, post: post, guard: guard, fetch: fetch, view: view}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// LastProcessed returns the last text a request was issued for.
func (c *Controller) LastProcessed() string { return c.processed }

// SetView swaps the rendering target, e.g. after the panel was recreated.
func (c *Controller) SetView(v View) { c.view = v }

// Input handles a keystroke-level change of the field text.
func (c *Controller) Input(text string) {
	if c.guard != nil && c.guard.Populating() {
		c.cfg.Logger.Debug("session: input ignored while populating")
		return
	}
	if !c.cfg.AutoSuggest() {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		c.stopTimer()
		c.seq.Next()
		// Re-typing the same text after clearing must request again.
		c.pending, c.processed = "", ""
		c.state = Idle
		if c.view != nil {
			c.view.Clear()
		}
		return
	}
	c.pending = text
	c.state = Debouncing
	c.arm(c.cfg.Debounce)
}

func (c *Controller) arm(d time.Duration) {
	c.stopTimer()
	c.debounce++
	gen := c.debounce
	c.timer = c.cfg.AfterFunc(d, func() {
		c.post(func() { c.fire(gen) })
	})
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.debounce++
}

func (c *Controller) fire(gen uint64) {
	if gen != c.debounce || c.state != Debouncing {
		return
	}
	c.timer = nil
	text := c.pending
	if text == c.processed || (c.guard != nil && text == strings.TrimSpace(c.guard.LastWritten())) {
		c.cfg.Logger.Debug("session: unchanged text, no request")
		c.state = c.settled()
		return
	}
	c.Request(text, nil)
}

func (c *Controller) settled() State {
	if c.processed == "" {
		return Idle
	}
	return Rendered
}

// Prime schedules a request for a field found with an initial value.
func (c *Controller) Prime(value string) {
	value = strings.TrimSpace(value)
	if value == "" || value == c.processed || !c.cfg.AutoSuggest() {
		return
	}
	c.pending = value
	c.state = Debouncing
	c.arm(c.cfg.PrimeDelay())
}

// Request issues a request for text now, superseding any earlier one.
// done, if set, receives the result on the page goroutine.
func (c *Controller) Request(text string, done func(Result)) uint64 {
	c.stopTimer()
	c.processed = text
	tok := c.seq.Next()
	c.state = Requesting
	if c.view != nil {
		c.view.Loading()
	}
	ctx := c.ctx
	go func() {
		items, err := c.fetch(ctx, text)
		c.post(func() { c.apply(Result{Token: tok, Text: text, Items: items, Err: err}, done) })
	}()
	return tok
}

func (c *Controller) apply(r Result, done func(Result)) {
	if !c.seq.Current(r.Token) {
		c.cfg.Logger.Debug("session: stale result discarded", "token", r.Token, "latest", c.seq.Last())
		r.Stale = true
		if done != nil {
			done(r)
		}
		return
	}
	if r.Err != nil && len(r.Items) == 0 {
		r.Items = genclient.FallbackTitles(r.Text)
	}
	if limit := c.cfg.MaxSuggestions(); limit > 0 && len(r.Items) > limit {
		r.Items = r.Items[:limit]
	}
	if r.Err != nil {
		c.state = Failed
	} else {
		c.state = Rendered
	}
	if c.view != nil {
		c.view.Show(r.Items, r.Err != nil)
	}
	if done != nil {
		done(r)
	}
}

// Stop cancels the pending debounce and invalidates in-flight requests.
func (c *Controller) Stop() {
	c.stopTimer()
	c.seq.Next()
	c.state = Idle
}
