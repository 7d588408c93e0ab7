// Package page runs the studio core for one host page. A single goroutine
// owns the document: agent messages, scheduler requests, timers, auth
// changes and generation results all arrive as closures on its queue.
package page

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/tubemaster/observability"
	"github.com/hazyhaar/tubemaster/studio/internal/bridge"
	"github.com/hazyhaar/tubemaster/studio/internal/genclient"
	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
	"github.com/hazyhaar/tubemaster/studio/internal/locator"
	"github.com/hazyhaar/tubemaster/studio/internal/mutwatch"
	"github.com/hazyhaar/tubemaster/studio/internal/panel"
	"github.com/hazyhaar/tubemaster/studio/internal/session"
	"github.com/hazyhaar/tubemaster/studio/mutation"
)

var (
	// ErrClosed is returned once the page loop has stopped.
	ErrClosed = errors.New("page: closed")
	// ErrNoField is returned when the needed host field cannot be found.
	ErrNoField = errors.New("page: field not found")
	// ErrSuperseded is returned when a newer request replaced this one.
	ErrSuperseded = errors.New("page: superseded by a newer request")
	// ErrNothingToInsert is returned when no description was generated.
	ErrNothingToInsert = errors.New("page: no description to insert")
	// ErrNoKeywords is returned by a reload before any keywords were given.
	ErrNoKeywords = errors.New("page: no keywords")
	// ErrUnauthenticated is returned by operations that need a session.
	ErrUnauthenticated = errors.New("page: not authenticated")
)

// Generator is the content side of the generation boundary.
type Generator interface {
	Titles(ctx context.Context, text string) ([]genclient.Suggestion, error)
	Thumbnails(ctx context.Context, description string) ([]genclient.Thumbnail, error)
	Description(ctx context.Context, req genclient.DescriptionRequest, index int) (string, error)
}

// Authenticator reports the account session state.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
}

// Settings are the runtime user settings.
type Settings struct {
	AutoSuggest     bool
	SuggestionDelay time.Duration
	MaxSuggestions  int
}

// DefaultSettings match a fresh install.
func DefaultSettings() Settings {
	return Settings{AutoSuggest: true, SuggestionDelay: time.Second, MaxSuggestions: 8}
}

// EventSink records business events. *observability.EventLogger
// satisfies it.
type EventSink interface {
	LogEvent(ctx context.Context, ev observability.BusinessEvent)
}

// Deps are the collaborators of a Page.
type Deps struct {
	Doc       hostdom.Document
	Generator Generator
	Auth      Authenticator
	// Settings is read on every use; nil means DefaultSettings.
	Settings func() Settings
	Events   EventSink
}

// Config configures a Page.
type Config struct {
	URL          string
	Locator      locator.Config
	Scheduler    mutwatch.Config
	Bridge       bridge.Config
	Debounce     time.Duration
	IndicatorTTL time.Duration
	LabelTTL     time.Duration
	QueueSize    int
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 800 * time.Millisecond
	}
	if c.IndicatorTTL <= 0 {
		c.IndicatorTTL = 3 * time.Second
	}
	if c.LabelTTL <= 0 {
		c.LabelTTL = 2 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Page is the controller of one studio page.
type Page struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	queue  chan func()
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	sched  *mutwatch.Scheduler

	// Owned by the loop goroutine.
	doc         hostdom.Document
	loc         *locator.Locator
	anchor      *panel.Anchor
	bridge      *bridge.Bridge
	titles      *session.Controller
	title       *locator.Field
	desc        *locator.Field
	suggestions []genclient.Suggestion
	history     panel.History
	descSeq     session.Sequencer
	thumbSeq    session.Sequencer
	thumbs      []genclient.Thumbnail
	indicator   hostdom.Element
	url         string
	rescans     int
	lastRescan  time.Time
	panics      atomic.Int64
}

// New returns a Page. Call Run to start its loop.
func New(deps Deps, cfg Config) *Page {
	cfg.defaults()
	if deps.Settings == nil {
		deps.Settings = DefaultSettings
	}
	if cfg.Locator.Logger == nil {
		cfg.Locator.Logger = cfg.Logger
	}
	if cfg.Scheduler.Logger == nil {
		cfg.Scheduler.Logger = cfg.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Page{
		cfg:    cfg,
		deps:   deps,
		logger: cfg.Logger.With("page", cfg.URL),
		queue:  make(chan func(), cfg.QueueSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		sched:  mutwatch.NewScheduler(cfg.Scheduler),
		doc:    deps.Doc,
		loc:    locator.New(cfg.Locator),
		url:    cfg.URL,
	}
	p.anchor = panel.New(panel.Config{Authenticated: p.authenticated, Logger: cfg.Logger})

	bcfg := cfg.Bridge
	bcfg.Schedule = p.after
	if bcfg.Logger == nil {
		bcfg.Logger = cfg.Logger
	}
	p.bridge = bridge.New(deps.Doc, bcfg)

	p.titles = session.New(ctx, session.Config{
		Debounce:       cfg.Debounce,
		PrimeDelay:     func() time.Duration { return p.deps.Settings().SuggestionDelay },
		AutoSuggest:    func() bool { return p.deps.Settings().AutoSuggest },
		MaxSuggestions: func() int { return p.deps.Settings().MaxSuggestions },
		Logger:         cfg.Logger,
	}, p.postGuarded("title session"), p.bridge, deps.Generator.Titles, titleView{p})
	return p
}

// Run drives the page until ctx is done. Panels are removed on the way out.
func (p *Page) Run(ctx context.Context) {
	defer close(p.done)
	defer p.cancel()

	go p.sched.Run(p.ctx)
	p.logger.Info("page: started")
	for {
		select {
		case <-ctx.Done():
			p.guard("teardown", func() error { p.teardown(); return nil })
			p.logger.Info("page: stopped")
			return
		case fn := <-p.queue:
			fn()
		case req := <-p.sched.Requests():
			p.guard("rescan", func() error { p.rescan(string(req.Source)); return nil })
		}
	}
}

// Done is closed once Run has returned.
func (p *Page) Done() <-chan struct{} { return p.done }

// Post queues fn on the page goroutine. It returns false once the page
// has stopped.
func (p *Page) Post(fn func()) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.queue <- fn:
		return true
	case <-p.done:
		return false
	}
}

// Do runs fn on the page goroutine and waits for its result.
func (p *Page) Do(ctx context.Context, op string, fn func() error) error {
	errc := make(chan error, 1)
	if !p.Post(func() { errc <- p.guard(op, fn) }) {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}
}

// guard contains a panic in one event so the next one still runs.
func (p *Page) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("page: panic recovered", "op", op, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("page: %s: panic: %v", op, r)
		}
	}()
	return fn()
}

func (p *Page) postGuarded(op string) func(func()) {
	return func(fn func()) {
		p.Post(func() { p.guard(op, func() error { fn(); return nil }) })
	}
}

// after runs fn on the page goroutine after d.
func (p *Page) after(d time.Duration, fn func()) {
	post := p.postGuarded("timer")
	time.AfterFunc(d, func() { post(fn) })
}

func (p *Page) authenticated() bool {
	return p.deps.Auth == nil || p.deps.Auth.IsAuthenticated(p.ctx)
}

func (p *Page) hostContext() panel.HostContext {
	return panel.HostContext{Doc: p.doc, Title: p.title, Description: p.desc}
}

func (p *Page) logEvent(typ, entity, action string, ok bool, details string) {
	if p.deps.Events == nil {
		return
	}
	p.deps.Events.LogEvent(p.ctx, observability.BusinessEvent{
		EventType:  typ,
		EntityType: entity,
		EntityID:   p.url,
		Action:     action,
		Details:    details,
		Success:    ok,
	})
}

// Deliver routes one agent message. It is safe from any goroutine.
func (p *Page) Deliver(msg *mutation.Message) {
	switch msg.Kind {
	case mutation.KindMutations:
		if msg.Batch != nil {
			p.sched.Mutations(msg.Batch)
		}
	case mutation.KindClick:
		if msg.Click != nil {
			p.sched.Click(*msg.Click)
		}
	case mutation.KindInput:
		if in := msg.Input; in != nil {
			p.Post(func() { p.guard("input", func() error { p.handleInput(*in); return nil }) })
		}
	case mutation.KindAction:
		if a := msg.Action; a != nil {
			p.Post(func() { p.guard("action", func() error { return p.handleAction(*a) }) })
		}
	case mutation.KindNavigate:
		url := msg.URL
		p.Post(func() { p.guard("navigate", func() error { p.navigated(url, false); return nil }) })
		p.sched.Navigate()
	case mutation.KindDocReset, mutation.KindReady:
		url, ready := msg.URL, msg.Kind == mutation.KindReady
		p.Post(func() { p.guard("reset", func() error { p.navigated(url, ready); return nil }) })
		p.sched.Navigate()
	}
}

// HandleAuth reacts to an auth event. Safe from any goroutine.
func (p *Page) HandleAuth(ev string) {
	p.Post(func() {
		p.guard("auth", func() error {
			switch ev {
			case "signedOut":
				p.titles.Stop()
				if n := p.anchor.TeardownAll(p.doc); n > 0 {
					p.logEvent(observability.EventPanelsTornDown, "panel", "signed_out", true, "")
				}
				p.logger.Info("page: signed out, panels removed")
			default:
				p.rescan("auth")
			}
			return nil
		})
	})
}

// RequestRescan asks the scheduler for a rescan. Safe from any goroutine.
func (p *Page) RequestRescan() {
	p.sched.Submit(mutwatch.Request{Source: mutwatch.SourceManual, Urgency: mutwatch.High})
}

// navigated resets per-document state after an SPA navigation, a document
// reset or the agent's first report.
func (p *Page) navigated(url string, ready bool) {
	if url != "" {
		p.url = url
	}
	if !ready {
		return
	}
	p.bridge.Reset()
	if p.authenticated() {
		p.showIndicator()
	}
}

func (p *Page) showIndicator() {
	el, err := panel.ShowIndicator(p.doc)
	if err != nil {
		p.logger.Debug("page: indicator not shown", "error", err)
		return
	}
	p.indicator = el
	p.after(p.cfg.IndicatorTTL, func() {
		if p.indicator != nil && p.indicator.Same(el) {
			el.Remove()
			p.indicator = nil
		}
	})
}

// rescan relocates the fields and re-anchors the panels.
func (p *Page) rescan(reason string) {
	p.rescans++
	p.lastRescan = time.Now()
	if !p.authenticated() {
		if n := p.anchor.TeardownAll(p.doc); n > 0 {
			p.logger.Info("page: unauthenticated, panels removed", "count", n)
		}
		return
	}
	p.refreshField(locator.Title)
	p.refreshField(locator.Description)
	panels := p.anchor.EnsureAll(p.hostContext())
	p.logger.Debug("page: rescan", "reason", reason, "title", p.title != nil, "description", p.desc != nil, "panels", len(panels))
}

func (p *Page) refreshField(kind locator.Kind) {
	cur := p.title
	if kind == locator.Description {
		cur = p.desc
	}
	f, err := p.loc.Find(p.doc, kind)
	if err != nil {
		if cur != nil && !cur.Live(p.doc) {
			p.setField(kind, nil)
		}
		return
	}
	if cur != nil && cur.El.Same(f.El) {
		return
	}
	p.setField(kind, f)
	p.logger.Info("page: field located", "kind", kind, "strategy", f.Strategy)
	if locator.Mark(f) && kind == locator.Title {
		if v, err := p.bridge.Read(f); err == nil {
			p.titles.Prime(v)
		}
	}
}

func (p *Page) setField(kind locator.Kind, f *locator.Field) {
	if kind == locator.Title {
		if p.title != nil && f == nil {
			p.titles.Stop()
		}
		p.title = f
		return
	}
	p.desc = f
}

func (p *Page) handleInput(in mutation.Input) {
	switch locator.Kind(in.Field) {
	case locator.Title:
		if p.title == nil || !p.title.Live(p.doc) {
			p.refreshField(locator.Title)
		}
		p.titles.Input(in.Value)
	case locator.Description:
		// Only the summary line reads the description; it is read on demand.
	}
}

// panel returns the live panel of kind, attaching it when possible.
func (p *Page) panel(kind panel.Kind) *panel.Panel {
	if pn := p.anchor.Get(kind); pn.Live(p.doc) {
		return pn
	}
	return p.anchor.EnsureAttached(kind, p.hostContext())
}

func (p *Page) teardown() {
	p.titles.Stop()
	if p.indicator != nil {
		p.indicator.Remove()
		p.indicator = nil
	}
	if n := p.anchor.TeardownAll(p.doc); n > 0 {
		p.logEvent(observability.EventPanelsTornDown, "panel", "teardown", true, "")
	}
}

// titleView renders the title session into the suggestions panel.
type titleView struct{ p *Page }

func (v titleView) Loading() {
	if pn := v.p.panel(panel.TitleSuggestions); pn != nil {
		pn.ShowLoading()
	}
}

func (v titleView) Show(items []genclient.Suggestion, failed bool) {
	v.p.suggestions = items
	if pn := v.p.panel(panel.TitleSuggestions); pn != nil {
		if err := pn.ShowSuggestions(items); err != nil {
			v.p.logger.Debug("page: suggestions not rendered", "error", err)
		}
	}
	if failed {
		v.p.logger.Info("page: suggestions from fallback", "count", len(items))
	}
}

func (v titleView) Clear() {
	v.p.suggestions = nil
	if pn := v.p.anchor.Get(panel.TitleSuggestions); pn.Live(v.p.doc) {
		pn.ClearSuggestions()
	}
}
