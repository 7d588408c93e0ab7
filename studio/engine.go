// Package studio is the tubemaster engine: it drives a Chrome tab on
// YouTube Studio, keeps the extension panels anchored next to the title and
// description fields, and brokers every generation call through the
// privileged background service.
//
//	cfg, _ := studio.LoadConfigFile("tubemaster.yaml")
//	eng, err := studio.Open(ctx, cfg, logger)
//	if err != nil { ... }
//	defer eng.Close()
//	err = eng.Run(ctx) // blocks until ctx is cancelled
package studio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/tubemaster/connectivity"
	"github.com/hazyhaar/tubemaster/dbopen"
	"github.com/hazyhaar/tubemaster/observability"
	"github.com/hazyhaar/tubemaster/shield"
	"github.com/hazyhaar/tubemaster/studio/internal/authgate"
	"github.com/hazyhaar/tubemaster/studio/internal/background"
	"github.com/hazyhaar/tubemaster/studio/internal/bridge"
	"github.com/hazyhaar/tubemaster/studio/internal/browser"
	"github.com/hazyhaar/tubemaster/studio/internal/config"
	"github.com/hazyhaar/tubemaster/studio/internal/genclient"
	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
	"github.com/hazyhaar/tubemaster/studio/internal/hostdom/roddom"
	"github.com/hazyhaar/tubemaster/studio/internal/locator"
	"github.com/hazyhaar/tubemaster/studio/internal/mutwatch"
	"github.com/hazyhaar/tubemaster/studio/internal/observer"
	"github.com/hazyhaar/tubemaster/studio/internal/page"
	"github.com/hazyhaar/tubemaster/trace"
)

// ErrNoPage is returned by page operations while no studio tab is attached.
var ErrNoPage = errors.New("studio: no studio page attached")

// Status and the generation results are re-exported for outer surfaces.
type (
	Status      = page.Status
	Description = page.Description
	Suggestion  = genclient.Suggestion
	Thumbnail   = genclient.Thumbnail
	AuthState   = authgate.Snapshot
)

// Engine ties the state database, the background service and the studio
// page together. Create one per process.
type Engine struct {
	cfg    *Config
	logger *slog.Logger

	db       *sql.DB
	metrics  *observability.MetricsManager
	events   *observability.EventLogger
	router   *connectivity.Router
	breakers *connectivity.Breakers
	bg       *background.Service
	gate     *authgate.Gate
	settings *config.SettingsStore
	gen      *genclient.Client
	unsub    func()

	mu       sync.RWMutex
	mgr      *browser.Manager
	tab      *browser.Tab
	obs      *observer.Observer
	page     *page.Page
	stopPage context.CancelFunc
}

// Open opens the state database and builds everything but the browser.
// Commands that only touch the session (-token, -signout) stop here.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	opts := []dbopen.Option{dbopen.WithMkdirAll()}
	if cfg.DB.Trace {
		trace.SetSlowThreshold(cfg.DB.SlowQuery)
		opts = append(opts, dbopen.WithDriver(trace.DriverName))
	}
	db, err := dbopen.Open(cfg.DB.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("studio: %w", err)
	}
	// One connection: the watchers' MAX(updated_at) polls and the writes
	// share it, and :memory: databases stay a single database.
	db.SetMaxOpenConns(1)

	e, err := newEngine(ctx, cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func newEngine(ctx context.Context, cfg *Config, db *sql.DB, logger *slog.Logger) (*Engine, error) {
	for _, initSchema := range []func(*sql.DB) error{observability.Init, connectivity.Init, authgate.Init, shield.Init} {
		if err := initSchema(db); err != nil {
			return nil, fmt.Errorf("studio: init schema: %w", err)
		}
	}

	e := &Engine{cfg: cfg, logger: logger, db: db}
	e.metrics = observability.NewMetricsManager(db, 100, 5*time.Second)
	e.events = observability.NewEventLogger(db, observability.WithEventLogger(logger))

	gate, err := authgate.Open(ctx, db, authgate.WithLogger(logger))
	if err != nil {
		e.metrics.Close()
		return nil, fmt.Errorf("studio: %w", err)
	}
	e.gate = gate

	settings, err := config.OpenSettings(ctx, db, logger)
	if err != nil {
		e.metrics.Close()
		return nil, fmt.Errorf("studio: %w", err)
	}
	e.settings = settings

	bg, err := background.New(gate, background.Config{
		BaseURL:       cfg.API.BaseURL,
		UserAgent:     cfg.API.UserAgent,
		Timeout:       cfg.API.Timeout,
		AllowLoopback: cfg.API.AllowLoopback,
		Logger:        logger,
	})
	if err != nil {
		e.metrics.Close()
		return nil, fmt.Errorf("studio: %w", err)
	}
	e.bg = bg

	e.breakers = connectivity.NewBreakers()
	e.router = connectivity.New(
		connectivity.WithLogger(logger),
		connectivity.WithMiddleware(
			connectivity.Recovery(logger),
			connectivity.Logging(logger),
			connectivity.WithObservability(e.metrics),
			e.rerouted,
			e.breakers.Middleware(),
		),
	)
	var httpOpts []connectivity.HTTPOption
	if cfg.API.AllowLoopback {
		httpOpts = append(httpOpts, connectivity.HTTPAllowLoopback())
	}
	e.router.RegisterTransport("http", connectivity.HTTPFactory(httpOpts...))
	bg.Register(e.router)

	e.gen = genclient.New(e.router, genclient.Config{Timeout: cfg.API.Timeout + 5*time.Second, Logger: logger})
	e.unsub = gate.Subscribe(e.onAuth)
	return e, nil
}

// rerouted adds retries and a local fallback to actions moved to a remote
// endpoint by the routes table.
func (e *Engine) rerouted(service, strategy string) connectivity.HandlerMiddleware {
	if strategy == "local" {
		return func(next connectivity.Handler) connectivity.Handler { return next }
	}
	mws := []connectivity.HandlerMiddleware{}
	if local, ok := e.bg.Handlers()[service]; ok {
		mws = append(mws, connectivity.WithFallback(local, service, e.logger))
	}
	mws = append(mws, connectivity.WithRetry(e.cfg.API.Retries, 250*time.Millisecond, e.logger))
	return connectivity.Chain(mws...)
}

func (e *Engine) onAuth(ev authgate.Event) {
	e.logger.Info("studio: auth event", "event", string(ev))
	e.events.LogEvent(context.Background(), observability.BusinessEvent{
		EventType:  observability.EventAuthChanged,
		EntityType: "session",
		Action:     string(ev),
		Success:    true,
	})
	if p := e.current(); p != nil {
		p.HandleAuth(string(ev))
	}
}

// Run starts the watchers and the browser, attaches the studio tab and
// blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.StartBackground(ctx)

	mode, err := browser.ParseMode(e.cfg.Browser.Stealth)
	if err != nil {
		return fmt.Errorf("studio: %w", err)
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        e.cfg.Browser.Remote,
		MemoryLimit:      e.cfg.Browser.MemoryLimit,
		RecycleInterval:  e.cfg.Browser.RecycleInterval,
		ResourceBlocking: e.cfg.Browser.ResourceBlocking,
		Mode:             mode,
		XvfbDisplay:      e.cfg.Browser.XvfbDisplay,
		UserDataDir:      e.cfg.Browser.UserDataDir,
		Logger:           e.logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("studio: start browser: %w", err)
	}
	e.mu.Lock()
	e.mgr = mgr
	e.mu.Unlock()

	mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: e.detach,
		AfterRecycle: func(*rod.Browser) {
			go func() {
				if err := e.openStudio(ctx); err != nil {
					e.logger.Error("studio: reattach after recycle failed", "error", err)
				}
			}()
		},
	})

	if err := e.openStudio(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	e.detach()
	return nil
}

// StartBackground runs the database watchers and housekeeping tickers
// until ctx is cancelled. Run calls it; tests and the MCP-only mode call
// it directly.
func (e *Engine) StartBackground(ctx context.Context) {
	t := e.cfg.Timing
	go e.router.Watch(ctx, e.db, t.RoutesPoll)
	go e.gate.Watch(ctx, t.AuthPoll)
	go e.settings.Watch(ctx, t.SettingsPoll)
	go e.housekeeping(ctx)
}

func (e *Engine) housekeeping(ctx context.Context) {
	expiry := time.NewTicker(e.cfg.Timing.AuthPoll)
	defer expiry.Stop()
	cleanup := time.NewTicker(6 * time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-expiry.C:
			e.gate.CheckExpiry()
		case <-cleanup.C:
			if err := observability.Cleanup(ctx, e.db, e.cfg.Retention); err != nil {
				e.logger.Warn("studio: retention cleanup failed", "error", err)
			}
		}
	}
}

// openStudio opens (or adopts) the studio tab and attaches a page to it.
func (e *Engine) openStudio(ctx context.Context) error {
	e.mu.RLock()
	mgr := e.mgr
	e.mu.RUnlock()

	tab, err := browser.OpenTab(ctx, mgr, e.cfg.Studio.URL)
	if err != nil {
		return fmt.Errorf("studio: open tab: %w", err)
	}
	p := e.Attach(ctx, roddom.New(tab.Page), tab.URL)

	obs := observer.New(observer.Config{Page: tab.Page, Sink: p, Logger: e.logger})
	if err := obs.Start(ctx); err != nil {
		e.detach()
		tab.Close()
		return fmt.Errorf("studio: start observer: %w", err)
	}

	e.mu.Lock()
	e.tab, e.obs = tab, obs
	e.mu.Unlock()

	p.RequestRescan()
	return nil
}

// Attach starts a page controller over doc, replacing the current one.
// The live path passes a roddom document; fixture replays pass memdom.
func (e *Engine) Attach(ctx context.Context, doc hostdom.Document, url string) *page.Page {
	e.detach()

	t := e.cfg.Timing
	p := page.New(page.Deps{
		Doc:       doc,
		Generator: e.gen,
		Auth:      e.gate,
		Settings:  e.pageSettings,
		Events:    e.events,
	}, page.Config{
		URL: url,
		Locator: locator.Config{
			TitleScope:                  locator.Scope(e.cfg.Studio.TitleScope),
			MaxStructuralTextareaHeight: e.cfg.Studio.MaxTextareaHeight,
			Logger:                      e.logger,
		},
		Scheduler: mutwatch.Config{
			HighDebounce:   t.HighDebounce,
			NormalDebounce: t.NormalDebounce,
			ClickBurst:     t.ClickBurst,
			QuickTick:      t.QuickTick,
			QuickTicks:     t.QuickTicks,
			SlowTick:       t.SlowTick,
			Logger:         e.logger,
		},
		Bridge: bridge.Config{
			Window: t.PopulateWindow,
			Settle: t.PopulateSettle,
			Logger: e.logger,
		},
		Debounce:     t.TitleDebounce,
		IndicatorTTL: t.IndicatorTTL,
		LabelTTL:     t.LabelTTL,
		Logger:       e.logger.With("url", url),
	})

	pctx, cancel := context.WithCancel(ctx)
	go p.Run(pctx)

	e.mu.Lock()
	e.page, e.stopPage = p, cancel
	e.mu.Unlock()

	e.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:  observability.EventPageAttached,
		EntityType: "page",
		EntityID:   url,
		Action:     "attach",
		Success:    true,
	})
	e.logger.Info("studio: page attached", "url", url)
	return p
}

// detach stops the observer and the page controller; the page tears its
// panels down on the way out.
func (e *Engine) detach() {
	e.mu.Lock()
	obs, p, stop, tab := e.obs, e.page, e.stopPage, e.tab
	e.obs, e.page, e.stopPage, e.tab = nil, nil, nil, nil
	e.mu.Unlock()

	if obs != nil {
		obs.Stop()
	}
	if stop != nil {
		stop()
		select {
		case <-p.Done():
		case <-time.After(5 * time.Second):
			e.logger.Warn("studio: page did not stop in time")
		}
	}
	if tab != nil {
		tab.Close()
	}
}

func (e *Engine) current() *page.Page {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.page
}

func (e *Engine) pageSettings() page.Settings {
	s := e.settings.Get()
	return page.Settings{
		AutoSuggest:     s.AutoSuggest,
		SuggestionDelay: s.SuggestionDelay,
		MaxSuggestions:  s.MaxSuggestions,
	}
}

// Close detaches the page, closes the browser and the database.
func (e *Engine) Close() error {
	e.detach()
	if e.unsub != nil {
		e.unsub()
	}
	e.mu.Lock()
	mgr := e.mgr
	e.mgr = nil
	e.mu.Unlock()
	if mgr != nil {
		mgr.Close()
	}
	e.router.Close()
	e.metrics.Close()
	return e.db.Close()
}

// DB exposes the state database (routes, rate limits, settings).
func (e *Engine) DB() *sql.DB { return e.db }
