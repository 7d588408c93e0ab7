// Package browser owns the Chrome process behind the studio tab: launch or
// attach, the Xvfb display for headful runs, and recycling on a memory or
// age threshold.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Mode selects how Chrome is shown.
type Mode int

const (
	Headless Mode = iota
	// Headful runs a visible Chrome on an Xvfb display. Studio sign-in
	// works more reliably with it.
	Headful
)

// ParseMode maps the config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "headful":
		return Headful, nil
	case "headless":
		return Headless, nil
	}
	return Headless, fmt.Errorf("browser: unknown mode %q", s)
}

func (m Mode) String() string {
	if m == Headful {
		return "headful"
	}
	return "headless"
}

// Config configures the Manager.
type Config struct {
	// RemoteURL attaches to a running Chrome (its DevTools WebSocket URL)
	// instead of launching one. Recycling is disabled when set.
	RemoteURL string

	// MemoryLimit in bytes of JS heap on the studio tab. Default: 1GB.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of a launched Chrome.
	// Default: 12h.
	RecycleInterval time.Duration

	// ResourceBlocking lists resource types to block on new tabs.
	ResourceBlocking []string

	Mode Mode

	// XvfbDisplay for headful mode. Default: ":99". Skipped when DISPLAY
	// is already provided by the caller's environment via SkipXvfb.
	XvfbDisplay string
	SkipXvfb    bool

	// UserDataDir is the Chrome profile directory. It keeps the Google
	// session across restarts.
	UserDataDir string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 12 * time.Hour
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RecycleCallback brackets a Chrome restart. The engine detaches its page
// before and reopens the studio tab after.
type RecycleCallback struct {
	BeforeRecycle func()
	AfterRecycle  func(browser *rod.Browser)
}

// Manager manages the Chrome lifecycle.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	startAt time.Time
	closed  bool
	cb      *RecycleCallback

	// heap reports the tab's JS heap; replaced in tests.
	heap func(*rod.Browser) (int64, error)
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, heap: jsHeapUsage}
}

// SetRecycleCallback sets the callback for recycle events.
func (m *Manager) SetRecycleCallback(cb *RecycleCallback) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}

// Start launches Chrome (or attaches to the remote one) and starts the
// monitor goroutine.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}

	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()

	if m.cfg.RemoteURL == "" {
		go m.monitorLoop(ctx)
	}
	return b, nil
}

// Browser returns the current browser handle.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Recycle restarts Chrome and calls the callbacks around it.
func (m *Manager) Recycle(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.cfg.RemoteURL != "" {
		return fmt.Errorf("browser: cannot recycle a remote browser")
	}
	return m.recycleLocked()
}

// Close shuts down Chrome and Xvfb. An attached remote browser is left
// running.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: attaching to remote", "url", wsURL)
	} else {
		if m.cfg.Mode == Headful && !m.cfg.SkipXvfb {
			if err := m.startXvfb(); err != nil {
				return nil, fmt.Errorf("browser: xvfb: %w", err)
			}
		}

		l := launcher.New()
		if m.cfg.Mode == Headful {
			l = l.Headless(false)
			if !m.cfg.SkipXvfb {
				l = l.Env(append(os.Environ(), "DISPLAY="+m.cfg.XvfbDisplay)...)
			}
		} else {
			l = l.Headless(true)
		}
		if m.cfg.UserDataDir != "" {
			l = l.UserDataDir(m.cfg.UserDataDir)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "mode", m.cfg.Mode.String())
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) recycleLocked() error {
	log := m.cfg.Logger
	log.Info("browser: recycling", "uptime", time.Since(m.startAt))

	if m.cb != nil && m.cb.BeforeRecycle != nil {
		m.cb.BeforeRecycle()
	}

	if err := m.cleanup(); err != nil {
		log.Warn("browser: cleanup during recycle", "error", err)
	}

	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()

	if m.cb != nil && m.cb.AfterRecycle != nil {
		m.cb.AfterRecycle(b)
	}

	log.Info("browser: recycled")
	return nil
}

func (m *Manager) cleanup() error {
	if m.browser != nil {
		if m.cfg.RemoteURL == "" {
			m.browser.Close()
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
	return nil
}

// needsRecycle reports why a Chrome started at startAt with the given heap
// should be restarted, or "" if it should not.
func (m *Manager) needsRecycle(startAt time.Time, heap int64) string {
	if time.Since(startAt) > m.cfg.RecycleInterval {
		return "interval"
	}
	if heap > m.cfg.MemoryLimit {
		return "memory"
	}
	return ""
}

func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			if m.closed || m.browser == nil {
				m.mu.RUnlock()
				return
			}
			b, startAt := m.browser, m.startAt
			m.mu.RUnlock()

			heap, err := m.heap(b)
			if err != nil {
				log.Debug("browser: heap check failed", "error", err)
			}
			reason := m.needsRecycle(startAt, heap)
			if reason == "" {
				continue
			}
			log.Info("browser: recycle triggered", "reason", reason, "heap", heap, "limit", m.cfg.MemoryLimit)
			if err := m.Recycle(ctx); err != nil {
				log.Error("browser: recycle failed", "error", err)
			}
		}
	}
}

// jsHeapUsage reads performance.memory on the first open page.
func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil || len(pages) == 0 {
		return 0, fmt.Errorf("no pages for heap check")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
