package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// Tab is the studio page the daemon drives.
type Tab struct {
	Page    *rod.Page
	URL     string
	// Adopted is set when an already open tab was reused.
	Adopted bool

	router *rod.HijackRouter
}

// OpenTab returns a tab on pageURL. An open tab on the same host is
// adopted so a signed-in session is never navigated away; otherwise a new
// stealth page is created and navigated.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	if page, current := findTab(b, pageURL); page != nil {
		mgr.cfg.Logger.Info("browser: adopted open tab", "url", current)
		return &Tab{Page: page, URL: current, Adopted: true}, nil
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{Page: page, URL: pageURL}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		t.router = blockResources(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return t, nil
}

// findTab returns the first page whose host matches pageURL's, with its
// current URL.
func findTab(b *rod.Browser, pageURL string) (*rod.Page, string) {
	want, err := url.Parse(pageURL)
	if err != nil || want.Host == "" {
		return nil, ""
	}
	pages, err := b.Pages()
	if err != nil {
		return nil, ""
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if sameHost(info.URL, want.Host) {
			return p, info.URL
		}
	}
	return nil, ""
}

func sameHost(raw, host string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

// Close closes the tab. Adopted tabs belong to the user and stay open.
func (t *Tab) Close() error {
	if t.router != nil {
		t.router.Stop()
	}
	if t.Page == nil || t.Adopted {
		return nil
	}
	return t.Page.Close()
}
