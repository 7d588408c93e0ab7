package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/tubemaster/studio/internal/authgate"
	"github.com/hazyhaar/tubemaster/studio/internal/page"
	"github.com/hazyhaar/tubemaster/trace"
)

// Errors surfaced by page operations, re-exported for outer surfaces.
var (
	ErrNoField         = page.ErrNoField
	ErrNoKeywords      = page.ErrNoKeywords
	ErrNothingToInsert = page.ErrNothingToInsert
	ErrSuperseded      = page.ErrSuperseded
	ErrUnauthenticated = page.ErrUnauthenticated

	errBadDirection = errors.New("studio: unknown direction")
)

// EngineStatus is the daemon-level view returned by /api/status and the
// studio_status tool.
type EngineStatus struct {
	Attached bool              `json:"attached"`
	Page     *Status           `json:"page,omitempty"`
	Auth     AuthState         `json:"auth"`
	Settings Settings          `json:"settings"`
	Services []string          `json:"services"`
	Breakers map[string]string `json:"breakers"`
	SQL      *trace.Stats      `json:"sql,omitempty"`
}

func (e *Engine) withPage() (*page.Page, error) {
	p := e.current()
	if p == nil {
		return nil, ErrNoPage
	}
	return p, nil
}

// Status reports the engine and, when attached, the page.
func (e *Engine) Status(ctx context.Context) (EngineStatus, error) {
	st := EngineStatus{
		Auth:     e.gate.Snapshot(),
		Settings: e.settings.Get(),
		Services: e.router.Services(),
		Breakers: e.breakers.States(),
	}
	if e.cfg.DB.Trace {
		sql := trace.Snapshot()
		st.SQL = &sql
	}
	if p := e.current(); p != nil {
		ps, err := p.Status(ctx)
		if err != nil && !errors.Is(err, page.ErrClosed) {
			return st, err
		}
		if err == nil {
			st.Attached, st.Page = true, &ps
		}
	}
	return st, nil
}

// Rescan relocates fields and panels now.
func (e *Engine) Rescan(ctx context.Context) (Status, error) {
	p, err := e.withPage()
	if err != nil {
		return Status{}, err
	}
	return p.Rescan(ctx)
}

// SuggestTitles runs a title session for text (the current title when empty).
func (e *Engine) SuggestTitles(ctx context.Context, text string) ([]Suggestion, error) {
	p, err := e.withPage()
	if err != nil {
		return nil, err
	}
	return p.SuggestTitles(ctx, text)
}

// PopulateTitle writes text into the title field.
func (e *Engine) PopulateTitle(ctx context.Context, text string) error {
	p, err := e.withPage()
	if err != nil {
		return err
	}
	return p.PopulateTitle(ctx, text)
}

// GenerateDescription starts a variant list for keywords, or adds a variant
// to the current list when keywords is empty.
func (e *Engine) GenerateDescription(ctx context.Context, keywords string) (Description, error) {
	p, err := e.withPage()
	if err != nil {
		return Description{}, err
	}
	return p.GenerateDescription(ctx, keywords)
}

// NavigateHistory moves through the variants: "prev", "next" or "current".
func (e *Engine) NavigateHistory(ctx context.Context, dir string) (Description, error) {
	switch dir {
	case "prev", "next", "current":
	default:
		return Description{}, fmt.Errorf("%w %q", errBadDirection, dir)
	}
	p, err := e.withPage()
	if err != nil {
		return Description{}, err
	}
	return p.NavigateHistory(ctx, dir)
}

// InsertDescription prepends the current variant to the host description.
func (e *Engine) InsertDescription(ctx context.Context) error {
	p, err := e.withPage()
	if err != nil {
		return err
	}
	return p.InsertDescription(ctx)
}

// ReadDescription returns the host description text, or Markdown.
func (e *Engine) ReadDescription(ctx context.Context, markdown bool) (string, error) {
	p, err := e.withPage()
	if err != nil {
		return "", err
	}
	return p.ReadDescription(ctx, markdown)
}

// GenerateThumbnails requests thumbnails for description.
func (e *Engine) GenerateThumbnails(ctx context.Context, description string) ([]Thumbnail, error) {
	p, err := e.withPage()
	if err != nil {
		return nil, err
	}
	return p.GenerateThumbnails(ctx, description)
}

// StoreToken signs in with an account token. It goes through the
// background service like the extension's syncAuthData message.
func (e *Engine) StoreToken(ctx context.Context, token string) (AuthState, error) {
	if strings.TrimSpace(token) == "" {
		return e.gate.Snapshot(), authgate.ErrEmptyToken
	}
	if err := e.gen.SyncAuth(ctx, token); err != nil {
		return e.gate.Snapshot(), err
	}
	return e.gate.Snapshot(), nil
}

// SignOut clears the stored session.
func (e *Engine) SignOut(ctx context.Context) error {
	return e.gen.SignOut(ctx)
}

// Auth returns the session state.
func (e *Engine) Auth() AuthState { return e.gate.Snapshot() }

// SetSetting stores one runtime setting.
func (e *Engine) SetSetting(ctx context.Context, key, value string) error {
	return e.settings.Set(ctx, key, value)
}
