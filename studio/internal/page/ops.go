package page

import (
	"context"
	"strings"
	"time"

	"github.com/hazyhaar/tubemaster/studio/internal/genclient"
	"github.com/hazyhaar/tubemaster/studio/internal/locator"
	"github.com/hazyhaar/tubemaster/studio/internal/panel"
	"github.com/hazyhaar/tubemaster/studio/internal/session"
)

// Status is a point-in-time view of the page.
type Status struct {
	URL                 string    `json:"url"`
	Authenticated       bool      `json:"authenticated"`
	TitleFound          bool      `json:"title_found"`
	TitleStrategy       string    `json:"title_strategy,omitempty"`
	DescriptionFound    bool      `json:"description_found"`
	DescriptionStrategy string    `json:"description_strategy,omitempty"`
	Panels              []string  `json:"panels"`
	Session             string    `json:"session"`
	LastProcessed       string    `json:"last_processed,omitempty"`
	Suggestions         int       `json:"suggestions"`
	History             string    `json:"history,omitempty"`
	Rescans             int       `json:"rescans"`
	LastRescan          time.Time `json:"last_rescan,omitzero"`
	Panics              int64     `json:"panics"`
}

// Description is the state of the description generator.
type Description struct {
	Keywords string `json:"keywords"`
	Text     string `json:"text"`
	Position string `json:"position"`
	Index    int    `json:"index"`
	Count    int    `json:"count"`
	// Fallback is set when the text came from the static templates.
	Fallback bool `json:"fallback,omitempty"`
}

func (p *Page) status() Status {
	st := Status{
		URL:           p.url,
		Authenticated: p.authenticated(),
		Session:       p.titles.State().String(),
		LastProcessed: p.titles.LastProcessed(),
		Suggestions:   len(p.suggestions),
		History:       p.history.Position(),
		Rescans:       p.rescans,
		LastRescan:    p.lastRescan,
		Panics:        p.panics.Load(),
		Panels:        []string{},
	}
	if p.title.Live(p.doc) {
		st.TitleFound, st.TitleStrategy = true, p.title.Strategy
	}
	if p.desc.Live(p.doc) {
		st.DescriptionFound, st.DescriptionStrategy = true, p.desc.Strategy
	}
	for _, k := range panel.Kinds {
		if p.anchor.Get(k).Live(p.doc) {
			st.Panels = append(st.Panels, string(k))
		}
	}
	return st
}

func (p *Page) description() Description {
	text, _ := p.history.Current()
	return Description{
		Keywords: p.history.Keywords(),
		Text:     text,
		Position: p.history.Position(),
		Index:    p.history.Index(),
		Count:    p.history.Len(),
	}
}

// Status reports the page state.
func (p *Page) Status(ctx context.Context) (Status, error) {
	var st Status
	err := p.Do(ctx, "status", func() error { st = p.status(); return nil })
	return st, err
}

// Rescan relocates fields and panels now.
func (p *Page) Rescan(ctx context.Context) (Status, error) {
	var st Status
	err := p.Do(ctx, "rescan", func() error {
		p.rescan("manual")
		st = p.status()
		return nil
	})
	return st, err
}

// SuggestTitles runs a title session for text, or for the current title
// when text is empty, and returns what the panel shows.
func (p *Page) SuggestTitles(ctx context.Context, text string) ([]genclient.Suggestion, error) {
	resc := make(chan session.Result, 1)
	err := p.Do(ctx, "suggest titles", func() error {
		if !p.authenticated() {
			return ErrUnauthenticated
		}
		if strings.TrimSpace(text) == "" {
			if p.title == nil || !p.title.Live(p.doc) {
				p.refreshField(locator.Title)
			}
			text = strings.TrimSpace(p.readField(p.title))
		}
		if text == "" {
			return ErrNoField
		}
		p.titles.Request(text, func(r session.Result) { resc <- r })
		return nil
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-resc:
		if r.Stale {
			return nil, ErrSuperseded
		}
		return r.Items, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	}
}

// PopulateTitle writes text into the title field.
func (p *Page) PopulateTitle(ctx context.Context, text string) error {
	return p.Do(ctx, "populate title", func() error { return p.populateTitle(text) })
}

// GenerateDescription starts a new variant list for keywords, or appends
// a variant when keywords is empty and a list exists.
func (p *Page) GenerateDescription(ctx context.Context, keywords string) (Description, error) {
	type result struct {
		text string
		err  error
	}
	resc := make(chan result, 1)
	err := p.Do(ctx, "generate description", func() error {
		if !p.authenticated() {
			return ErrUnauthenticated
		}
		reset := strings.TrimSpace(keywords) != ""
		if !reset && p.history.Keywords() == "" {
			return ErrNoKeywords
		}
		p.requestDescription(keywords, reset, func(text string, err error) { resc <- result{text, err} })
		return nil
	})
	if err != nil {
		return Description{}, err
	}
	select {
	case r := <-resc:
		if r.text == "" {
			return Description{}, r.err
		}
		var d Description
		err := p.Do(ctx, "description state", func() error { d = p.description(); return nil })
		d.Fallback = r.err != nil
		return d, err
	case <-ctx.Done():
		return Description{}, ctx.Err()
	case <-p.done:
		return Description{}, ErrClosed
	}
}

// NavigateHistory moves through the variants: "prev", "next" or "current".
func (p *Page) NavigateHistory(ctx context.Context, dir string) (Description, error) {
	var d Description
	err := p.Do(ctx, "navigate history", func() error {
		switch dir {
		case "prev":
			if p.history.Prev() {
				p.renderDescription()
			}
		case "next":
			if p.history.Next() {
				p.renderDescription()
			}
		}
		d = p.description()
		return nil
	})
	return d, err
}

// InsertDescription prepends the current variant to the host description.
func (p *Page) InsertDescription(ctx context.Context) error {
	return p.Do(ctx, "insert description", p.insertDescription)
}

// ReadDescription returns the host description, as Markdown when asked.
func (p *Page) ReadDescription(ctx context.Context, markdown bool) (string, error) {
	var out string
	err := p.Do(ctx, "read description", func() error {
		if p.desc == nil || !p.desc.Live(p.doc) {
			p.refreshField(locator.Description)
		}
		if p.desc == nil {
			return ErrNoField
		}
		var err error
		if markdown {
			out, err = p.bridge.ReadMarkdown(p.desc)
		} else {
			out, err = p.bridge.Read(p.desc)
		}
		return err
	})
	return out, err
}

// GenerateThumbnails requests thumbnails for description (or the host
// fields when empty).
func (p *Page) GenerateThumbnails(ctx context.Context, description string) ([]genclient.Thumbnail, error) {
	type result struct {
		thumbs []genclient.Thumbnail
		err    error
	}
	resc := make(chan result, 1)
	err := p.Do(ctx, "generate thumbnails", func() error {
		if !p.authenticated() {
			return ErrUnauthenticated
		}
		p.requestThumbnails(strings.TrimSpace(description), func(t []genclient.Thumbnail, err error) { resc <- result{t, err} })
		return nil
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-resc:
		return r.thumbs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	}
}
