// Package panel owns the extension panels injected into the studio page:
// where each kind anchors, idempotent (re)attachment, teardown, and the
// rendering of results into them.
package panel

import (
	"errors"
	"log/slog"

	"github.com/hazyhaar/tubemaster/idgen"
	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
	"github.com/hazyhaar/tubemaster/studio/internal/locator"
)

// Kind is a panel kind.
type Kind string

const (
	TitleSuggestions     Kind = "title-suggestions"
	ThumbnailBuilder     Kind = "thumbnail-builder"
	DescriptionGenerator Kind = "description-generator"
)

// Kinds lists every panel kind in attach order.
var Kinds = []Kind{TitleSuggestions, ThumbnailBuilder, DescriptionGenerator}

// DOM contract attributes.
const (
	PanelAttr  = locator.PanelAttr
	AnchorAttr = "data-ttg-anchor"
	ActionAttr = "data-ttg-action"
	ArgAttr    = "data-ttg-arg"
	InputAttr  = "data-ttg-input"
	StateAttr  = "data-ttg-state"
)

// ErrContainerNotFound is returned when an insert target is missing.
var ErrContainerNotFound = errors.New("panel: container not found")

// HostContext is what anchor selection consults on each attach.
type HostContext struct {
	Doc         hostdom.Document
	Title       *locator.Field
	Description *locator.Field
}

// Panel is one injected subtree.
type Panel struct {
	Kind Kind
	ID   string
	Root hostdom.Element
	// Anchor is the field or landmark the panel follows; AnchorName is its
	// data-ttg-anchor value.
	Anchor     hostdom.Element
	AnchorName string
	Open       bool
	sanitizer  *Sanitizer
}

// Live reports whether the panel root is still in doc.
func (p *Panel) Live(doc hostdom.Document) bool {
	return p != nil && hostdom.Live(doc, p.Root)
}

// Config configures an Anchor.
type Config struct {
	// Authenticated gates every attach. Nil means always.
	Authenticated func() bool
	IDGen         idgen.Generator
	Sanitizer     *Sanitizer
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.Authenticated == nil {
		c.Authenticated = func() bool { return true }
	}
	if c.IDGen == nil {
		c.IDGen = idgen.Prefixed("ttg-p-", idgen.NanoID(8))
	}
	if c.Sanitizer == nil {
		c.Sanitizer = NewSanitizer()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Anchor keeps at most one live panel per kind. It is driven from the page
// goroutine only.
type Anchor struct {
	cfg    Config
	panels map[Kind]*Panel
}

// New returns an Anchor.
func New(cfg Config) *Anchor {
	cfg.defaults()
	return &Anchor{cfg: cfg, panels: make(map[Kind]*Panel)}
}

// Get returns the tracked panel of kind, or nil.
func (a *Anchor) Get(kind Kind) *Panel { return a.panels[kind] }

// EnsureAttached returns the live panel of kind, creating it when needed.
// It returns nil when unauthenticated or when the anchor cannot be found.
func (a *Anchor) EnsureAttached(kind Kind, hc HostContext) *Panel {
	if hc.Doc == nil || !a.cfg.Authenticated() {
		return nil
	}
	target, anchor, name := findAnchor(kind, hc)

	if p := a.panels[kind]; p != nil {
		if p.Live(hc.Doc) && anchor != nil && p.Anchor != nil && p.Anchor.Same(anchor) && p.Anchor.Connected() {
			a.removeStrays(kind, hc.Doc, p.Root)
			return p
		}
		a.cfg.Logger.Debug("panel: stale panel torn down", "kind", kind)
		a.Teardown(kind)
	}
	a.removeStrays(kind, hc.Doc, nil)

	if target == nil {
		return nil
	}
	p, err := a.create(kind, target, anchor, name)
	if err != nil {
		a.cfg.Logger.Debug("panel: attach failed", "kind", kind, "error", err)
		return nil
	}
	a.panels[kind] = p
	a.cfg.Logger.Info("panel: attached", "kind", kind, "anchor", name, "id", p.ID)
	return p
}

// EnsureAll ensures every kind and returns the live panels.
func (a *Anchor) EnsureAll(hc HostContext) []*Panel {
	var out []*Panel
	for _, k := range Kinds {
		if p := a.EnsureAttached(k, hc); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Teardown removes the panel of kind.
func (a *Anchor) Teardown(kind Kind) {
	p := a.panels[kind]
	if p == nil {
		return
	}
	delete(a.panels, kind)
	if p.Root != nil {
		p.Root.Remove()
	}
}

// TeardownAll removes every tracked panel and any marked stray in doc
// (which may be nil).
func (a *Anchor) TeardownAll(doc hostdom.Document) int {
	n := 0
	for _, k := range Kinds {
		if a.panels[k] != nil {
			a.Teardown(k)
			n++
		}
		if doc != nil {
			n += a.removeStrays(k, doc, nil)
		}
	}
	return n
}

func (a *Anchor) removeStrays(kind Kind, doc hostdom.Document, keep hostdom.Element) int {
	n := 0
	for _, el := range doc.QueryAll(`[` + PanelAttr + `="` + string(kind) + `"]`) {
		if keep != nil && el.Same(keep) {
			continue
		}
		el.Remove()
		n++
	}
	return n
}

func (a *Anchor) create(kind Kind, target, anchor hostdom.Element, name string) (*Panel, error) {
	p := &Panel{Kind: kind, ID: a.cfg.IDGen(), Anchor: anchor, AnchorName: name, Open: true, sanitizer: a.cfg.Sanitizer}
	markup, err := renderShell(p)
	if err != nil {
		return nil, err
	}
	root, err := target.InsertAdjacentHTML(hostdom.AfterEnd, markup)
	if err != nil {
		return nil, err
	}
	p.Root = root
	return p, nil
}
