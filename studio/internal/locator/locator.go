// Package locator finds the studio's title and description fields in a page
// it does not control. Each kind is searched with the same ranked chain of
// strategies (keyword, structural, broad), parameterized by a Profile, and
// the first strategy with a usable candidate wins.
package locator

import (
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
)

// Kind is a field kind.
type Kind string

const (
	Title       Kind = "title"
	Description Kind = "description"
)

// ErrNotFound is returned when no strategy yields a usable field. Callers
// retry on the next trigger.
var ErrNotFound = errors.New("locator: field not found")

// BoundAttr marks elements whose listeners are already attached.
const BoundAttr = "data-ttg-bound"

// PanelAttr marks the root of every injected panel. Nothing under it is a
// host field.
const PanelAttr = "data-ttg-panel"

// Scope selects where a title is searched when no modal is open.
type Scope string

const (
	// ScopeModal only ever searches inside the active modal.
	ScopeModal Scope = "modal"
	// ScopeDocument searches the modal first, then the whole document with
	// the broad strategy disabled.
	ScopeDocument Scope = "document"
)

// Field is a located host field. The element may detach at any time.
type Field struct {
	Kind     Kind
	El       hostdom.Element
	Strategy string
}

// Live reports whether the field is still in doc.
func (f *Field) Live(doc hostdom.Document) bool {
	return f != nil && hostdom.Live(doc, f.El)
}

// Config configures a Locator.
type Config struct {
	TitleScope Scope
	// MaxStructuralTextareaHeight bounds textareas accepted by the
	// structural strategy. Taller ones are description-like.
	MaxStructuralTextareaHeight float64
	Profiles                    map[Kind]Profile
	Logger                      *slog.Logger
}

func (c *Config) defaults() {
	if c.TitleScope == "" {
		c.TitleScope = ScopeDocument
	}
	if c.MaxStructuralTextareaHeight <= 0 {
		c.MaxStructuralTextareaHeight = 100
	}
	if c.Profiles == nil {
		c.Profiles = DefaultProfiles()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Locator runs the strategy chain.
type Locator struct {
	cfg   Config
	chain []Strategy
}

// New returns a Locator.
func New(cfg Config) *Locator {
	cfg.defaults()
	return &Locator{cfg: cfg, chain: DefaultChain(cfg.MaxStructuralTextareaHeight)}
}

// TitleScope returns the configured title scope.
func (l *Locator) TitleScope() Scope { return l.cfg.TitleScope }

// Find applies the scope policy: the active modal first, then the document.
// With ScopeModal a title is never searched outside a modal; in the document
// a title is searched without the broad strategy.
func (l *Locator) Find(doc hostdom.Document, kind Kind) (*Field, error) {
	if modal := ActiveModal(doc); modal != nil {
		if f, err := l.Locate(kind, modal); err == nil {
			return f, nil
		}
	}
	if kind == Title && l.cfg.TitleScope == ScopeModal {
		return nil, ErrNotFound
	}
	return l.locate(kind, doc, kind == Title)
}

// Locate searches root with the full chain for kind.
func (l *Locator) Locate(kind Kind, root hostdom.Querier) (*Field, error) {
	return l.locate(kind, root, false)
}

func (l *Locator) locate(kind Kind, root hostdom.Querier, tightened bool) (*Field, error) {
	prof, ok := l.cfg.Profiles[kind]
	if !ok || root == nil {
		return nil, ErrNotFound
	}
	for _, s := range l.chain {
		if tightened && s.Broad {
			continue
		}
		var kept []hostdom.Element
		for _, el := range s.Candidates(root, prof) {
			if inPanel(el) || !hostdom.Usable(el) || excluded(l.cfg.Profiles, kind, el) {
				continue
			}
			if s.Accept != nil && !s.Accept(el, prof) {
				continue
			}
			kept = append(kept, el)
		}
		if len(kept) == 0 {
			continue
		}
		best := kept[0]
		if s.Score != nil {
			sort.SliceStable(kept, func(i, j int) bool { return s.Score(kept[i], prof) > s.Score(kept[j], prof) })
			best = kept[0]
		}
		l.cfg.Logger.Debug("locator: field located", "kind", kind, "strategy", s.Name)
		return &Field{Kind: kind, El: best, Strategy: s.Name}, nil
	}
	return nil, ErrNotFound
}

// Mark tags the field as bound. It returns false when the element already
// carries the mark, so listeners are attached once per element.
func Mark(f *Field) bool {
	if f == nil || f.El == nil {
		return false
	}
	if v, ok := f.El.Attr(BoundAttr); ok && v == string(f.Kind) {
		return false
	}
	return f.El.SetAttr(BoundAttr, string(f.Kind)) == nil
}

// ModalSelectors are the dialog signatures of the studio.
var ModalSelectors = []string{
	"ytcp-dialog",
	`[role="dialog"]`,
	".ytcp-video-metadata-editor",
	".ytcp-uploads-dialog",
	`[aria-modal="true"]`,
}

// ActiveModal returns the last visible modal in document order, or nil.
func ActiveModal(doc hostdom.Document) hostdom.Element {
	var last hostdom.Element
	for _, el := range doc.QueryAll(strings.Join(ModalSelectors, ", ")) {
		if el.Connected() && !el.Hidden() && !el.Rect().Empty() {
			last = el
		}
	}
	return last
}

// Classify returns the kind an element is labeled or contained as, or "".
// Description evidence takes precedence over title evidence.
func Classify(profiles map[Kind]Profile, el hostdom.Element) Kind {
	if el == nil || inPanel(el) {
		return ""
	}
	if d, ok := profiles[Description]; ok && d.claims(el) {
		return Description
	}
	if t, ok := profiles[Title]; ok && t.claims(el) {
		return Title
	}
	return ""
}

func inPanel(el hostdom.Element) bool {
	return el.Closest("["+PanelAttr+"]") != nil
}

func excluded(profiles map[Kind]Profile, kind Kind, el hostdom.Element) bool {
	c := Classify(profiles, el)
	return c != "" && c != kind
}
