// Package memdom is an in-memory hostdom over a golang.org/x/net/html tree.
// It backs the core's tests and offline replay of saved studio pages.
//
// Layout is faked: an element's rect comes from inline width/height styles
// (default 200x30), and hidden state from display:none, the hidden attribute
// and inherited visibility.
package memdom

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
)

// Fired is one dispatched event, in dispatch order.
type Fired struct {
	Target *Element
	Event  hostdom.Event
}

// Document is a parsed page. Not safe for concurrent use.
type Document struct {
	root    *html.Node
	handles map[*html.Node]*Element
	values  map[*html.Node]string
	active  *html.Node
	fired   []Fired

	// OnEvent, when set, is called after each dispatch. Tests use it to play
	// the in-page agent's listeners.
	OnEvent func(el *Element, ev hostdom.Event)
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("memdom: parse: %w", err)
	}
	return &Document{
		root:    root,
		handles: make(map[*html.Node]*Element),
		values:  make(map[*html.Node]string),
	}, nil
}

// MustParse parses src and panics on error. For tests.
func MustParse(src string) *Document {
	d, err := Parse(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Document) wrap(n *html.Node) *Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	if e, ok := d.handles[n]; ok {
		return e
	}
	e := &Element{doc: d, n: n}
	d.handles[n] = e
	return e
}

func (d *Document) wrapAll(ns []*html.Node) []hostdom.Element {
	out := make([]hostdom.Element, 0, len(ns))
	for _, n := range ns {
		if e := d.wrap(n); e != nil {
			out = append(out, e)
		}
	}
	return out
}

// QueryAll returns elements matching sel in document order. An invalid
// selector matches nothing.
func (d *Document) QueryAll(sel string) []hostdom.Element {
	m := compile(sel)
	if m == nil {
		return nil
	}
	return d.wrapAll(cascadia.QueryAll(d.root, m))
}

// Body returns the body element.
func (d *Document) Body() hostdom.Element {
	if e := d.find("body"); e != nil {
		return e
	}
	return nil
}

// Contains reports whether el is a connected element of d.
func (d *Document) Contains(el hostdom.Element) bool {
	e, ok := el.(*Element)
	return ok && e != nil && e.doc == d && e.Connected()
}

// MatchText implements hostdom.Document.
func (d *Document) MatchText(needles ...string) []hostdom.Element {
	var out []*html.Node
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		childMatched := false
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				childMatched = true
			}
		}
		if n.Type != html.ElementNode {
			return childMatched
		}
		if childMatched {
			return true
		}
		text := strings.ToLower(textOf(n))
		label := strings.ToLower(attr(n, "aria-label"))
		if containsAll(text, needles) || containsAll(label, needles) {
			out = append(out, n)
			return true
		}
		return false
	}
	walk(d.root)
	return d.wrapAll(out)
}

// Find returns the first element matching sel, typed for tests.
func (d *Document) Find(sel string) *Element {
	return d.find(sel)
}

func (d *Document) find(sel string) *Element {
	m := compile(sel)
	if m == nil {
		return nil
	}
	return d.wrap(cascadia.Query(d.root, m))
}

// Events returns every dispatched event so far.
func (d *Document) Events() []Fired { return d.fired }

// ResetEvents clears the event log.
func (d *Document) ResetEvents() { d.fired = nil }

// Active returns the focused element, or nil.
func (d *Document) Active() *Element {
	if d.active == nil || !connected(d.root, d.active) {
		return nil
	}
	return d.wrap(d.active)
}

// HTML renders the whole document.
func (d *Document) HTML() string {
	var buf bytes.Buffer
	html.Render(&buf, d.root)
	return buf.String()
}

// ReplaceBody swaps the body content, detaching every old handle below it.
// Simulates the studio SPA rebuilding its view.
func (d *Document) ReplaceBody(src string) error {
	body := d.find("body")
	if body == nil {
		return fmt.Errorf("memdom: no body")
	}
	return body.SetInnerHTML(src)
}

var (
	selMu    sync.Mutex
	selCache = map[string]cascadia.Selector{}
)

func compile(sel string) cascadia.Selector {
	selMu.Lock()
	defer selMu.Unlock()
	if m, ok := selCache[sel]; ok {
		return m
	}
	m, err := cascadia.Compile(sel)
	if err != nil {
		m = nil
	}
	selCache[sel] = m
	return m
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func containsAll(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, nd := range needles {
		if !strings.Contains(s, strings.ToLower(nd)) {
			return false
		}
	}
	return true
}

func connected(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// style returns the inline style declarations, lower-cased keys.
func style(n *html.Node) map[string]string {
	out := map[string]string{}
	for _, decl := range strings.Split(attr(n, "style"), ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func px(v string, def float64) float64 {
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	if err != nil {
		return def
	}
	return f
}
