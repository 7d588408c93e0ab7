package memdom

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
)

// Element is a memdom handle. The same node always yields the same handle.
type Element struct {
	doc *Document
	n   *html.Node
}

var _ hostdom.Element = (*Element)(nil)

func (e *Element) TagName() string { return e.n.Data }

func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e *Element) SetAttr(name, value string) error {
	for i, a := range e.n.Attr {
		if a.Key == name {
			e.n.Attr[i].Val = value
			return nil
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
	return nil
}

func (e *Element) RemoveAttr(name string) error {
	out := e.n.Attr[:0]
	for _, a := range e.n.Attr {
		if a.Key != name {
			out = append(out, a)
		}
	}
	e.n.Attr = out
	return nil
}

func (e *Element) Connected() bool { return connected(e.doc.root, e.n) }

func (e *Element) Rect() hostdom.Rect {
	if !e.Connected() || e.Hidden() {
		return hostdom.Rect{}
	}
	st := style(e.n)
	return hostdom.Rect{Width: px(st["width"], 200), Height: px(st["height"], 30)}
}

func (e *Element) Hidden() bool {
	visibility := ""
	for p := e.n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		st := style(p)
		if st["display"] == "none" || hasAttr(p, "hidden") {
			return true
		}
		if visibility == "" {
			visibility = st["visibility"]
		}
	}
	return visibility == "hidden"
}

func (e *Element) Disabled() bool {
	return hasAttr(e.n, "disabled") || hasAttr(e.n, "readonly")
}

func (e *Element) ContentEditable() bool {
	for p := e.n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if v, ok := e.doc.wrap(p).Attr("contenteditable"); ok {
			v = strings.ToLower(v)
			return v == "" || v == "true" || v == "plaintext-only"
		}
	}
	return false
}

func (e *Element) Text() string { return textOf(e.n) }

func (e *Element) hasValue() bool {
	switch e.n.Data {
	case "input", "textarea", "select":
		return true
	}
	return false
}

func (e *Element) Value() (string, bool) {
	if !e.hasValue() {
		return "", false
	}
	if v, ok := e.doc.values[e.n]; ok {
		return v, true
	}
	if e.n.Data == "textarea" {
		return textOf(e.n), true
	}
	return attr(e.n, "value"), true
}

func (e *Element) SetValue(v string) error {
	if !e.Connected() {
		return hostdom.ErrDetached
	}
	if !e.hasValue() {
		return fmt.Errorf("memdom: <%s> has no value property", e.n.Data)
	}
	e.doc.values[e.n] = v
	return nil
}

func (e *Element) SetText(s string) error {
	if !e.Connected() {
		return hostdom.ErrDetached
	}
	e.clear()
	if s != "" {
		e.n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	}
	return nil
}

func (e *Element) clear() {
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
}

func (e *Element) InnerHTML() string {
	var buf bytes.Buffer
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

func (e *Element) SetInnerHTML(src string) error {
	if !e.Connected() {
		return hostdom.ErrDetached
	}
	nodes, err := html.ParseFragment(strings.NewReader(src), e.n)
	if err != nil {
		return fmt.Errorf("memdom: parse fragment: %w", err)
	}
	e.clear()
	for _, n := range nodes {
		e.n.AppendChild(n)
	}
	return nil
}

func (e *Element) Dispatch(ev hostdom.Event) error {
	if !e.Connected() {
		return hostdom.ErrDetached
	}
	e.doc.fired = append(e.doc.fired, Fired{Target: e, Event: ev})
	if e.doc.OnEvent != nil {
		e.doc.OnEvent(e, ev)
	}
	return nil
}

func (e *Element) Focus() error {
	if !e.Connected() {
		return hostdom.ErrDetached
	}
	e.doc.active = e.n
	return nil
}

func (e *Element) Blur() error {
	if e.doc.active == e.n {
		e.doc.active = nil
	}
	return nil
}

func (e *Element) Closest(sel string) hostdom.Element {
	m := compile(sel)
	if m == nil {
		return nil
	}
	for p := e.n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if m.Match(p) {
			return e.doc.wrap(p)
		}
	}
	return nil
}

func (e *Element) QueryAll(sel string) []hostdom.Element {
	m := compile(sel)
	if m == nil {
		return nil
	}
	return e.doc.wrapAll(cascadia.QueryAll(e.n, m))
}

func (e *Element) Parent() hostdom.Element {
	if p := e.doc.wrap(e.n.Parent); p != nil {
		return p
	}
	return nil
}

func (e *Element) InsertAdjacentHTML(pos hostdom.Position, src string) (hostdom.Element, error) {
	if !e.Connected() {
		return nil, hostdom.ErrDetached
	}
	ctx := e.n
	if pos == hostdom.BeforeBegin || pos == hostdom.AfterEnd {
		ctx = e.n.Parent
		if ctx == nil || ctx.Type != html.ElementNode {
			return nil, fmt.Errorf("memdom: %s needs an element parent", pos)
		}
	}
	nodes, err := html.ParseFragment(strings.NewReader(src), ctx)
	if err != nil {
		return nil, fmt.Errorf("memdom: parse fragment: %w", err)
	}
	var root *html.Node
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			if root != nil {
				return nil, fmt.Errorf("memdom: markup has more than one root element")
			}
			root = n
		}
	}
	if root == nil {
		return nil, fmt.Errorf("memdom: markup has no root element")
	}

	switch pos {
	case hostdom.BeforeBegin:
		e.n.Parent.InsertBefore(root, e.n)
	case hostdom.AfterEnd:
		e.n.Parent.InsertBefore(root, e.n.NextSibling)
	case hostdom.AfterBegin:
		e.n.InsertBefore(root, e.n.FirstChild)
	case hostdom.BeforeEnd:
		e.n.AppendChild(root)
	default:
		return nil, fmt.Errorf("memdom: bad position %q", pos)
	}
	return e.doc.wrap(root), nil
}

func (e *Element) Remove() error {
	if e.n.Parent != nil {
		e.n.Parent.RemoveChild(e.n)
	}
	return nil
}

func (e *Element) Same(other hostdom.Element) bool {
	o, ok := other.(*Element)
	return ok && o != nil && o.n == e.n
}

// OuterHTML renders the element. Test helper.
func (e *Element) OuterHTML() string {
	var buf bytes.Buffer
	html.Render(&buf, e.n)
	return buf.String()
}
