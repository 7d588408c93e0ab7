// Package hostdom is the view of the studio page the anchoring core works
// against. The page belongs to a third party and changes under us: every
// Element may be detached at any moment, and every method must then answer
// as "absent" (zero values, Connected false, errors on writes) rather than
// panic.
package hostdom

import (
	"errors"
	"strings"
)

// ErrDetached is returned by writes on an element no longer in the page.
var ErrDetached = errors.New("hostdom: element detached")

// Rect is a bounding client rect in CSS pixels.
type Rect struct {
	X, Y, Width, Height float64
}

// Empty reports a zero-area rect (not rendered).
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Event is dispatched on an element with bubbles and composed set.
type Event struct {
	Type string // "input", "change", "keyup", ...
	// Kind is the constructor: "Event", "InputEvent", "KeyboardEvent".
	Kind      string
	InputType string // InputEvent only
	Data      string // InputEvent only
}

// Position is an insertAdjacentHTML position.
type Position string

const (
	BeforeBegin Position = "beforebegin"
	AfterBegin  Position = "afterbegin"
	BeforeEnd   Position = "beforeend"
	AfterEnd    Position = "afterend"
)

// Element is a handle on a host page element.
type Element interface {
	// TagName is lower case.
	TagName() string
	Attr(name string) (string, bool)
	SetAttr(name, value string) error
	RemoveAttr(name string) error
	// Connected reports whether the element is still in a document.
	Connected() bool
	Rect() Rect
	// Hidden reports computed display:none or visibility:hidden.
	Hidden() bool
	// Disabled reports the disabled or readonly state.
	Disabled() bool
	// ContentEditable reports isContentEditable.
	ContentEditable() bool
	Text() string
	// Value returns the value property; ok is false for elements without one.
	Value() (v string, ok bool)
	SetValue(v string) error
	SetText(s string) error
	InnerHTML() string
	SetInnerHTML(html string) error
	Dispatch(ev Event) error
	Focus() error
	Blur() error
	// Closest returns the nearest inclusive ancestor matching sel, or nil.
	Closest(sel string) Element
	QueryAll(sel string) []Element
	// Parent returns the parent element, or nil.
	Parent() Element
	// InsertAdjacentHTML inserts markup with a single root element and
	// returns that element.
	InsertAdjacentHTML(pos Position, html string) (Element, error)
	Remove() error
	// Same reports whether both handles denote the same node.
	Same(other Element) bool
}

// Document is the host page document.
type Document interface {
	QueryAll(sel string) []Element
	Body() Element
	// Contains reports whether el is a connected node of this document.
	Contains(el Element) bool
	// MatchText returns the innermost elements whose lower-cased text or
	// aria-label contains every needle, in document order.
	MatchText(needles ...string) []Element
}

// Querier is satisfied by Document and Element.
type Querier interface {
	QueryAll(sel string) []Element
}

// Query returns the first match of sel, or nil.
func Query(q Querier, sel string) Element {
	if q == nil {
		return nil
	}
	all := q.QueryAll(sel)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// QueryFirst tries each selector in order and returns the first match.
func QueryFirst(q Querier, sels ...string) Element {
	for _, s := range sels {
		if el := Query(q, s); el != nil {
			return el
		}
	}
	return nil
}

// Live reports whether el is non-nil, connected and contained in doc.
func Live(doc Document, el Element) bool {
	return el != nil && el.Connected() && doc.Contains(el)
}

// Usable is the field validity predicate: rendered, visible, enabled and
// text-editable. Inputs of type file, hidden, checkbox and radio never are.
func Usable(el Element) bool {
	if el == nil || !el.Connected() {
		return false
	}
	if el.Rect().Empty() || el.Hidden() || el.Disabled() {
		return false
	}
	switch el.TagName() {
	case "textarea":
		return true
	case "input":
		t, _ := el.Attr("type")
		switch strings.ToLower(t) {
		case "file", "hidden", "checkbox", "radio":
			return false
		}
		return true
	}
	return el.ContentEditable()
}

// AttrLower returns the lower-cased attribute value, "" when absent.
func AttrLower(el Element, name string) string {
	v, _ := el.Attr(name)
	return strings.ToLower(v)
}
