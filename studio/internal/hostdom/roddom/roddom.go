// Package roddom implements hostdom over a live rod page. Every method is a
// single Runtime.callFunctionOn round-trip; any CDP error (stale object id,
// navigated context, closed target) is read as "absent".
package roddom

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
)

// Document wraps the page's current document.
type Document struct {
	page *rod.Page
}

// New returns a hostdom.Document over page.
func New(page *rod.Page) *Document {
	return &Document{page: page}
}

func (d *Document) wrapAll(els rod.Elements, err error) []hostdom.Element {
	if err != nil {
		return nil
	}
	out := make([]hostdom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &Element{el: el})
	}
	return out
}

func (d *Document) QueryAll(sel string) []hostdom.Element {
	return d.wrapAll(d.page.ElementsByJS(rod.Eval(`(s) => {
		try { return Array.from(document.querySelectorAll(s)) } catch (e) { return [] }
	}`, sel)))
}

func (d *Document) Body() hostdom.Element {
	els := d.wrapAll(d.page.ElementsByJS(rod.Eval(`() => document.body ? [document.body] : []`)))
	if len(els) == 0 {
		return nil
	}
	return els[0]
}

func (d *Document) Contains(el hostdom.Element) bool {
	e, ok := el.(*Element)
	if !ok || e == nil {
		return false
	}
	return e.boolean(`() => !!document.body && document.body.contains(this)`)
}

func (d *Document) MatchText(needles ...string) []hostdom.Element {
	return d.wrapAll(d.page.ElementsByJS(rod.Eval(matchTextJS, needles)))
}

const matchTextJS = `(needles) => {
	const hit = (el) => {
		const t = (el.textContent || '').toLowerCase();
		const l = (el.getAttribute('aria-label') || '').toLowerCase();
		return needles.every(n => t.includes(n)) || (l !== '' && needles.every(n => l.includes(n)));
	};
	const out = [];
	const walk = (el) => {
		let child = false;
		for (const c of el.children) { if (walk(c)) child = true; }
		if (child) return true;
		if (hit(el)) { out.push(el); return true; }
		return false;
	};
	if (document.body) walk(document.body);
	return out;
}`

// Element is a rod element handle.
type Element struct {
	el *rod.Element
}

var _ hostdom.Element = (*Element)(nil)

// Rod exposes the underlying element.
func (e *Element) Rod() *rod.Element { return e.el }

func (e *Element) eval(js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	return e.el.Eval(js, args...)
}

func (e *Element) str(js string, args ...any) string {
	res, err := e.eval(js, args...)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (e *Element) boolean(js string, args ...any) bool {
	res, err := e.eval(js, args...)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// write runs a mutating call. Detached targets report hostdom.ErrDetached.
func (e *Element) write(js string, args ...any) error {
	if !e.Connected() {
		return hostdom.ErrDetached
	}
	if _, err := e.eval(js, args...); err != nil {
		return fmt.Errorf("roddom: %w", err)
	}
	return nil
}

func (e *Element) one(js string, args ...any) hostdom.Element {
	el, err := e.el.ElementByJS(rod.Eval(js, args...))
	if err != nil || el == nil {
		return nil
	}
	return &Element{el: el}
}

func (e *Element) TagName() string {
	return e.str(`() => this.tagName.toLowerCase()`)
}

func (e *Element) Attr(name string) (string, bool) {
	res, err := e.eval(`(n) => this.getAttribute(n)`, name)
	if err != nil || res.Value.Nil() {
		return "", false
	}
	return res.Value.Str(), true
}

func (e *Element) SetAttr(name, value string) error {
	return e.write(`(n, v) => this.setAttribute(n, v)`, name, value)
}

func (e *Element) RemoveAttr(name string) error {
	return e.write(`(n) => this.removeAttribute(n)`, name)
}

func (e *Element) Connected() bool {
	return e.boolean(`() => this.isConnected`)
}

func (e *Element) Rect() hostdom.Rect {
	res, err := e.eval(`() => {
		const r = this.getBoundingClientRect();
		return {x: r.x, y: r.y, w: r.width, h: r.height};
	}`)
	if err != nil {
		return hostdom.Rect{}
	}
	v := res.Value
	return hostdom.Rect{X: v.Get("x").Num(), Y: v.Get("y").Num(), Width: v.Get("w").Num(), Height: v.Get("h").Num()}
}

func (e *Element) Hidden() bool {
	res, err := e.eval(`() => {
		const s = getComputedStyle(this);
		return s.display === 'none' || s.visibility === 'hidden';
	}`)
	if err != nil {
		return true
	}
	return res.Value.Bool()
}

func (e *Element) Disabled() bool {
	res, err := e.eval(`() => !!this.disabled || !!this.readOnly || this.getAttribute('aria-disabled') === 'true'`)
	if err != nil {
		return true
	}
	return res.Value.Bool()
}

func (e *Element) ContentEditable() bool {
	return e.boolean(`() => !!this.isContentEditable`)
}

func (e *Element) Text() string {
	return e.str(`() => this.textContent || ''`)
}

func (e *Element) Value() (string, bool) {
	res, err := e.eval(`() => ('value' in this && typeof this.value === 'string') ? {ok: true, v: this.value} : {ok: false}`)
	if err != nil || !res.Value.Get("ok").Bool() {
		return "", false
	}
	return res.Value.Get("v").Str(), true
}

func (e *Element) SetValue(v string) error {
	if !e.Connected() {
		return hostdom.ErrDetached
	}
	res, err := e.eval(`(v) => {
		if (!('value' in this)) return false;
		const proto = Object.getPrototypeOf(this);
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) desc.set.call(this, v); else this.value = v;
		return true;
	}`, v)
	if err != nil {
		return fmt.Errorf("roddom: set value: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("roddom: <%s> has no value property", e.TagName())
	}
	return nil
}

func (e *Element) SetText(s string) error {
	return e.write(`(s) => { this.textContent = s; if ('innerText' in this) this.innerText = s; }`, s)
}

func (e *Element) InnerHTML() string {
	return e.str(`() => this.innerHTML`)
}

func (e *Element) SetInnerHTML(html string) error {
	return e.write(`(h) => { this.innerHTML = h }`, html)
}

func (e *Element) Dispatch(ev hostdom.Event) error {
	return e.write(`(type, kind, inputType, data) => {
		const init = {bubbles: true, cancelable: true, composed: true};
		let ev;
		if (kind === 'InputEvent') {
			ev = new InputEvent(type, Object.assign(init, {inputType, data}));
		} else if (kind === 'KeyboardEvent') {
			ev = new KeyboardEvent(type, init);
		} else if (kind === 'FocusEvent') {
			ev = new FocusEvent(type, init);
		} else {
			ev = new Event(type, init);
		}
		this.dispatchEvent(ev);
	}`, ev.Type, ev.Kind, ev.InputType, ev.Data)
}

func (e *Element) Focus() error {
	return e.write(`() => this.focus()`)
}

func (e *Element) Blur() error {
	return e.write(`() => this.blur()`)
}

func (e *Element) Closest(sel string) hostdom.Element {
	return e.one(`(s) => { try { return this.closest(s) } catch (e) { return null } }`, sel)
}

func (e *Element) QueryAll(sel string) []hostdom.Element {
	els, err := e.el.Page().ElementsByJS(rod.Eval(`(s) => {
		try { return Array.from(this.querySelectorAll(s)) } catch (e) { return [] }
	}`, sel).This(e.el.Object))
	if err != nil {
		return nil
	}
	out := make([]hostdom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &Element{el: el})
	}
	return out
}

func (e *Element) Parent() hostdom.Element {
	return e.one(`() => this.parentElement`)
}

func (e *Element) InsertAdjacentHTML(pos hostdom.Position, html string) (hostdom.Element, error) {
	if !e.Connected() {
		return nil, hostdom.ErrDetached
	}
	el, err := e.el.ElementByJS(rod.Eval(`(pos, html) => {
		const t = document.createElement('template');
		t.innerHTML = html.trim();
		if (t.content.childElementCount !== 1) throw new Error('markup must have one root element');
		return this.insertAdjacentElement(pos, t.content.firstElementChild);
	}`, string(pos), html))
	if err != nil {
		return nil, fmt.Errorf("roddom: insert %s: %w", pos, err)
	}
	return &Element{el: el}, nil
}

func (e *Element) Remove() error {
	if _, err := e.eval(`() => this.remove()`); err != nil {
		return fmt.Errorf("roddom: remove: %w", err)
	}
	return nil
}

func (e *Element) Same(other hostdom.Element) bool {
	o, ok := other.(*Element)
	if !ok || o == nil {
		return false
	}
	return e.boolean(`(o) => this === o`, o.el.Object)
}
