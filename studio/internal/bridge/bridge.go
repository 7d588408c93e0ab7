// Package bridge reads and writes host fields so that the host framework
// sees programmatic writes as typing. It also carries the populating
// window that keeps a write from re-triggering suggestions on itself.
package bridge

import (
	"errors"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
	"github.com/hazyhaar/tubemaster/studio/internal/locator"
)

var (
	// ErrDetached is returned when the field left the document.
	ErrDetached = errors.New("bridge: field detached")
	// ErrNotWritable is returned when the element has neither a value
	// property nor editable content.
	ErrNotWritable = errors.New("bridge: field not writable")
)

// Config configures a Bridge.
type Config struct {
	// Window is how long input notifications are ignored after a write.
	Window time.Duration
	// Settle is the delay before the closing focus/blur/focus cycle.
	Settle time.Duration
	// Schedule runs fn after d on the goroutine that owns the DOM.
	Schedule func(d time.Duration, fn func())
	Now      func() time.Time
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.Window <= 0 {
		c.Window = time.Second
	}
	if c.Settle <= 0 {
		c.Settle = 100 * time.Millisecond
	}
	if c.Schedule == nil {
		c.Schedule = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Bridge is bound to one document and driven from the page goroutine.
type Bridge struct {
	doc   hostdom.Document
	cfg   Config
	md    *converter.Converter
	until time.Time
	last  string
}

// New returns a Bridge over doc.
func New(doc hostdom.Document, cfg Config) *Bridge {
	cfg.defaults()
	return &Bridge{
		doc: doc,
		cfg: cfg,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Populating reports whether a write's window is still open.
func (b *Bridge) Populating() bool { return b.cfg.Now().Before(b.until) }

// LastWritten returns the text of the last write.
func (b *Bridge) LastWritten() string { return b.last }

// Reset closes the window and forgets the last write.
func (b *Bridge) Reset() {
	b.until = time.Time{}
	b.last = ""
}

// Read returns the field's current text.
func (b *Bridge) Read(f *locator.Field) (string, error) {
	if !f.Live(b.doc) {
		return "", ErrDetached
	}
	if v, ok := f.El.Value(); ok {
		return v, nil
	}
	return f.El.Text(), nil
}

// ReadMarkdown returns an editable field's content as Markdown, keeping
// the line structure the host encodes as <br> and <div>.
func (b *Bridge) ReadMarkdown(f *locator.Field) (string, error) {
	if !f.Live(b.doc) {
		return "", ErrDetached
	}
	if v, ok := f.El.Value(); ok {
		return v, nil
	}
	md, err := b.md.ConvertString(f.El.InnerHTML())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}

// Write replaces the field's text and replays the events of typing it.
func (b *Bridge) Write(f *locator.Field, text string) error {
	if !f.Live(b.doc) {
		return ErrDetached
	}
	_, hasValue := f.El.Value()
	editable := f.El.ContentEditable()
	if !hasValue && !editable {
		return ErrNotWritable
	}

	b.open(text)
	f.El.Focus()
	if hasValue {
		if err := setBoth(f.El.SetValue, text); err != nil {
			return b.fail(f, err)
		}
	}
	if editable {
		if err := setBoth(f.El.SetText, text); err != nil {
			return b.fail(f, err)
		}
	}
	if err := b.dispatch(f, text); err != nil {
		return b.fail(f, err)
	}
	b.cycle(f)
	return nil
}

// Prepend inserts text above the field's current content, separated by a
// blank line.
func (b *Bridge) Prepend(f *locator.Field, text string) error {
	if !f.Live(b.doc) {
		return ErrDetached
	}
	if v, ok := f.El.Value(); ok {
		merged := text
		if v != "" {
			merged = text + "\n\n" + v
		}
		b.open(merged)
		f.El.Focus()
		if err := f.El.SetValue(merged); err != nil {
			return b.fail(f, err)
		}
	} else if f.El.ContentEditable() {
		existing := f.El.InnerHTML()
		markup := strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")
		if strings.TrimSpace(existing) != "" && existing != "<br>" {
			markup += "<br><br>" + existing
		}
		b.open(text)
		f.El.Focus()
		if err := f.El.SetInnerHTML(markup); err != nil {
			return b.fail(f, err)
		}
	} else {
		return ErrNotWritable
	}
	if err := b.dispatch(f, text); err != nil {
		return b.fail(f, err)
	}
	b.cycle(f)
	return nil
}

func (b *Bridge) open(text string) {
	b.until = b.cfg.Now().Add(b.cfg.Window)
	b.last = text
}

func (b *Bridge) fail(f *locator.Field, err error) error {
	if !f.El.Connected() || errors.Is(err, hostdom.ErrDetached) {
		return ErrDetached
	}
	return err
}

func setBoth(set func(string) error, text string) error {
	if err := set(""); err != nil {
		return err
	}
	return set(text)
}

// writeEvents is the sequence the host's listeners expect from typing.
var writeEvents = []hostdom.Event{
	{Type: "input", Kind: "Event"},
	{Type: "change", Kind: "Event"},
	{Type: "keyup", Kind: "KeyboardEvent"},
	{Type: "keydown", Kind: "KeyboardEvent"},
	{Type: "paste", Kind: "Event"},
	{Type: "blur", Kind: "FocusEvent"},
	{Type: "focus", Kind: "FocusEvent"},
}

func (b *Bridge) dispatch(f *locator.Field, text string) error {
	for _, ev := range writeEvents {
		if err := f.El.Dispatch(ev); err != nil {
			return err
		}
	}
	return f.El.Dispatch(hostdom.Event{Type: "input", Kind: "InputEvent", InputType: "insertText", Data: text})
}

func (b *Bridge) cycle(f *locator.Field) {
	el, doc := f.El, b.doc
	b.cfg.Schedule(b.cfg.Settle, func() {
		if !hostdom.Live(doc, el) {
			return
		}
		el.Focus()
		el.Blur()
		el.Focus()
	})
}
