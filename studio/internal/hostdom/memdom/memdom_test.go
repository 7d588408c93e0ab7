package memdom

import (
	"strings"
	"testing"

	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
)

func TestQueryAndClosest(t *testing.T) {
	doc := MustParse(`<body>
		<div id="outer" class="box wide">
			<span id="inner" aria-label="Title (required)">x</span>
		</div>
	</body>`)

	inner := doc.Find("#inner")
	if inner == nil {
		t.Fatal("#inner not found")
	}
	got := inner.Closest(".box")
	if got == nil || !got.Same(doc.Find("#outer")) {
		t.Fatal("closest .box: wrong element")
	}
	if inner.Closest(".nope") != nil {
		t.Fatal("closest .nope: expected nil")
	}
	if n := len(doc.QueryAll(`[aria-label*="Title"]`)); n != 1 {
		t.Fatalf("aria-label contains: got %d, want 1", n)
	}
	outer := doc.Find("#outer")
	if n := len(outer.QueryAll("div")); n != 0 {
		t.Fatalf("element QueryAll must exclude self: got %d", n)
	}
	if doc.QueryAll("[[bad") != nil {
		t.Fatal("invalid selector must match nothing")
	}
}

func TestValueProperty(t *testing.T) {
	doc := MustParse(`<body><input id="i" value="seed"><textarea id="t">body</textarea><div id="d"></div></body>`)

	in := doc.Find("#i")
	if v, ok := in.Value(); !ok || v != "seed" {
		t.Fatalf("input value: got %q %v", v, ok)
	}
	if err := in.SetValue("typed"); err != nil {
		t.Fatal(err)
	}
	if v, _ := in.Value(); v != "typed" {
		t.Fatalf("after SetValue: got %q", v)
	}
	if a, _ := in.Attr("value"); a != "seed" {
		t.Fatalf("attribute must not follow the property: got %q", a)
	}

	ta := doc.Find("#t")
	if v, _ := ta.Value(); v != "body" {
		t.Fatalf("textarea value: got %q", v)
	}
	if _, ok := doc.Find("#d").Value(); ok {
		t.Fatal("div has no value property")
	}
	if err := doc.Find("#d").SetValue("x"); err == nil {
		t.Fatal("SetValue on div: expected error")
	}
}

func TestInsertAdjacentHTML(t *testing.T) {
	doc := MustParse(`<body><div id="a"></div><div id="b"></div></body>`)
	a := doc.Find("#a")

	panel, err := a.InsertAdjacentHTML(hostdom.AfterEnd, `<section id="p"><button>ok</button></section>`)
	if err != nil {
		t.Fatal(err)
	}
	if id, _ := panel.Attr("id"); id != "p" {
		t.Fatalf("returned root: got id %q", id)
	}
	body := doc.Find("body").InnerHTML()
	if !strings.Contains(body, `<div id="a"></div><section id="p">`) {
		t.Fatalf("not inserted after #a: %s", body)
	}

	if _, err := a.InsertAdjacentHTML(hostdom.BeforeEnd, `<i></i><b></b>`); err == nil {
		t.Fatal("two roots: expected error")
	}
}

func TestDetachedWrites(t *testing.T) {
	doc := MustParse(`<body><div id="wrap"><input id="i"></div></body>`)
	in := doc.Find("#i")
	if err := doc.Find("#wrap").Remove(); err != nil {
		t.Fatal(err)
	}
	if in.Connected() {
		t.Fatal("descendant of removed node reported connected")
	}
	if err := in.SetValue("x"); err != hostdom.ErrDetached {
		t.Fatalf("SetValue detached: got %v", err)
	}
	if err := in.Dispatch(hostdom.Event{Type: "input"}); err != hostdom.ErrDetached {
		t.Fatalf("Dispatch detached: got %v", err)
	}
	if !in.Rect().Empty() {
		t.Fatal("detached rect must be empty")
	}
	if doc.Contains(in) {
		t.Fatal("document contains detached element")
	}
}

func TestEventsAndSink(t *testing.T) {
	doc := MustParse(`<body><input id="i"></body>`)
	var seen []string
	doc.OnEvent = func(el *Element, ev hostdom.Event) { seen = append(seen, ev.Type) }

	in := doc.Find("#i")
	in.Dispatch(hostdom.Event{Type: "input", Kind: "InputEvent", InputType: "insertText"})
	in.Dispatch(hostdom.Event{Type: "change", Kind: "Event"})

	if len(doc.Events()) != 2 || strings.Join(seen, ",") != "input,change" {
		t.Fatalf("events: got %v", seen)
	}
	if err := in.Focus(); err != nil {
		t.Fatal(err)
	}
	if doc.Active() != in {
		t.Fatal("focus not recorded")
	}
	in.Blur()
	if doc.Active() != nil {
		t.Fatal("blur not recorded")
	}
}

func TestMatchTextInnermost(t *testing.T) {
	doc := MustParse(`<body>
		<div id="card"><div id="head"><span id="lbl">Test &amp; Compare</span></div><p>other</p></div>
		<div id="split"><span>test</span><span>compare</span></div>
	</body>`)
	got := doc.MatchText("test", "compare")
	if len(got) != 2 {
		t.Fatalf("matches: got %d, want 2", len(got))
	}
	if id, _ := got[0].Attr("id"); id != "lbl" {
		t.Fatalf("first match: got %q, want lbl", id)
	}
	if id, _ := got[1].Attr("id"); id != "split" {
		t.Fatalf("second match: got %q, want split", id)
	}
}

func TestHiddenAndRect(t *testing.T) {
	doc := MustParse(`<body>
		<div id="h" hidden><span id="in"></span></div>
		<div style="visibility:hidden"><span id="vis" style="visibility:visible"></span></div>
		<div id="sized" style="width: 320px; height: 90px"></div>
	</body>`)
	if !doc.Find("#in").Hidden() {
		t.Fatal("child of [hidden] must be hidden")
	}
	if doc.Find("#vis").Hidden() {
		t.Fatal("visibility:visible overrides inherited hidden")
	}
	r := doc.Find("#sized").Rect()
	if r.Width != 320 || r.Height != 90 {
		t.Fatalf("rect: got %+v", r)
	}
}
