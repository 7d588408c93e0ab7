package locator

import (
	"errors"
	"testing"

	"github.com/hazyhaar/tubemaster/studio/internal/hostdom/memdom"
)

const studioEditor = `<body>
<ytcp-dialog>
  <div id="title-wrapper">
    <div id="title-textarea">
      <div id="textbox" class="title-box" contenteditable="true" aria-label="Add a title that describes your video"></div>
    </div>
  </div>
  <div id="description-container">
    <div id="textbox" class="desc-box" contenteditable="true" aria-label="Tell viewers about your video"></div>
  </div>
</ytcp-dialog>
</body>`

func idOf(t *testing.T, f *Field) string {
	t.Helper()
	c, _ := f.El.Attr("class")
	return c
}

func TestExclusivity(t *testing.T) {
	// Both orders: the description field first, then the title field first.
	docs := []string{
		`<body>
			<input id="d" aria-label="Video title and description">
			<input id="t" aria-label="Title">
		</body>`,
		`<body>
			<input id="t" aria-label="Title">
			<input id="d" aria-label="Video title and description">
		</body>`,
	}
	l := New(Config{})
	for i, src := range docs {
		doc := memdom.MustParse(src)
		tf, err := l.Find(doc, Title)
		if err != nil {
			t.Fatalf("doc %d: title: %v", i, err)
		}
		if id, _ := tf.El.Attr("id"); id != "t" {
			t.Fatalf("doc %d: title: got #%s, want #t", i, id)
		}
		df, err := l.Find(doc, Description)
		if err != nil {
			t.Fatalf("doc %d: description: %v", i, err)
		}
		if id, _ := df.El.Attr("id"); id != "d" {
			t.Fatalf("doc %d: description: got #%s, want #d", i, id)
		}
	}
}

func TestExclusivityByContainer(t *testing.T) {
	doc := memdom.MustParse(`<body>
		<div id="description-container"><textarea name="text"></textarea></div>
	</body>`)
	l := New(Config{})
	if _, err := l.Locate(Title, doc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("title inside description container: got %v, want ErrNotFound", err)
	}
	if _, err := l.Locate(Description, doc); err != nil {
		t.Fatalf("description: %v", err)
	}
}

func TestStudioEditor(t *testing.T) {
	doc := memdom.MustParse(studioEditor)
	l := New(Config{})

	tf, err := l.Find(doc, Title)
	if err != nil {
		t.Fatal(err)
	}
	if got := idOf(t, tf); got != "title-box" {
		t.Fatalf("title: got %q", got)
	}
	if tf.Strategy != "keyword" {
		t.Fatalf("title strategy: got %q, want keyword", tf.Strategy)
	}
	df, err := l.Find(doc, Description)
	if err != nil {
		t.Fatal(err)
	}
	if got := idOf(t, df); got != "desc-box" {
		t.Fatalf("description: got %q", got)
	}
}

func TestStructuralFallback(t *testing.T) {
	doc := memdom.MustParse(`<body>
		<div id="title-textarea"><div contenteditable="true"></div></div>
	</body>`)
	f, err := New(Config{}).Find(doc, Title)
	if err != nil {
		t.Fatal(err)
	}
	if f.Strategy != "structural" {
		t.Fatalf("strategy: got %q, want structural", f.Strategy)
	}
}

func TestStructuralTextareaHeight(t *testing.T) {
	doc := memdom.MustParse(`<body>
		<div id="title-textarea"><textarea style="height:180px"></textarea></div>
	</body>`)
	l := New(Config{})
	if _, err := l.Find(doc, Title); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tall structural textarea in document scope: got %v, want ErrNotFound", err)
	}
}

func TestBroadOnlyInsideModal(t *testing.T) {
	loose := memdom.MustParse(`<body><input id="q" type="text"></body>`)
	l := New(Config{})
	if _, err := l.Find(loose, Title); !errors.Is(err, ErrNotFound) {
		t.Fatalf("broad title outside modal: got %v, want ErrNotFound", err)
	}

	modal := memdom.MustParse(`<body><div role="dialog"><input id="q" type="text"></div></body>`)
	f, err := l.Find(modal, Title)
	if err != nil {
		t.Fatal(err)
	}
	if f.Strategy != "broad" {
		t.Fatalf("strategy: got %q, want broad", f.Strategy)
	}
}

func TestBroadRanking(t *testing.T) {
	doc := memdom.MustParse(`<body><div role="dialog">
		<textarea id="tall" style="height:200px"></textarea>
		<input id="short" type="text" style="height:24px">
	</div></body>`)
	l := New(Config{})
	tf, err := l.Find(doc, Title)
	if err != nil {
		t.Fatal(err)
	}
	if id, _ := tf.El.Attr("id"); id != "short" {
		t.Fatalf("title broad: got #%s, want #short", id)
	}
	df, err := l.Find(doc, Description)
	if err != nil {
		t.Fatal(err)
	}
	if id, _ := df.El.Attr("id"); id != "tall" {
		t.Fatalf("description broad: got #%s, want #tall", id)
	}
}

func TestModalScope(t *testing.T) {
	doc := memdom.MustParse(`<body>
		<input id="page" aria-label="Search title">
		<div role="dialog" style="display:none"><input id="hidden" aria-label="Title"></div>
	</body>`)

	strict := New(Config{TitleScope: ScopeModal})
	if _, err := strict.Find(doc, Title); !errors.Is(err, ErrNotFound) {
		t.Fatalf("modal scope without a visible modal: got %v, want ErrNotFound", err)
	}
	loose := New(Config{})
	f, err := loose.Find(doc, Title)
	if err != nil {
		t.Fatal(err)
	}
	if id, _ := f.El.Attr("id"); id != "page" {
		t.Fatalf("document scope: got #%s, want #page", id)
	}
}

func TestActiveModalIsLastVisible(t *testing.T) {
	doc := memdom.MustParse(`<body>
		<ytcp-dialog id="a"></ytcp-dialog>
		<div id="b" role="dialog"></div>
		<div id="c" aria-modal="true" hidden></div>
	</body>`)
	m := ActiveModal(doc)
	if m == nil {
		t.Fatal("no modal")
	}
	if id, _ := m.Attr("id"); id != "b" {
		t.Fatalf("active modal: got #%s, want #b", id)
	}
}

func TestSkipsUnusable(t *testing.T) {
	doc := memdom.MustParse(`<body>
		<input type="checkbox" aria-label="Title">
		<input aria-label="Title" disabled>
		<input aria-label="Title" readonly>
		<input id="ok" aria-label="Title">
	</body>`)
	f, err := New(Config{}).Find(doc, Title)
	if err != nil {
		t.Fatal(err)
	}
	if id, _ := f.El.Attr("id"); id != "ok" {
		t.Fatalf("got #%s, want #ok", id)
	}
}

func TestMark(t *testing.T) {
	doc := memdom.MustParse(`<body><input aria-label="Title"></body>`)
	l := New(Config{})
	f, err := l.Find(doc, Title)
	if err != nil {
		t.Fatal(err)
	}
	if !Mark(f) {
		t.Fatal("first Mark must bind")
	}
	if Mark(f) {
		t.Fatal("second Mark must report already bound")
	}
	again, _ := l.Find(doc, Title)
	if Mark(again) {
		t.Fatal("relocated element must stay bound")
	}
}

func TestDetachedField(t *testing.T) {
	doc := memdom.MustParse(`<body><div id="w"><input aria-label="Title"></div></body>`)
	l := New(Config{})
	f, err := l.Find(doc, Title)
	if err != nil {
		t.Fatal(err)
	}
	doc.Find("#w").Remove()
	if f.Live(doc) {
		t.Fatal("detached field reported live")
	}
	if _, err := l.Find(doc, Title); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after removal: got %v, want ErrNotFound", err)
	}
}

const panelsOnly = `<body>
<ytcp-dialog>
  <div id="description-container">
    <ytcp-form-input-container></ytcp-form-input-container>
    <div class="ttg-panel" data-ttg-panel="description-generator">
      <input class="ttg-keywords-input" data-ttg-input="keywords" type="text" placeholder="Keywords">
    </div>
  </div>
  <div class="ttg-panel" data-ttg-panel="thumbnail-builder">
    <textarea class="ttg-thumbnail-description" data-ttg-input="thumbnail-description"></textarea>
  </div>
</ytcp-dialog>
</body>`

func TestIgnoresOwnPanels(t *testing.T) {
	doc := memdom.MustParse(panelsOnly)
	l := New(Config{})

	for _, kind := range []Kind{Title, Description} {
		f, err := l.Find(doc, kind)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if f != nil {
			t.Fatalf("%s: located %q via %s, want ErrNotFound", kind, idOf(t, f), f.Strategy)
		}
		t.Fatalf("%s: got %v, want ErrNotFound", kind, err)
	}

	input := doc.Find(".ttg-keywords-input")
	if got := Classify(l.cfg.Profiles, input); got != "" {
		t.Fatalf("Classify(panel input): got %q, want empty", got)
	}
}

func TestHostFieldBesidePanel(t *testing.T) {
	doc := memdom.MustParse(`<body>
<ytcp-dialog>
  <div id="description-container">
    <div class="ttg-panel" data-ttg-panel="description-generator">
      <input class="ttg-keywords-input" data-ttg-input="keywords" type="text">
    </div>
    <ytcp-form-input-container>
      <div id="textbox" class="desc-box" contenteditable="true" aria-label="Tell viewers about your video"></div>
    </ytcp-form-input-container>
  </div>
</ytcp-dialog>
</body>`)
	f, err := New(Config{}).Find(doc, Description)
	if err != nil {
		t.Fatalf("description: %v", err)
	}
	if got := idOf(t, f); got != "desc-box" {
		t.Fatalf("description: got %q, want %q", got, "desc-box")
	}
}
