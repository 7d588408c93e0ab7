package page

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/tubemaster/studio/internal/genclient"
	"github.com/hazyhaar/tubemaster/studio/internal/hostdom/memdom"
	"github.com/hazyhaar/tubemaster/studio/internal/panel"
	"github.com/hazyhaar/tubemaster/studio/mutation"
)

const editor = `<body>
<ytcp-dialog>
  <div id="title-textarea">
    <ytcp-social-suggestions-textbox>
      <div id="textbox" contenteditable="true" aria-label="Add a title that describes your video"></div>
      <div class="container-bottom style-scope ytcp-social-suggestions-textbox"></div>
    </ytcp-social-suggestions-textbox>
  </div>
  <div id="description-container">
    <ytcp-form-input-container>
      <div id="textbox" contenteditable="true" aria-label="Tell viewers about your video">old description</div>
    </ytcp-form-input-container>
  </div>
  <ytcp-video-thumbnail-editor></ytcp-video-thumbnail-editor>
</ytcp-dialog>
</body>`

type fakeAuth struct{ ok atomic.Bool }

func (a *fakeAuth) IsAuthenticated(context.Context) bool { return a.ok.Load() }

type fakeGen struct {
	mu          sync.Mutex
	titleCalls  []string
	descCalls   []genclient.DescriptionRequest
	titleErr    error
	thumbs      []genclient.Thumbnail
	thumbErr    error
	descErr     error
	description func(n int) string
}

func (g *fakeGen) Titles(_ context.Context, text string) ([]genclient.Suggestion, error) {
	g.mu.Lock()
	g.titleCalls = append(g.titleCalls, text)
	err := g.titleErr
	g.mu.Unlock()
	if err != nil {
		return genclient.FallbackTitles(text), err
	}
	return []genclient.Suggestion{
		{ID: "s1", Text: "Perfect " + text, Score: 97},
		{ID: "s2", Text: text + " in 10 minutes", Score: 90},
	}, nil
}

func (g *fakeGen) Thumbnails(context.Context, string) ([]genclient.Thumbnail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.thumbs, g.thumbErr
}

func (g *fakeGen) Description(_ context.Context, req genclient.DescriptionRequest, index int) (string, error) {
	g.mu.Lock()
	g.descCalls = append(g.descCalls, req)
	n := len(g.descCalls)
	err := g.descErr
	g.mu.Unlock()
	if err != nil {
		return genclient.FallbackDescription(req.Keywords, index), err
	}
	if g.description != nil {
		return g.description(n), nil
	}
	return "Variant " + string(rune('0'+n)) + " for " + strings.Join(req.Keywords, "+"), nil
}

func (g *fakeGen) titleCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.titleCalls)
}

type harness struct {
	t    *testing.T
	doc  *memdom.Document
	page *Page
	gen  *fakeGen
	auth *fakeAuth
	stop context.CancelFunc
}

func start(t *testing.T, body string) *harness {
	t.Helper()
	h := &harness{t: t, doc: memdom.MustParse(body), gen: &fakeGen{}, auth: &fakeAuth{}}
	h.auth.ok.Store(true)
	h.page = New(Deps{Doc: h.doc, Generator: h.gen, Auth: h.auth}, Config{
		URL:          "https://studio.youtube.com/video/abc/edit",
		Debounce:     20 * time.Millisecond,
		IndicatorTTL: 30 * time.Millisecond,
		LabelTTL:     30 * time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.stop = cancel
	go h.page.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.page.Done()
	})
	return h
}

// inspect reads the document on the page goroutine.
func (h *harness) inspect(fn func()) {
	h.t.Helper()
	if err := h.page.Do(context.Background(), "inspect", func() error { fn(); return nil }); err != nil {
		h.t.Fatalf("inspect: %v", err)
	}
}

func (h *harness) rescan() Status {
	h.t.Helper()
	st, err := h.page.Rescan(context.Background())
	if err != nil {
		h.t.Fatalf("Rescan: %v", err)
	}
	return st
}

func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		ok := false
		h.inspect(func() { ok = cond() })
		if ok {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (h *harness) titleText() (s string) {
	h.inspect(func() { s = h.doc.Find(`[aria-label^="Add a title"]`).Text() })
	return s
}

func TestRescanAttachesEverything(t *testing.T) {
	h := start(t, editor)
	st := h.rescan()
	if !st.TitleFound || !st.DescriptionFound {
		t.Fatalf("fields: %+v", st)
	}
	if len(st.Panels) != 3 {
		t.Fatalf("panels: got %v", st.Panels)
	}
	h.rescan()
	h.inspect(func() {
		for _, k := range panel.Kinds {
			if n := len(h.doc.QueryAll(`[data-ttg-panel="` + string(k) + `"]`)); n != 1 {
				t.Fatalf("%s: %d panels after two rescans", k, n)
			}
		}
	})
}

func TestAuthGatesPanels(t *testing.T) {
	h := start(t, editor)
	h.auth.ok.Store(false)
	if st := h.rescan(); len(st.Panels) != 0 {
		t.Fatalf("unauthenticated: got %v", st.Panels)
	}

	h.auth.ok.Store(true)
	h.page.HandleAuth("signedIn")
	h.waitFor("panels after sign in", func() bool { return len(h.page.status().Panels) == 3 })

	h.auth.ok.Store(false)
	h.page.HandleAuth("signedOut")
	h.waitFor("teardown after sign out", func() bool {
		return len(h.doc.QueryAll(`[data-ttg-panel]`)) == 0
	})
}

func TestTypingProducesSuggestions(t *testing.T) {
	h := start(t, editor)
	h.rescan()

	for _, v := range []string{"c", "coo", "cooking pasta"} {
		h.page.Deliver(&mutation.Message{Kind: mutation.KindInput, Input: &mutation.Input{Field: "title", Value: v}})
	}
	h.waitFor("suggestions", func() bool { return len(h.doc.QueryAll(".ttg-suggestion-text")) == 2 })
	if n := h.gen.titleCount(); n != 1 {
		t.Fatalf("title calls: got %d, want 1", n)
	}

	h.page.Deliver(&mutation.Message{Kind: mutation.KindAction, Action: &mutation.Action{
		Panel: string(panel.TitleSuggestions), Action: ActionSelectTitle, Arg: "s1",
	}})
	h.waitFor("title populated", func() bool {
		return h.doc.Find(`[aria-label^="Add a title"]`).Text() == "Perfect cooking pasta"
	})

	// The agent echoes the write back as input; it must not start a session.
	h.page.Deliver(&mutation.Message{Kind: mutation.KindInput, Input: &mutation.Input{Field: "title", Value: "Perfect cooking pasta"}})
	time.Sleep(80 * time.Millisecond)
	if n := h.gen.titleCount(); n != 1 {
		t.Fatalf("own write triggered a request: %d calls", n)
	}
}

func TestSuggestTitlesFallback(t *testing.T) {
	h := start(t, editor)
	h.gen.titleErr = errors.New("api down")
	h.rescan()

	items, err := h.page.SuggestTitles(context.Background(), "cooking pasta")
	if err == nil {
		t.Fatal("failure not reported")
	}
	if len(items) != 8 || items[0].Text != "cooking pasta - Complete Guide" {
		t.Fatalf("fallback: got %+v", items)
	}
	st, _ := h.page.Status(context.Background())
	if st.Session != "failed" || st.Suggestions != 8 {
		t.Fatalf("status: %+v", st)
	}
}

func TestPopulateTitle(t *testing.T) {
	h := start(t, editor)
	if err := h.page.PopulateTitle(context.Background(), "My Title"); err != nil {
		t.Fatal(err)
	}
	if got := h.titleText(); got != "My Title" {
		t.Fatalf("title: got %q", got)
	}

	empty := start(t, `<body><p>nothing here</p></body>`)
	if err := empty.page.PopulateTitle(context.Background(), "x"); !errors.Is(err, ErrNoField) {
		t.Fatalf("no field: got %v", err)
	}
}

func TestDescriptionHistoryAndInsert(t *testing.T) {
	h := start(t, editor)
	h.rescan()
	ctx := context.Background()

	d, err := h.page.GenerateDescription(ctx, "pasta, food")
	if err != nil {
		t.Fatal(err)
	}
	if d.Count != 1 || d.Position != "1 of 1" || d.Text != "Variant 1 for pasta+food" {
		t.Fatalf("first: %+v", d)
	}
	d, err = h.page.GenerateDescription(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Count != 2 || d.Position != "2 of 2" {
		t.Fatalf("reload: %+v", d)
	}
	d, _ = h.page.NavigateHistory(ctx, "prev")
	if d.Position != "1 of 2" || d.Text != "Variant 1 for pasta+food" {
		t.Fatalf("prev: %+v", d)
	}
	h.inspect(func() {
		pn := h.page.anchor.Get(panel.DescriptionGenerator)
		if pn.DescriptionPosition() != "1 of 2" {
			t.Fatalf("panel counter: got %q", pn.DescriptionPosition())
		}
		if !strings.Contains(h.doc.HTML(), `Description recommendation for &#34;old description&#34; with keywords &#34;pasta, food&#34;`) {
			t.Fatalf("summary missing:\n%s", h.doc.HTML())
		}
	})

	var label string
	err = h.page.Do(ctx, "insert", func() error {
		err := h.page.insertDescription()
		label = h.page.anchor.Get(panel.DescriptionGenerator).ButtonLabel(ActionInsertDescription)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if label != "Inserted!" {
		t.Fatalf("insert label: got %q", label)
	}
	h.waitFor("label restored", func() bool {
		return h.page.anchor.Get(panel.DescriptionGenerator).ButtonLabel(ActionInsertDescription) == "Insert"
	})
	got, err := h.page.ReadDescription(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "Variant 1 for pasta+food") || !strings.HasSuffix(got, "old description") {
		t.Fatalf("description after insert: %q", got)
	}

	if _, err := h.page.GenerateDescription(ctx, "   "); err != nil {
		t.Fatalf("reload with blank keywords: %v", err)
	}
}

func TestDescriptionFallback(t *testing.T) {
	h := start(t, editor)
	h.gen.descErr = errors.New("api down")
	d, err := h.page.GenerateDescription(context.Background(), "pasta")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Fallback || !strings.HasSuffix(d.Text, "#pasta") {
		t.Fatalf("fallback: %+v", d)
	}
}

func TestInsertWithoutContainer(t *testing.T) {
	h := start(t, `<body><ytcp-dialog><input aria-label="Title" id="title"></ytcp-dialog></body>`)
	ctx := context.Background()
	if _, err := h.page.GenerateDescription(ctx, "pasta"); err != nil {
		t.Fatal(err)
	}
	if err := h.page.InsertDescription(ctx); !errors.Is(err, panel.ErrContainerNotFound) {
		t.Fatalf("got %v, want ErrContainerNotFound", err)
	}
}

func TestInsertNothing(t *testing.T) {
	h := start(t, editor)
	if err := h.page.InsertDescription(context.Background()); !errors.Is(err, ErrNothingToInsert) {
		t.Fatalf("got %v", err)
	}
	if _, err := h.page.GenerateDescription(context.Background(), ""); !errors.Is(err, ErrNoKeywords) {
		t.Fatalf("reload without keywords: got %v", err)
	}
}

func TestThumbnails(t *testing.T) {
	h := start(t, editor)
	h.rescan()
	ctx := context.Background()

	h.gen.thumbErr = errors.New("api down")
	if _, err := h.page.GenerateThumbnails(ctx, "a pasta video"); err == nil {
		t.Fatal("failure not reported")
	}
	h.inspect(func() {
		if n := h.page.anchor.Get(panel.ThumbnailBuilder).PlaceholderCount(); n != panel.ThumbnailPlaceholders {
			t.Fatalf("placeholders: got %d", n)
		}
	})

	h.gen.mu.Lock()
	h.gen.thumbErr = nil
	h.gen.thumbs = []genclient.Thumbnail{{URL: "https://img.example.com/1.jpg"}, {URL: "https://img.example.com/2.jpg"}}
	h.gen.mu.Unlock()
	got, err := h.page.GenerateThumbnails(ctx, "")
	if err != nil || len(got) != 2 {
		t.Fatalf("thumbnails: %v, %v", got, err)
	}
	h.inspect(func() {
		if n := h.page.anchor.Get(panel.ThumbnailBuilder).ThumbnailCount(); n != 2 {
			t.Fatalf("rendered: got %d", n)
		}
	})
}

func TestKeywordCounter(t *testing.T) {
	h := start(t, editor)
	h.rescan()
	h.page.Deliver(&mutation.Message{Kind: mutation.KindAction, Action: &mutation.Action{
		Panel: string(panel.DescriptionGenerator), Action: ActionKeywordsInput, Value: "pasta, food",
	}})
	h.waitFor("counter", func() bool {
		return h.doc.Find(".ttg-char-counter").Text() == "11/100"
	})
}

func TestIndicatorHidesItself(t *testing.T) {
	h := start(t, editor)
	h.page.Deliver(&mutation.Message{Kind: mutation.KindReady, URL: "https://studio.youtube.com/"})
	h.waitFor("indicator", func() bool {
		el := h.doc.Find(`[data-ttg-panel="indicator"]`)
		return el != nil && el.Text() == panel.IndicatorText
	})
	h.waitFor("indicator removed", func() bool {
		return h.doc.Find(`[data-ttg-panel="indicator"]`) == nil
	})
}

func TestPanicContained(t *testing.T) {
	h := start(t, editor)
	err := h.page.Do(context.Background(), "boom", func() error { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("got %v", err)
	}
	st, err := h.page.Status(context.Background())
	if err != nil || st.Panics != 1 {
		t.Fatalf("status after panic: %+v, %v", st, err)
	}
}

func TestStopTearsDown(t *testing.T) {
	h := start(t, editor)
	h.rescan()
	h.stop()
	<-h.page.Done()
	if n := len(h.doc.QueryAll(`[data-ttg-panel]`)); n != 0 {
		t.Fatalf("panels left after stop: %d", n)
	}
	if err := h.page.PopulateTitle(context.Background(), "x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("after stop: got %v", err)
	}
}
