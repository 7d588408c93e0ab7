package panel

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"

	"github.com/hazyhaar/tubemaster/studio/internal/genclient"
	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
)

// Panel element ids and classes the agent and tests rely on.
const (
	TitleListID           = "ttg-title-suggestions-list"
	ThumbnailPlaceholders = 6
	KeywordsMaxLen        = 100
)

var tmpl = template.Must(template.New("panel").Parse(`
{{define "title-suggestions"}}<div id="{{.ID}}" class="ttg-panel ttg-title-panel" data-ttg-panel="{{.Kind}}" data-ttg-anchor="{{.AnchorName}}" data-ttg-state="empty">
<div class="ttg-panel-header"><span class="ttg-panel-title">Title suggestions</span></div>
<ul id="ttg-title-suggestions-list" class="ttg-suggestion-list" hidden></ul>
</div>{{end}}

{{define "thumbnail-builder"}}<div id="{{.ID}}" class="ttg-panel ttg-thumbnail-panel" data-ttg-panel="{{.Kind}}" data-ttg-anchor="{{.AnchorName}}" data-ttg-state="empty">
<div class="ttg-panel-header"><span class="ttg-panel-title">Thumbnail ideas</span></div>
<textarea class="ttg-thumbnail-description" data-ttg-input="thumbnail-description" placeholder="Describe your video"></textarea>
<button class="ttg-button ttg-generate-thumbnails" data-ttg-action="generate-thumbnails">Generate Thumbnails</button>
<div class="ttg-thumbnail-grid"></div>
</div>{{end}}

{{define "description-generator"}}<div id="{{.ID}}" class="ttg-panel ttg-description-panel" data-ttg-panel="{{.Kind}}" data-ttg-anchor="{{.AnchorName}}" data-ttg-state="empty">
<div class="ttg-panel-header"><span class="ttg-panel-title">Description generator</span></div>
<div class="ttg-description-form">
<input class="ttg-keywords-input" data-ttg-input="keywords" data-ttg-action="keywords-input" type="text" maxlength="100" placeholder="Enter keywords, separated by commas">
<span class="ttg-char-counter">0/100</span>
<button class="ttg-button ttg-generate-description" data-ttg-action="generate-description">Generate</button>
</div>
<div class="ttg-description-result" hidden></div>
</div>{{end}}

{{define "suggestions"}}{{range .}}<li class="ttg-suggestion" data-ttg-action="select-title" data-ttg-arg="{{.ID}}"><span class="ttg-suggestion-text">{{.Text}}</span><span class="ttg-suggestion-score">{{.Score}}</span></li>{{end}}{{end}}

{{define "loading"}}<li class="ttg-suggestion ttg-loading">Generating suggestions...</li>{{end}}

{{define "placeholders"}}{{range .}}<div class="ttg-thumbnail-slider-item"><div class="ttg-thumbnail-loading"><div class="ttg-thumbnail-spinner"></div><div class="ttg-thumbnail-placeholder">Loading...</div></div></div>{{end}}{{end}}

{{define "thumbnails"}}{{range .}}<div class="ttg-thumbnail-slider-item"><img class="ttg-thumbnail-image" src="{{.URL}}" alt="{{.Alt}}"><div class="ttg-thumbnail-overlay"><button class="ttg-thumbnail-select-btn" data-ttg-action="select-thumbnail" data-ttg-arg="{{.URL}}">Select</button></div></div>{{end}}{{end}}

{{define "description"}}<div class="ttg-description-summary">{{.Summary}}</div>
<div class="ttg-description-display">{{.Text}}</div>
<div class="ttg-description-controls-container">
<div class="ttg-description-nav-controls">
<button class="ttg-description-nav-btn ttg-description-reload-btn" data-ttg-action="reload-description" title="Generate new description">Reload</button>
<button class="ttg-description-nav-btn ttg-description-prev-btn" data-ttg-action="prev-description" title="Previous description"{{if not .CanPrev}} disabled{{end}}>Prev</button>
<span class="ttg-description-counter">{{.Position}}</span>
<button class="ttg-description-nav-btn ttg-description-next-btn" data-ttg-action="next-description" title="Next description"{{if not .CanNext}} disabled{{end}}>Next</button>
</div>
<div class="ttg-description-action-buttons">
<button class="ttg-button ttg-outline-btn" data-ttg-action="change-keywords">Change Keywords</button>
<button class="ttg-button ttg-insert-description-btn" data-ttg-action="insert-description">Insert</button>
</div>
</div>{{end}}

{{define "description-loading"}}<div class="ttg-description-display ttg-loading">Generating description...</div>{{end}}
`))

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("panel: render %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderShell(p *Panel) (string, error) {
	return execute(string(p.Kind), struct {
		ID         string
		Kind       Kind
		AnchorName string
	}{p.ID, p.Kind, p.AnchorName})
}

func (p *Panel) part(sel string) (hostdom.Element, error) {
	if p == nil || p.Root == nil || !p.Root.Connected() {
		return nil, hostdom.ErrDetached
	}
	if sel == "" {
		return p.Root, nil
	}
	el := hostdom.Query(p.Root, sel)
	if el == nil {
		return nil, fmt.Errorf("panel: %s: %q missing", p.Kind, sel)
	}
	return el, nil
}

func (p *Panel) fill(sel, name string, data any) error {
	el, err := p.part(sel)
	if err != nil {
		return err
	}
	markup, err := execute(name, data)
	if err != nil {
		return err
	}
	return el.SetInnerHTML(markup)
}

func (p *Panel) setState(state string) {
	if p.Root != nil {
		p.Root.SetAttr(StateAttr, state)
	}
}

// State returns the data-ttg-state of the root.
func (p *Panel) State() string {
	if p == nil || p.Root == nil {
		return ""
	}
	v, _ := p.Root.Attr(StateAttr)
	return v
}

type suggestionView struct {
	ID    string
	Text  template.HTML
	Score int
}

// ShowSuggestions renders items into the title list.
func (p *Panel) ShowSuggestions(items []genclient.Suggestion) error {
	views := make([]suggestionView, len(items))
	for i, s := range items {
		views[i] = suggestionView{ID: s.ID, Text: p.sanitizer.Text(s.Text), Score: s.Score}
	}
	if err := p.fill("#"+TitleListID, "suggestions", views); err != nil {
		return err
	}
	p.showList(true)
	p.setState("rendered")
	return nil
}

// ShowLoading renders the title list loading state.
func (p *Panel) ShowLoading() error {
	if err := p.fill("#"+TitleListID, "loading", nil); err != nil {
		return err
	}
	p.showList(true)
	p.setState("loading")
	return nil
}

// ClearSuggestions empties and hides the title list.
func (p *Panel) ClearSuggestions() error {
	list, err := p.part("#" + TitleListID)
	if err != nil {
		return err
	}
	if err := list.SetInnerHTML(""); err != nil {
		return err
	}
	p.showList(false)
	p.setState("empty")
	return nil
}

func (p *Panel) showList(visible bool) {
	list, err := p.part("#" + TitleListID)
	if err != nil {
		return
	}
	if visible {
		list.RemoveAttr("hidden")
	} else {
		list.SetAttr("hidden", "")
	}
}

// SuggestionTexts returns the rendered suggestion texts in order.
func (p *Panel) SuggestionTexts() []string {
	list, err := p.part("#" + TitleListID)
	if err != nil {
		return nil
	}
	var out []string
	for _, el := range list.QueryAll(".ttg-suggestion-text") {
		out = append(out, el.Text())
	}
	return out
}

// ShowThumbnailPlaceholders renders n loading placeholders.
func (p *Panel) ShowThumbnailPlaceholders(n int) error {
	if n <= 0 {
		n = ThumbnailPlaceholders
	}
	if err := p.fill(".ttg-thumbnail-grid", "placeholders", make([]struct{}, n)); err != nil {
		return err
	}
	p.setState("loading")
	return nil
}

type thumbnailView struct {
	URL string
	Alt string
}

// ShowThumbnails renders the thumbnails with a safe URL. With none left it
// keeps the current grid.
func (p *Panel) ShowThumbnails(thumbs []genclient.Thumbnail) error {
	var views []thumbnailView
	for i, t := range thumbs {
		if !SafeURL(t.URL) {
			continue
		}
		alt := t.Title
		if alt == "" {
			alt = "Generated Thumbnail " + strconv.Itoa(i+1)
		}
		views = append(views, thumbnailView{URL: t.URL, Alt: alt})
	}
	if len(views) == 0 {
		return nil
	}
	if err := p.fill(".ttg-thumbnail-grid", "thumbnails", views); err != nil {
		return err
	}
	p.setState("rendered")
	return nil
}

// ThumbnailCount returns the number of rendered thumbnail images.
func (p *Panel) ThumbnailCount() int {
	grid, err := p.part(".ttg-thumbnail-grid")
	if err != nil {
		return 0
	}
	return len(grid.QueryAll("img.ttg-thumbnail-image"))
}

// PlaceholderCount returns the number of loading placeholders.
func (p *Panel) PlaceholderCount() int {
	grid, err := p.part(".ttg-thumbnail-grid")
	if err != nil {
		return 0
	}
	return len(grid.QueryAll(".ttg-thumbnail-loading"))
}

// InputValue reads a panel input by its data-ttg-input name.
func (p *Panel) InputValue(name string) string {
	el, err := p.part(`[` + InputAttr + `="` + name + `"]`)
	if err != nil {
		return ""
	}
	if v, ok := el.Value(); ok {
		return v
	}
	return el.Text()
}

// SetButton sets the label and disabled state of the action button.
func (p *Panel) SetButton(action, label string, disabled bool) error {
	el, err := p.part(`button[` + ActionAttr + `="` + action + `"]`)
	if err != nil {
		return err
	}
	if err := el.SetText(label); err != nil {
		return err
	}
	if disabled {
		return el.SetAttr("disabled", "")
	}
	return el.RemoveAttr("disabled")
}

// ButtonLabel returns the label of the action button.
func (p *Panel) ButtonLabel(action string) string {
	el, err := p.part(`button[` + ActionAttr + `="` + action + `"]`)
	if err != nil {
		return ""
	}
	return el.Text()
}

// DescriptionView is one rendered description variant.
type DescriptionView struct {
	Summary  string
	Text     string
	Position string
	CanPrev  bool
	CanNext  bool
}

// ShowDescription renders a variant with its navigation.
func (p *Panel) ShowDescription(v DescriptionView) error {
	data := struct {
		Summary  template.HTML
		Text     template.HTML
		Position string
		CanPrev  bool
		CanNext  bool
	}{p.sanitizer.Text(v.Summary), p.sanitizer.Multiline(v.Text), v.Position, v.CanPrev, v.CanNext}
	if err := p.fill(".ttg-description-result", "description", data); err != nil {
		return err
	}
	p.showResult(true)
	p.setState("rendered")
	return nil
}

// ShowDescriptionLoading renders the description loading state.
func (p *Panel) ShowDescriptionLoading() error {
	if err := p.fill(".ttg-description-result", "description-loading", nil); err != nil {
		return err
	}
	p.showResult(true)
	p.setState("loading")
	return nil
}

// ShowKeywordsForm clears the result and the keyword input.
func (p *Panel) ShowKeywordsForm() error {
	res, err := p.part(".ttg-description-result")
	if err != nil {
		return err
	}
	if err := res.SetInnerHTML(""); err != nil {
		return err
	}
	p.showResult(false)
	if in, err := p.part(`[` + InputAttr + `="keywords"]`); err == nil {
		in.SetValue("")
	}
	p.SetKeywordCount(0)
	p.setState("empty")
	return nil
}

func (p *Panel) showResult(visible bool) {
	res, err := p.part(".ttg-description-result")
	if err != nil {
		return
	}
	if visible {
		res.RemoveAttr("hidden")
	} else {
		res.SetAttr("hidden", "")
	}
}

// SetKeywordCount updates the "n/100" counter.
func (p *Panel) SetKeywordCount(n int) error {
	el, err := p.part(".ttg-char-counter")
	if err != nil {
		return err
	}
	return el.SetText(fmt.Sprintf("%d/%d", min(n, KeywordsMaxLen), KeywordsMaxLen))
}

// DescriptionText returns the displayed description text.
func (p *Panel) DescriptionText() string {
	el, err := p.part(".ttg-description-display")
	if err != nil {
		return ""
	}
	return el.Text()
}

// DescriptionPosition returns the "N of M" counter text.
func (p *Panel) DescriptionPosition() string {
	el, err := p.part(".ttg-description-counter")
	if err != nil {
		return ""
	}
	return el.Text()
}
