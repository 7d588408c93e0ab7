package page

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/tubemaster/observability"
	"github.com/hazyhaar/tubemaster/studio/internal/bridge"
	"github.com/hazyhaar/tubemaster/studio/internal/genclient"
	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
	"github.com/hazyhaar/tubemaster/studio/internal/locator"
	"github.com/hazyhaar/tubemaster/studio/internal/panel"
	"github.com/hazyhaar/tubemaster/studio/mutation"
)

// Panel actions, as carried in data-ttg-action.
const (
	ActionSelectTitle         = "select-title"
	ActionGenerateThumbnails  = "generate-thumbnails"
	ActionSelectThumbnail     = "select-thumbnail"
	ActionGenerateDescription = "generate-description"
	ActionReloadDescription   = "reload-description"
	ActionPrevDescription     = "prev-description"
	ActionNextDescription     = "next-description"
	ActionInsertDescription   = "insert-description"
	ActionChangeKeywords      = "change-keywords"
	ActionKeywordsInput       = "keywords-input"
)

// Button labels.
const (
	labelGenerate          = "Generate"
	labelGenerating        = "Generating..."
	labelGenerateThumbs    = "Generate Thumbnails"
	labelInsert            = "Insert"
	labelInserted          = "Inserted!"
	labelContainerNotFound = "Container Not Found"
	labelInputNotFound     = "Input Not Found"
)

const summaryMaxLen = 50

var descriptionContainers = []string{"#description-container", `[id*="description-container"]`}

func (p *Page) handleAction(a mutation.Action) error {
	switch a.Action {
	case ActionSelectTitle:
		return p.selectTitle(a.Arg, a.Value)
	case ActionGenerateThumbnails:
		desc := strings.TrimSpace(a.Value)
		if desc == "" {
			desc = strings.TrimSpace(p.panel(panel.ThumbnailBuilder).InputValue("thumbnail-description"))
		}
		p.requestThumbnails(desc, nil)
	case ActionSelectThumbnail:
		p.logger.Info("page: thumbnail selected", "url", a.Arg)
	case ActionGenerateDescription:
		kw := a.Value
		if kw == "" {
			kw = p.panel(panel.DescriptionGenerator).InputValue("keywords")
		}
		if strings.TrimSpace(kw) == "" {
			return nil
		}
		p.requestDescription(kw, true, nil)
	case ActionReloadDescription:
		if p.history.Keywords() != "" {
			p.requestDescription(p.history.Keywords(), false, nil)
		}
	case ActionPrevDescription:
		if p.history.Prev() {
			p.renderDescription()
		}
	case ActionNextDescription:
		if p.history.Next() {
			p.renderDescription()
		}
	case ActionInsertDescription:
		err := p.insertDescription()
		if errors.Is(err, ErrNothingToInsert) {
			return nil
		}
		return err
	case ActionChangeKeywords:
		p.descSeq.Next()
		p.history.Reset("")
		if pn := p.panel(panel.DescriptionGenerator); pn != nil {
			pn.ShowKeywordsForm()
			pn.SetButton(ActionGenerateDescription, labelGenerate, false)
		}
	case ActionKeywordsInput:
		if pn := p.panel(panel.DescriptionGenerator); pn != nil {
			pn.SetKeywordCount(utf8.RuneCountInString(a.Value))
		}
	default:
		p.logger.Debug("page: unknown panel action", "action", a.Action, "panel", a.Panel)
	}
	return nil
}

// selectTitle writes the chosen suggestion into the title field.
func (p *Page) selectTitle(id, text string) error {
	for _, s := range p.suggestions {
		if s.ID == id {
			text = s.Text
			break
		}
	}
	if text == "" {
		return fmt.Errorf("page: unknown suggestion %q", id)
	}
	if err := p.populateTitle(text); err != nil {
		return err
	}
	if pn := p.anchor.Get(panel.TitleSuggestions); pn.Live(p.doc) {
		pn.ClearSuggestions()
	}
	return nil
}

func (p *Page) populateTitle(text string) error {
	if p.title == nil || !p.title.Live(p.doc) {
		p.refreshField(locator.Title)
	}
	if p.title == nil {
		p.logEvent(observability.EventTitlePopulated, "title", "populate", false, "")
		return ErrNoField
	}
	if err := p.bridge.Write(p.title, text); err != nil {
		p.logEvent(observability.EventTitlePopulated, "title", "populate", false, err.Error())
		return err
	}
	p.logEvent(observability.EventTitlePopulated, "title", "populate", true, "")
	return nil
}

// requestDescription asks for a new variant. A fresh keyword set resets the
// history; a reload appends to it.
func (p *Page) requestDescription(keywords string, reset bool, done func(string, error)) {
	if reset {
		p.history.Reset(strings.TrimSpace(keywords))
	}
	title := p.readField(p.title)
	req := genclient.DescriptionRequest{
		Idea:     title,
		Keywords: genclient.SplitKeywords(p.history.Keywords()),
		Title:    title,
	}
	index := p.history.Len()
	tok := p.descSeq.Next()
	if pn := p.panel(panel.DescriptionGenerator); pn != nil {
		pn.SetButton(ActionGenerateDescription, labelGenerating, true)
		if p.history.Len() == 0 {
			pn.ShowDescriptionLoading()
		}
	}
	post := p.postGuarded("description")
	go func() {
		text, err := p.deps.Generator.Description(p.ctx, req, index)
		post(func() { p.applyDescription(tok, text, err, done) })
	}()
}

func (p *Page) applyDescription(tok uint64, text string, err error, done func(string, error)) {
	if !p.descSeq.Current(tok) {
		if done != nil {
			done("", ErrSuperseded)
		}
		return
	}
	if text == "" {
		if err == nil {
			err = errors.New("page: empty description")
		}
		if pn := p.panel(panel.DescriptionGenerator); pn != nil {
			pn.SetButton(ActionGenerateDescription, labelGenerate, false)
		}
		if done != nil {
			done("", err)
		}
		return
	}
	p.history.Append(text)
	p.renderDescription()
	if done != nil {
		done(text, err)
	}
}

func (p *Page) renderDescription() {
	pn := p.panel(panel.DescriptionGenerator)
	if pn == nil {
		return
	}
	text, ok := p.history.Current()
	if !ok {
		return
	}
	pn.SetButton(ActionGenerateDescription, labelGenerate, false)
	err := pn.ShowDescription(panel.DescriptionView{
		Summary:  p.summary(),
		Text:     text,
		Position: p.history.Position(),
		CanPrev:  p.history.CanPrev(),
		CanNext:  p.history.CanNext(),
	})
	if err != nil {
		p.logger.Debug("page: description not rendered", "error", err)
	}
}

// summary describes what the variants were generated for.
func (p *Page) summary() string {
	s := "Description recommendation"
	if p.desc == nil || !p.desc.Live(p.doc) {
		p.refreshField(locator.Description)
	}
	if existing := strings.TrimSpace(p.readField(p.desc)); existing != "" {
		if utf8.RuneCountInString(existing) > summaryMaxLen {
			existing = string([]rune(existing)[:summaryMaxLen]) + "..."
		}
		s += ` for "` + strings.Join(strings.Fields(existing), " ") + `"`
	}
	return s + ` with keywords "` + p.history.Keywords() + `"`
}

func (p *Page) readField(f *locator.Field) string {
	if f == nil {
		return ""
	}
	v, err := p.bridge.Read(f)
	if err != nil {
		return ""
	}
	return v
}

// insertDescription prepends the current variant to the host description.
func (p *Page) insertDescription() error {
	text, ok := p.history.Current()
	if !ok {
		return ErrNothingToInsert
	}
	if p.desc == nil || !p.desc.Live(p.doc) {
		p.refreshField(locator.Description)
	}

	var err error
	label := labelInserted
	switch {
	case p.desc != nil:
		err = p.bridge.Prepend(p.desc, text)
		if err != nil {
			label = labelInputNotFound
		}
	case hostdom.QueryFirst(p.doc, descriptionContainers...) == nil:
		err, label = panel.ErrContainerNotFound, labelContainerNotFound
	default:
		err, label = ErrNoField, labelInputNotFound
	}
	if errors.Is(err, bridge.ErrDetached) || errors.Is(err, bridge.ErrNotWritable) {
		err = fmt.Errorf("%w: %w", ErrNoField, err)
	}

	if err != nil {
		p.logEvent(observability.EventDescriptionInserted, "description", "insert", false, err.Error())
	} else {
		p.logEvent(observability.EventDescriptionInserted, "description", "insert", true, "")
	}
	p.flashButton(panel.DescriptionGenerator, ActionInsertDescription, label, labelInsert)
	return err
}

// flashButton shows label on a panel button, then restores rest.
func (p *Page) flashButton(kind panel.Kind, action, label, rest string) {
	pn := p.panel(kind)
	if pn == nil {
		return
	}
	pn.SetButton(action, label, false)
	p.after(p.cfg.LabelTTL, func() {
		if pn.Live(p.doc) {
			pn.SetButton(action, rest, false)
		}
	})
}

// requestThumbnails asks for thumbnails for desc, falling back to the
// host description and then the title. Failures keep the placeholders.
func (p *Page) requestThumbnails(desc string, done func([]genclient.Thumbnail, error)) {
	if desc == "" {
		desc = strings.TrimSpace(p.readField(p.desc))
	}
	if desc == "" {
		desc = strings.TrimSpace(p.readField(p.title))
	}
	tok := p.thumbSeq.Next()
	if pn := p.panel(panel.ThumbnailBuilder); pn != nil {
		pn.ShowThumbnailPlaceholders(panel.ThumbnailPlaceholders)
		pn.SetButton(ActionGenerateThumbnails, labelGenerating, true)
	}
	post := p.postGuarded("thumbnails")
	go func() {
		thumbs, err := p.deps.Generator.Thumbnails(p.ctx, desc)
		post(func() { p.applyThumbnails(tok, thumbs, err, done) })
	}()
}

func (p *Page) applyThumbnails(tok uint64, thumbs []genclient.Thumbnail, err error, done func([]genclient.Thumbnail, error)) {
	if !p.thumbSeq.Current(tok) {
		if done != nil {
			done(nil, ErrSuperseded)
		}
		return
	}
	pn := p.panel(panel.ThumbnailBuilder)
	if pn != nil {
		pn.SetButton(ActionGenerateThumbnails, labelGenerateThumbs, false)
	}
	if err != nil || len(thumbs) == 0 {
		p.logger.Info("page: no thumbnails, placeholders kept", "error", err)
		if done != nil {
			done(nil, err)
		}
		return
	}
	p.thumbs = thumbs
	if pn != nil {
		if rerr := pn.ShowThumbnails(thumbs); rerr != nil {
			p.logger.Debug("page: thumbnails not rendered", "error", rerr)
		}
	}
	if done != nil {
		done(thumbs, nil)
	}
}
