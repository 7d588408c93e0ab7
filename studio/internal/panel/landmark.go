package panel

import (
	"strings"

	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
	"github.com/hazyhaar/tubemaster/studio/internal/locator"
)

var (
	titleContainers = []string{"ytcp-social-suggestions-textbox", "#title-textarea", "ytcp-form-input-container"}
	titleLandmarks  = []string{
		".container-bottom.style-scope.ytcp-social-suggestions-textbox",
		".container-bottom",
		".style-scope.ytcp-social-suggestions-textbox",
		".ytcp-social-suggestions-textbox",
	}
	thumbnailLandmarks = []string{
		"ytcp-video-thumbnail-editor",
		".ytcp-video-thumbnail-editor",
		".ytcp-video-thumbnail-section",
		".style-scope.ytcp-video-metadata-editor-basics",
		".ytcp-video-metadata-editor-basics",
	}
	descriptionLandmarks = []string{"#description-container", `[id*="description-container"]`}
	descriptionInner     = "ytcp-form-input-container"
)

// findAnchor returns the insert target, the anchor the panel follows and
// its name. target is nil when the kind cannot be placed.
func findAnchor(kind Kind, hc HostContext) (target, anchor hostdom.Element, name string) {
	switch kind {
	case TitleSuggestions:
		if hc.Title == nil || !hc.Title.Live(hc.Doc) {
			return nil, nil, ""
		}
		if lm := titleLandmark(hc.Doc, hc.Title.El); lm != nil {
			return lm, hc.Title.El, string(locator.Title)
		}
	case ThumbnailBuilder:
		if lm := thumbnailLandmark(hc.Doc); lm != nil {
			return lm, lm, "thumbnail-editor"
		}
	case DescriptionGenerator:
		if c := hostdom.QueryFirst(hc.Doc, descriptionLandmarks...); c != nil && c.Connected() {
			target := c
			if inner := hostdom.Query(c, descriptionInner); inner != nil {
				target = inner
			}
			return target, c, string(locator.Description)
		}
	}
	return nil, nil, ""
}

// titleLandmark looks inside the field's textbox container first, then the
// whole document outside any description container.
func titleLandmark(doc hostdom.Document, field hostdom.Element) hostdom.Element {
	if c := field.Closest(strings.Join(titleContainers, ", ")); c != nil {
		if lm := hostdom.QueryFirst(c, titleLandmarks...); lm != nil {
			return lm
		}
	}
	desc := strings.Join(locator.DefaultProfiles()[locator.Description].Containers, ", ")
	for _, sel := range titleLandmarks {
		for _, el := range doc.QueryAll(sel) {
			if el.Closest(desc) == nil && !el.Same(field) {
				return el
			}
		}
	}
	return nil
}

// thumbnailLandmark tries the editor selectors, then the innermost element
// mentioning "test" and "compare", walked up at most five levels to a DIV
// taller than 50 and wider than 200.
func thumbnailLandmark(doc hostdom.Document) hostdom.Element {
	if lm := hostdom.QueryFirst(doc, thumbnailLandmarks...); lm != nil {
		return lm
	}
	for _, el := range doc.MatchText("test", "compare") {
		cur := el
		for range 6 {
			if cur == nil {
				break
			}
			if cur.TagName() == "div" {
				r := cur.Rect()
				if r.Height > 50 && r.Width > 200 {
					return cur
				}
			}
			cur = cur.Parent()
		}
	}
	return nil
}
