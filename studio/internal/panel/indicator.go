package panel

import "github.com/hazyhaar/tubemaster/studio/internal/hostdom"

// IndicatorText is shown briefly when the daemon takes over a page.
const IndicatorText = "TubeMaster Tools Active"

// ShowIndicator appends the activity badge to body, replacing any previous
// one. The caller removes it.
func ShowIndicator(doc hostdom.Document) (hostdom.Element, error) {
	for _, el := range doc.QueryAll(`[` + PanelAttr + `="indicator"]`) {
		el.Remove()
	}
	body := doc.Body()
	if body == nil {
		return nil, ErrContainerNotFound
	}
	return body.InsertAdjacentHTML(hostdom.BeforeEnd,
		`<div class="ttg-indicator" data-ttg-panel="indicator">`+IndicatorText+`</div>`)
}
