package locator

import (
	"strings"

	"github.com/hazyhaar/tubemaster/studio/internal/hostdom"
)

// Profile is the kind-specific vocabulary the strategies consult.
type Profile struct {
	// Keywords matched, lower-cased, in aria-label, placeholder, name and id.
	Keywords []string
	// Containers are host landmarks wrapping the field.
	Containers []string
	// PreferTall ranks taller candidates first in the broad strategy.
	PreferTall bool
}

// DefaultProfiles returns the studio vocabulary.
func DefaultProfiles() map[Kind]Profile {
	return map[Kind]Profile{
		Title: {
			Keywords: []string{"title"},
			Containers: []string{
				"#title-textarea",
				"#title-wrapper",
				`[id*="title-textarea"]`,
				".title-section",
			},
		},
		Description: {
			Keywords: []string{"description", "tell viewers about", "tell your viewers", "tell viewers"},
			Containers: []string{
				"#description-container",
				`[id*="description-container"]`,
				"#description-textarea",
				"#description-wrapper",
			},
			PreferTall: true,
		},
	}
}

func (p Profile) labeled(el hostdom.Element) bool {
	for _, a := range labelAttrs {
		v := hostdom.AttrLower(el, a)
		if v == "" {
			continue
		}
		for _, k := range p.Keywords {
			if strings.Contains(v, k) {
				return true
			}
		}
	}
	return false
}

func (p Profile) contained(el hostdom.Element) bool {
	if len(p.Containers) == 0 {
		return false
	}
	return el.Closest(strings.Join(p.Containers, ", ")) != nil
}

func (p Profile) claims(el hostdom.Element) bool {
	return p.labeled(el) || p.contained(el)
}

var labelAttrs = []string{"aria-label", "placeholder", "name", "id"}

// Editable matches every element that may hold user text.
const Editable = `input, textarea, [contenteditable="true"], [contenteditable=""], [contenteditable="plaintext-only"]`

// Strategy is one link of the chain. Candidates are returned in preference
// order; Accept and Score refine them after the validity predicate.
type Strategy struct {
	Name       string
	Broad      bool
	Candidates func(root hostdom.Querier, p Profile) []hostdom.Element
	Accept     func(el hostdom.Element, p Profile) bool
	Score      func(el hostdom.Element, p Profile) float64
}

// DefaultChain is keyword, then structural, then broad.
func DefaultChain(maxTextarea float64) []Strategy {
	return []Strategy{
		{
			Name: "keyword",
			Candidates: func(root hostdom.Querier, p Profile) []hostdom.Element {
				var out []hostdom.Element
				for _, el := range root.QueryAll(Editable) {
					if p.labeled(el) {
						out = append(out, el)
					}
				}
				return out
			},
		},
		{
			Name: "structural",
			Candidates: func(root hostdom.Querier, p Profile) []hostdom.Element {
				var out []hostdom.Element
				for _, c := range p.Containers {
					for _, el := range root.QueryAll(within(c)) {
						out = appendUnique(out, el)
					}
				}
				return out
			},
			Accept: func(el hostdom.Element, p Profile) bool {
				if el.TagName() == "textarea" && !p.PreferTall {
					return el.Rect().Height <= maxTextarea
				}
				return true
			},
		},
		{
			Name:  "broad",
			Broad: true,
			Candidates: func(root hostdom.Querier, _ Profile) []hostdom.Element {
				return root.QueryAll(Editable)
			},
			Score: broadScore,
		},
	}
}

// within returns the editable selector list scoped under container.
func within(container string) string {
	parts := strings.Split(Editable, ", ")
	for i, p := range parts {
		parts[i] = container + " " + p
	}
	return strings.Join(parts, ", ")
}

func broadScore(el hostdom.Element, p Profile) float64 {
	r := el.Rect()
	score := 1.0
	if r.Y >= 0 {
		score++
	}
	score += min(r.Width/1000, 1)
	h := min(r.Height/200, 1)
	if p.PreferTall {
		score += h
	} else {
		score -= h
	}
	if p.labeled(el) {
		score += 2
	}
	return score
}

func appendUnique(list []hostdom.Element, el hostdom.Element) []hostdom.Element {
	for _, e := range list {
		if e.Same(el) {
			return list
		}
	}
	return append(list, el)
}
