package panel

import "fmt"

// History is the description variants generated for one keyword set, with
// a navigation cursor. Variants are only ever appended; Reset starts over
// for new keywords.
type History struct {
	keywords string
	variants []string
	cursor   int
}

// Keywords returns the keyword input the variants were generated for.
func (h *History) Keywords() string { return h.keywords }

// Reset drops every variant and records the new keywords.
func (h *History) Reset(keywords string) {
	h.keywords = keywords
	h.variants = nil
	h.cursor = 0
}

// Append adds a variant and moves the cursor to it.
func (h *History) Append(text string) {
	h.variants = append(h.variants, text)
	h.cursor = len(h.variants) - 1
}

// Len returns the number of variants.
func (h *History) Len() int { return len(h.variants) }

// Current returns the variant under the cursor.
func (h *History) Current() (string, bool) {
	if len(h.variants) == 0 {
		return "", false
	}
	return h.variants[h.cursor], true
}

// Prev moves the cursor back; it reports false at the first variant.
func (h *History) Prev() bool {
	if h.cursor <= 0 {
		return false
	}
	h.cursor--
	return true
}

// Next moves the cursor forward; it reports false at the last variant.
func (h *History) Next() bool {
	if h.cursor >= len(h.variants)-1 {
		return false
	}
	h.cursor++
	return true
}

// CanPrev and CanNext drive the navigation buttons.
func (h *History) CanPrev() bool { return h.cursor > 0 }
func (h *History) CanNext() bool { return h.cursor < len(h.variants)-1 }

// Position is the "N of M" counter, "" when empty.
func (h *History) Position() string {
	if len(h.variants) == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d", h.cursor+1, len(h.variants))
}

// Index is the zero-based cursor.
func (h *History) Index() int { return h.cursor }
