package panel

import (
	"html/template"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer turns remote text into inert markup.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer returns a Sanitizer with the strict policy: no tags survive.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text sanitizes s for insertion as element content.
func (s *Sanitizer) Text(v string) template.HTML {
	return template.HTML(s.policy.Sanitize(v))
}

// Multiline sanitizes s and keeps its line breaks as <br>.
func (s *Sanitizer) Multiline(v string) template.HTML {
	lines := strings.Split(v, "\n")
	for i, l := range lines {
		lines[i] = s.policy.Sanitize(l)
	}
	return template.HTML(strings.Join(lines, "<br>"))
}

// SafeURL reports whether raw is an absolute http(s) URL.
func SafeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
