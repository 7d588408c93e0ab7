// Package mutwatch turns what the in-page agent observes into rescan
// requests: mutation batches are classified by urgency, edit-affordance
// clicks and navigations schedule bursts, and periodic ticks cover what
// observation misses. All of it leaves through one Scheduler channel.
package mutwatch

import (
	"strings"

	"github.com/hazyhaar/tubemaster/studio/mutation"
)

// Urgency orders rescan requests.
type Urgency int

const (
	None Urgency = iota
	Normal
	High
)

func (u Urgency) String() string {
	switch u {
	case High:
		return "high"
	case Normal:
		return "normal"
	default:
		return "none"
	}
}

// WatchedAttrs is the agent's attributeFilter.
var WatchedAttrs = []string{"aria-modal", "style", "class", "role", "open"}

var (
	modalTags    = []string{"ytcp-dialog", "ytcp-uploads-dialog", "tp-yt-paper-dialog", "dialog"}
	modalClasses = []string{"ytcp-dialog", "ytcp-uploads-dialog", "ytcp-video-metadata-editor"}
)

// IsModalNode reports whether n carries a dialog signature.
func IsModalNode(n mutation.NodeInfo) bool {
	for _, t := range modalTags {
		if n.Tag == t {
			return true
		}
	}
	switch strings.ToLower(n.Role) {
	case "dialog", "alertdialog":
		return true
	}
	if strings.EqualFold(n.AriaModal, "true") {
		return true
	}
	for _, c := range strings.Fields(n.Class) {
		for _, mc := range modalClasses {
			if c == mc {
				return true
			}
		}
	}
	return false
}

// Classify returns the urgency of a batch. Records inside extension panels
// and on data-ttg-* attributes are the daemon's own writes and never count.
func Classify(b *mutation.Batch) Urgency {
	if b == nil {
		return None
	}
	u := None
	for _, r := range b.Records {
		if r.Target.InPanel {
			continue
		}
		switch r.Op {
		case mutation.OpChildList:
			added := 0
			for _, n := range r.Added {
				if n.InPanel {
					continue
				}
				added++
				if IsModalNode(n) {
					return High
				}
			}
			if added > 0 || r.Removed > 0 {
				u = Normal
			}
		case mutation.OpAttributes:
			if strings.HasPrefix(r.Attr, "data-ttg-") || !watched(r.Attr) {
				continue
			}
			if IsModalNode(r.Target) {
				return High
			}
			u = Normal
		}
	}
	return u
}

func watched(attr string) bool {
	for _, a := range WatchedAttrs {
		if a == attr {
			return true
		}
	}
	return false
}

// IsEditAffordance reports whether a click likely opens the metadata editor.
func IsEditAffordance(c mutation.Click) bool {
	n := c.Target
	if n.InPanel {
		return false
	}
	text := strings.ToLower(n.Text)
	label := strings.ToLower(n.AriaLabel)
	id := strings.ToLower(n.ID)
	class := strings.ToLower(n.Class)
	return containsAny(text, "edit", "create", "upload", "video") ||
		containsAny(label, "edit", "create", "upload") ||
		containsAny(id, "edit", "create") ||
		containsAny(class, "edit", "create")
}

func containsAny(s string, words ...string) bool {
	if s == "" {
		return false
	}
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
