// Package mutation defines the messages the in-page agent sends to the
// daemon over the CDP binding: mutation batches, clicks, field input, panel
// actions and navigation signals. Tests and fixture replays build the same
// values directly.
package mutation

// Kind tags a Message.
type Kind string

const (
	KindMutations Kind = "mutations"
	KindClick     Kind = "click"
	KindInput     Kind = "input"
	KindAction    Kind = "action"
	KindNavigate  Kind = "navigate"
	KindDocReset  Kind = "doc_reset"
	KindReady     Kind = "ready"
)

// Op is the MutationObserver record type.
type Op string

const (
	OpChildList  Op = "childList"
	OpAttributes Op = "attributes"
	OpText       Op = "characterData"
)

// NodeInfo is the part of a node the classifier looks at.
type NodeInfo struct {
	Tag       string `json:"tag"` // lower case
	ID        string `json:"id,omitempty"`
	Class     string `json:"class,omitempty"`
	Role      string `json:"role,omitempty"`
	AriaLabel string `json:"aria_label,omitempty"`
	AriaModal string `json:"aria_modal,omitempty"`
	Open      bool   `json:"open,omitempty"`
	// Text is the first 100 characters of textContent (clicks only).
	Text string `json:"text,omitempty"`
	// InPanel is set when the node lies inside a [data-ttg-panel] root.
	InPanel bool `json:"in_panel,omitempty"`
}

// Record is one MutationObserver record.
type Record struct {
	Op       Op         `json:"op"`
	Target   NodeInfo   `json:"target"`
	Added    []NodeInfo `json:"added,omitempty"`
	Removed  int        `json:"removed,omitempty"`
	Attr     string     `json:"attr,omitempty"`
	OldValue string     `json:"old_value,omitempty"`
}

// Batch is every record delivered by one MutationObserver callback.
type Batch struct {
	ID        string   `json:"id"`
	Seq       uint64   `json:"seq"` // per page, from the agent
	Records   []Record `json:"records"`
	Timestamp int64    `json:"timestamp"` // epoch ms
}

// Click is a document-level click, captured before the host handles it.
type Click struct {
	Target NodeInfo `json:"target"`
}

// Input is an input event on a field the daemon has bound.
type Input struct {
	Field string `json:"field"` // "title" or "description"
	Value string `json:"value"`
}

// Action is a click or input inside an extension panel.
type Action struct {
	Panel  string `json:"panel"`  // panel kind
	Action string `json:"action"` // data-ttg-action
	Arg    string `json:"arg,omitempty"`
	Value  string `json:"value,omitempty"` // companion input value, if any
}

// Message is one binding payload. Exactly one of the pointer fields matches
// Kind; URL is set for navigate, doc_reset and ready.
type Message struct {
	Kind   Kind    `json:"kind"`
	URL    string  `json:"url,omitempty"`
	Batch  *Batch  `json:"batch,omitempty"`
	Click  *Click  `json:"click,omitempty"`
	Input  *Input  `json:"input,omitempty"`
	Action *Action `json:"action,omitempty"`
}
