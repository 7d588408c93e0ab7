// Package observer injects the in-page agent into the studio tab and turns
// its binding calls into mutation messages. The agent is installed for
// every new document and re-evaluated after a document reset; both paths
// end with a ready message so the page controller rebuilds its state.
package observer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/tubemaster/idgen"
	"github.com/hazyhaar/tubemaster/studio/internal/locator"
	"github.com/hazyhaar/tubemaster/studio/internal/mutwatch"
	"github.com/hazyhaar/tubemaster/studio/internal/panel"
	"github.com/hazyhaar/tubemaster/studio/mutation"
)

// BindingName is the CDP binding the agent reports through.
const BindingName = "__tubemaster_binding"

//go:embed agent.js
var agentJS string

// Sink receives agent messages. page.Page satisfies it.
type Sink interface {
	Deliver(msg *mutation.Message)
}

// Config for creating an Observer.
type Config struct {
	Page   *rod.Page
	Sink   Sink
	Logger *slog.Logger
}

// Observer manages the agent on one tab.
type Observer struct {
	page   *rod.Page
	sink   Sink
	logger *slog.Logger
	script string

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	scriptID proto.PageScriptIdentifier
}

// New creates an Observer for the given tab.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Observer{
		page:   cfg.Page,
		sink:   cfg.Sink,
		logger: cfg.Logger,
		script: Script(),
	}
}

// Script returns the agent source with its configuration prelude.
func Script() string {
	conf, _ := json.Marshal(map[string]any{
		"binding":    BindingName,
		"attrs":      mutwatch.WatchedAttrs,
		"boundAttr":  locator.BoundAttr,
		"panelAttr":  panel.PanelAttr,
		"actionAttr": panel.ActionAttr,
		"argAttr":    panel.ArgAttr,
		"inputAttr":  panel.InputAttr,
	})
	return fmt.Sprintf("window.__tubemaster_config = %s;\n%s", conf, agentJS)
}

// Start installs the binding and the agent, then listens until ctx ends or
// Stop is called.
func (o *Observer) Start(ctx context.Context) error {
	o.mu.Lock()
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(o.page); err != nil {
		return fmt.Errorf("observer: add binding: %w", err)
	}
	res, err := proto.PageAddScriptToEvaluateOnNewDocument{Source: o.script}.Call(o.page)
	if err != nil {
		return fmt.Errorf("observer: install agent: %w", err)
	}
	o.mu.Lock()
	o.scriptID = res.Identifier
	o.mu.Unlock()

	if err := (proto.DOMEnable{}).Call(o.page); err != nil {
		o.logger.Warn("observer: DOM.enable failed", "error", err)
	}
	// documentUpdated only fires once the document has been requested.
	if _, err := (proto.DOMGetDocument{}).Call(o.page); err != nil {
		o.logger.Warn("observer: DOM.getDocument failed", "error", err)
	}

	go o.listen()

	return o.inject()
}

// Stop detaches the listeners and removes the agent from future documents.
func (o *Observer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
	if o.scriptID != "" {
		_ = proto.PageRemoveScriptToEvaluateOnNewDocument{Identifier: o.scriptID}.Call(o.page)
		o.scriptID = ""
	}
	_ = proto.RuntimeRemoveBinding{Name: BindingName}.Call(o.page)
}

// inject evaluates the agent in the current document. The agent ignores a
// second evaluation in the same document apart from re-announcing itself.
func (o *Observer) inject() error {
	_, err := proto.RuntimeEvaluate{Expression: o.script}.Call(o.page)
	if err != nil {
		return fmt.Errorf("observer: inject agent: %w", err)
	}
	o.logger.Debug("observer: agent injected")
	return nil
}

func (o *Observer) listen() {
	o.mu.Lock()
	ctx := o.ctx
	o.mu.Unlock()

	o.page.Context(ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != BindingName {
				return
			}
			o.handlePayload(e.Payload)
		},
		func(e *proto.DOMDocumentUpdated) {
			go o.handleDocReset()
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			o.sink.Deliver(&mutation.Message{Kind: mutation.KindNavigate, URL: e.Frame.URL})
		},
	)()
}

// handlePayload decodes one binding call and hands it to the sink.
func (o *Observer) handlePayload(payload string) {
	msg, err := mutation.ParseMessage([]byte(payload))
	if err != nil {
		o.logger.Warn("observer: bad agent payload", "error", err)
		return
	}
	if msg.Kind == mutation.KindMutations {
		// Pages without crypto.randomUUID send an empty or ad-hoc id.
		if id, err := idgen.Parse(msg.Batch.ID); err == nil {
			msg.Batch.ID = id
		} else {
			msg.Batch.ID = idgen.New()
		}
	}
	o.sink.Deliver(msg)
}

// handleDocReset re-arms the agent after the document was replaced in
// place (document.open/write); the new-document script does not run then.
func (o *Observer) handleDocReset() {
	o.logger.Info("observer: document updated (doc_reset)")
	o.sink.Deliver(&mutation.Message{Kind: mutation.KindDocReset})

	if _, err := (proto.DOMGetDocument{}).Call(o.page); err != nil {
		o.logger.Warn("observer: DOM.getDocument after reset failed", "error", err)
	}
	if err := o.inject(); err != nil {
		o.logger.Error("observer: re-inject failed", "error", err)
	}
}
