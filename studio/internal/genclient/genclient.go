// Package genclient is the content side of the generation boundary. Every
// call is a named action sent through a connectivity.Router and answered
// with a {success, ...} envelope. Title and description failures are
// replaced by deterministic fallbacks; thumbnail failures are not.
package genclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Actions understood by the background service.
const (
	ActionGenerateTitles      = "generateTitles"
	ActionGenerateThumbnails  = "generateThumbnails"
	ActionGenerateDescription = "generateDescription"
	ActionCheckAuth           = "checkAuth"
	ActionSignOut             = "signOut"
	ActionSyncAuth            = "syncAuthData"
)

// Caller sends a payload to a named service. *connectivity.Router
// satisfies it.
type Caller interface {
	Call(ctx context.Context, service string, payload []byte) ([]byte, error)
}

// Suggestion is one title suggestion.
type Suggestion struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Score int    `json:"score"`
}

// Thumbnail is one generated thumbnail.
type Thumbnail struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// DescriptionRequest asks for a description.
type DescriptionRequest struct {
	Idea     string   `json:"idea"`
	Keywords []string `json:"keywords"`
	Title    string   `json:"title"`
}

// FailureKind separates transport from API-reported failures.
type FailureKind string

const (
	KindHTTP FailureKind = "http"
	KindAPI  FailureKind = "api"
)

// Failure is the typed error of every call.
type Failure struct {
	Action      string
	Kind        FailureKind
	Code        string
	Message     string
	RawResponse json.RawMessage
	Err         error
}

func (f *Failure) Error() string {
	if f.Code != "" {
		return fmt.Sprintf("genclient: %s: %s error %s: %s", f.Action, f.Kind, f.Code, f.Message)
	}
	return fmt.Sprintf("genclient: %s: %s error: %s", f.Action, f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// Config configures a Client.
type Config struct {
	// Timeout bounds every call; expiry is a failure like any other.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client sends generation requests.
type Client struct {
	caller Caller
	cfg    Config
}

// New returns a Client over caller.
func New(caller Caller, cfg Config) *Client {
	cfg.defaults()
	return &Client{caller: caller, cfg: cfg}
}

type envelope struct {
	Success     bool            `json:"success"`
	Error       string          `json:"error"`
	Code        json.RawMessage `json:"code"`
	APIResponse json.RawMessage `json:"apiResponse"`
}

// Call sends action with the fields of req and decodes a successful
// envelope into resp. req may be nil.
func (c *Client) Call(ctx context.Context, action string, req, resp any) error {
	payload, err := withAction(action, req)
	if err != nil {
		return &Failure{Action: action, Kind: KindHTTP, Message: err.Error(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	raw, err := c.caller.Call(ctx, action, payload)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
		return &Failure{Action: action, Kind: KindHTTP, Message: err.Error(), Err: err}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &Failure{Action: action, Kind: KindHTTP, Message: "invalid response: " + err.Error(), RawResponse: raw, Err: err}
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "API returned error"
		}
		rawResp := env.APIResponse
		if len(rawResp) == 0 {
			rawResp = raw
		}
		return &Failure{Action: action, Kind: KindAPI, Code: codeString(env.Code), Message: msg, RawResponse: rawResp}
	}
	if resp != nil {
		if err := json.Unmarshal(raw, resp); err != nil {
			return &Failure{Action: action, Kind: KindHTTP, Message: "invalid response: " + err.Error(), RawResponse: raw, Err: err}
		}
	}
	return nil
}

func withAction(action string, req any) ([]byte, error) {
	fields := map[string]any{}
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", action, err)
		}
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, fmt.Errorf("encode %s: request is not an object: %w", action, err)
		}
	}
	fields["action"] = action
	return json.Marshal(fields)
}

func codeString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// Titles requests suggestions for text. On failure it returns the
// fallback set together with the failure.
func (c *Client) Titles(ctx context.Context, text string) ([]Suggestion, error) {
	var resp struct {
		Suggestions []Suggestion `json:"suggestions"`
	}
	err := c.Call(ctx, ActionGenerateTitles, map[string]string{"input": text}, &resp)
	if err == nil && len(resp.Suggestions) == 0 {
		err = &Failure{Action: ActionGenerateTitles, Kind: KindAPI, Message: "invalid response format"}
	}
	if err != nil {
		c.cfg.Logger.Info("genclient: titles failed, using fallback", "error", err)
		return FallbackTitles(text), err
	}
	return resp.Suggestions, nil
}

// Thumbnails requests thumbnails. Failures and empty results return an
// empty list; callers keep their loading state.
func (c *Client) Thumbnails(ctx context.Context, description string) ([]Thumbnail, error) {
	var resp struct {
		Thumbnails []Thumbnail `json:"thumbnails"`
	}
	if err := c.Call(ctx, ActionGenerateThumbnails, map[string]string{"description": description}, &resp); err != nil {
		c.cfg.Logger.Info("genclient: thumbnails failed", "error", err)
		return nil, err
	}
	return resp.Thumbnails, nil
}

// Description requests a description. On failure it returns the fallback
// for the request keywords at index, together with the failure.
func (c *Client) Description(ctx context.Context, req DescriptionRequest, index int) (string, error) {
	var resp struct {
		Description string `json:"description"`
	}
	err := c.Call(ctx, ActionGenerateDescription, req, &resp)
	if err == nil && resp.Description == "" {
		err = &Failure{Action: ActionGenerateDescription, Kind: KindAPI, Message: "invalid response from description API"}
	}
	if err != nil {
		c.cfg.Logger.Info("genclient: description failed, using fallback", "error", err)
		return FallbackDescription(req.Keywords, index), err
	}
	return resp.Description, nil
}

// AuthStatus is the checkAuth answer.
type AuthStatus struct {
	Authenticated bool   `json:"isAuthenticated"`
	Email         string `json:"email,omitempty"`
}

// CheckAuth asks the background whether a session is stored.
func (c *Client) CheckAuth(ctx context.Context) (AuthStatus, error) {
	var st AuthStatus
	err := c.Call(ctx, ActionCheckAuth, nil, &st)
	return st, err
}

// SignOut clears the stored session.
func (c *Client) SignOut(ctx context.Context) error {
	return c.Call(ctx, ActionSignOut, nil, nil)
}

// SyncAuth stores a token obtained elsewhere.
func (c *Client) SyncAuth(ctx context.Context, token string) error {
	return c.Call(ctx, ActionSyncAuth, map[string]string{"token": token}, nil)
}
