// Package background is the privileged side of the generation boundary. It
// registers one local connectivity handler per action; only these handlers
// hold the account token and talk to the TubeMaster API.
package background

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/tubemaster/connectivity"
	"github.com/hazyhaar/tubemaster/horosafe"
	"github.com/hazyhaar/tubemaster/studio/internal/authgate"
	"github.com/hazyhaar/tubemaster/studio/internal/genclient"
)

// ErrNotAuthenticated is reported when no usable account token is stored.
var ErrNotAuthenticated = errors.New("background: user not authenticated")

// Gate is the session store the service reads and updates.
type Gate interface {
	Token() string
	Snapshot() authgate.Snapshot
	Store(ctx context.Context, token, email string) error
	Clear(ctx context.Context) error
}

// Config configures a Service.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// AllowLoopback accepts a loopback BaseURL (local API stubs).
	AllowLoopback bool
	Client        *http.Client
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.tubemaster.ai/api"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.UserAgent == "" {
		c.UserAgent = "TubeMaster-Extension/1.2"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Service answers generation and auth actions.
type Service struct {
	cfg  Config
	gate Gate
}

// New validates the API base URL and returns a Service.
func New(gate Gate, cfg Config) (*Service, error) {
	cfg.defaults()
	var opts []horosafe.URLOption
	if cfg.AllowLoopback {
		opts = append(opts, horosafe.AllowLoopback())
	}
	if err := horosafe.ValidateURL(cfg.BaseURL, opts...); err != nil {
		return nil, fmt.Errorf("background: api base url: %w", err)
	}
	return &Service{cfg: cfg, gate: gate}, nil
}

// Handlers returns the handler of every action, keyed by action name.
func (s *Service) Handlers() map[string]connectivity.Handler {
	return map[string]connectivity.Handler{
		genclient.ActionGenerateTitles:      s.handle(s.generateTitles),
		genclient.ActionGenerateThumbnails:  s.handle(s.generateThumbnails),
		genclient.ActionGenerateDescription: s.handle(s.generateDescription),
		genclient.ActionCheckAuth:           s.handle(s.checkAuth),
		genclient.ActionSignOut:             s.handle(s.signOut),
		genclient.ActionSyncAuth:            s.handle(s.syncAuth),
	}
}

// Register installs the local handlers on router.
func (s *Service) Register(router *connectivity.Router) {
	for name, h := range s.Handlers() {
		router.RegisterLocal(name, h)
	}
}

// apiError carries the API's own failure envelope.
type apiError struct {
	message  string
	code     string
	response json.RawMessage
}

func (e *apiError) Error() string { return e.message }

type action func(ctx context.Context, req json.RawMessage) (map[string]any, error)

// handle turns every outcome into an envelope. Failures are answers, not
// transport errors, so they reach the caller with their code intact.
func (s *Service) handle(fn action) connectivity.Handler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		out, err := fn(ctx, payload)
		if err != nil {
			env := map[string]any{"success": false, "error": err.Error()}
			var ae *apiError
			if errors.As(err, &ae) {
				env["error"] = ae.message
				if ae.code != "" {
					env["code"] = ae.code
				}
				if len(ae.response) > 0 {
					env["apiResponse"] = ae.response
				}
			}
			return json.Marshal(env)
		}
		if out == nil {
			out = map[string]any{}
		}
		out["success"] = true
		return json.Marshal(out)
	}
}

func (s *Service) generateTitles(ctx context.Context, payload json.RawMessage) (map[string]any, error) {
	var req struct {
		Input string `json:"input"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("background: decode generateTitles: %w", err)
	}
	var resp struct {
		Suggestions []genclient.Suggestion `json:"suggestions"`
	}
	if err := s.post(ctx, "/generate-titles", map[string]string{"title": req.Input}, &resp); err != nil {
		return nil, err
	}
	return map[string]any{"suggestions": resp.Suggestions}, nil
}

func (s *Service) generateThumbnails(ctx context.Context, payload json.RawMessage) (map[string]any, error) {
	var req struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("background: decode generateThumbnails: %w", err)
	}
	var resp struct {
		Thumbnails []genclient.Thumbnail `json:"thumbnails"`
	}
	if err := s.post(ctx, "/generate-thumbnails", map[string]string{"description": req.Description}, &resp); err != nil {
		return nil, err
	}
	return map[string]any{"thumbnails": resp.Thumbnails}, nil
}

func (s *Service) generateDescription(ctx context.Context, payload json.RawMessage) (map[string]any, error) {
	var req genclient.DescriptionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("background: decode generateDescription: %w", err)
	}
	var resp struct {
		Description string `json:"description"`
	}
	if err := s.post(ctx, "/generate-description", req, &resp); err != nil {
		return nil, err
	}
	return map[string]any{"description": resp.Description}, nil
}

func (s *Service) checkAuth(_ context.Context, _ json.RawMessage) (map[string]any, error) {
	snap := s.gate.Snapshot()
	out := map[string]any{"isAuthenticated": snap.Authenticated}
	if snap.Email != "" {
		out["email"] = snap.Email
	}
	return out, nil
}

func (s *Service) signOut(ctx context.Context, _ json.RawMessage) (map[string]any, error) {
	if err := s.gate.Clear(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

// syncAuth stores the token. An empty token means the account signed out
// elsewhere.
func (s *Service) syncAuth(ctx context.Context, payload json.RawMessage) (map[string]any, error) {
	var req struct {
		Token string `json:"token"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("background: decode syncAuthData: %w", err)
	}
	if strings.TrimSpace(req.Token) == "" {
		return nil, s.gate.Clear(ctx)
	}
	return nil, s.gate.Store(ctx, req.Token, req.Email)
}

// post calls the API. Non-2xx statuses and success:false bodies are errors.
func (s *Service) post(ctx context.Context, path string, body, out any) error {
	token := s.gate.Token()
	if token == "" {
		return ErrNotAuthenticated
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("background: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("background: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("background: %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
	if err != nil {
		return fmt.Errorf("background: %s: read response: %w", path, err)
	}
	s.cfg.Logger.Debug("background: api call", "path", path, "status", resp.StatusCode, "duration", time.Since(start))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("background: %s: API responded with status %d", path, resp.StatusCode)
	}

	var env struct {
		Success *bool           `json:"success"`
		Error   string          `json:"error"`
		Code    json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("background: %s: invalid response: %w", path, err)
	}
	if env.Success != nil && !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = "API returned error"
		}
		code := strings.Trim(string(env.Code), `"`)
		if code == "" || code == "null" {
			code = "UNKNOWN_ERROR"
		}
		return &apiError{message: msg, code: code, response: data}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("background: %s: invalid response: %w", path, err)
	}
	return nil
}
