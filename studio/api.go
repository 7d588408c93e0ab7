package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/tubemaster/auth"
	"github.com/hazyhaar/tubemaster/kit"
	"github.com/hazyhaar/tubemaster/shield"
	"github.com/hazyhaar/tubemaster/studio/internal/authgate"
	"github.com/hazyhaar/tubemaster/studio/internal/genclient"
	"github.com/hazyhaar/tubemaster/studio/internal/page"
)

// ControlHandler returns the control API. Every /api route needs a control
// token signed with secret; routes that change studio state need the
// write scope. rl may be nil.
func (e *Engine) ControlHandler(secret []byte, rl *shield.RateLimiter) http.Handler {
	eps := e.endpoints()

	r := chi.NewRouter()
	for _, mw := range shield.ControlStack(rl) {
		r.Use(mw)
	}
	r.Use(auth.Middleware(secret))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "attached": e.current() != nil})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/status", serve[emptyReq](eps.status))
		r.Get("/descriptions/current", func(w http.ResponseWriter, r *http.Request) {
			call(w, r, eps.history, &historyReq{Direction: "current"})
		})
		r.Get("/descriptions/host", func(w http.ResponseWriter, r *http.Request) {
			md, _ := strconv.ParseBool(r.URL.Query().Get("markdown"))
			call(w, r, eps.read, &readReq{Markdown: md})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireWrite)

			r.Post("/auth/token", serve[tokenReq](eps.storeToken))
			r.Post("/auth/signout", serve[emptyReq](eps.signOut))
			r.Post("/titles", serve[suggestReq](eps.suggestTitles))
			r.Post("/titles/populate", serve[populateReq](eps.populateTitle))
			r.Post("/descriptions", serve[describeReq](eps.generateDescription))
			r.Post("/descriptions/insert", serve[emptyReq](eps.insert))
			r.Post("/descriptions/{dir}", func(w http.ResponseWriter, r *http.Request) {
				call(w, r, eps.history, &historyReq{Direction: chi.URLParam(r, "dir")})
			})
			r.Post("/thumbnails", serve[thumbnailsReq](eps.generateThumbnails))
			r.Post("/rescan", serve[emptyReq](eps.rescan))
		})
	})
	return r
}

// serve decodes an optional JSON body into a T and calls ep.
func serve[T any](ep kit.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(T)
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
				return
			}
		}
		call(w, r, ep, req)
	}
}

func call(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, req any) {
	ctx := kit.WithTransport(r.Context(), "http")
	resp, err := ep(ctx, req)
	if err != nil {
		code := errorStatus(err)
		if code >= http.StatusInternalServerError {
			shield.GetLogger(ctx).Warn("studio: request failed", "status", code, "error", err)
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// errorStatus maps operation errors to HTTP codes.
func errorStatus(err error) int {
	var fail *genclient.Failure
	switch {
	case errors.Is(err, ErrNoPage), errors.Is(err, page.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusForbidden
	case errors.Is(err, ErrNoField), errors.Is(err, ErrNoKeywords),
		errors.Is(err, ErrNothingToInsert), errors.Is(err, ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, authgate.ErrEmptyToken), errors.Is(err, errBadDirection):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &fail):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// ServeControl runs the control server on the configured address until ctx
// is cancelled. It does nothing when no secret is configured.
func (e *Engine) ServeControl(ctx context.Context) error {
	secret := []byte(e.cfg.Control.Secret)
	if len(secret) == 0 {
		e.logger.Info("studio: control server disabled (no secret)")
		return nil
	}
	rl, err := shield.NewRateLimiter(ctx, e.db)
	if err != nil {
		return fmt.Errorf("studio: %w", err)
	}
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				rl.GC()
			}
		}
	}()

	srv := &http.Server{
		Addr:              e.cfg.Control.Listen,
		Handler:           e.ControlHandler(secret, rl),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		e.logger.Info("studio: control server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("studio: control server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// MintControlToken signs a control token for client. scope is "read" or
// "write".
func (e *Engine) MintControlToken(client, scope string, ttl time.Duration) (string, error) {
	if scope != "read" && scope != "write" {
		return "", fmt.Errorf("studio: scope must be read or write, got %q", scope)
	}
	return auth.GenerateToken([]byte(e.cfg.Control.Secret), &auth.ControlClaims{Client: client, Scope: scope}, ttl)
}
