package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hazyhaar/tubemaster/kit"
)

type claimsKey struct{}

// Middleware extracts a Bearer control token. Valid claims are stored in the
// request context (GetClaims, kit.GetClient). Missing or invalid tokens pass
// through unauthenticated; RequireAuth enforces.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := ValidateToken(secret, tokenStr)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			ctx = kit.WithClient(ctx, claims.Client)
			ctx = kit.WithScope(ctx, claims.Scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims returns the control claims in ctx, or nil.
func GetClaims(ctx context.Context) *ControlClaims {
	c, _ := ctx.Value(claimsKey{}).(*ControlClaims)
	return c
}

// RequireAuth answers 401 when no valid control token was presented.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaims(r.Context()) == nil {
			deny(w, http.StatusUnauthorized, "control token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireWrite answers 403 for read-only tokens on state-changing routes.
func RequireWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := GetClaims(r.Context())
		if c == nil {
			deny(w, http.StatusUnauthorized, "control token required")
			return
		}
		if !c.CanWrite() {
			deny(w, http.StatusForbidden, "token scope is read-only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
