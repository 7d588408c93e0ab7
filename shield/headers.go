package shield

import "net/http"

// HeaderConfig defines the security headers applied to every response.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	CacheControl        string
}

// DefaultHeaders suits a JSON-only API: nothing may be framed or executed.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
		CacheControl:        "no-store",
	}
}

// SecurityHeaders sets the non-empty headers of cfg on every response.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	headers := [][2]string{
		{"Content-Security-Policy", cfg.CSP},
		{"X-Frame-Options", cfg.XFrameOptions},
		{"X-Content-Type-Options", cfg.XContentTypeOptions},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Cache-Control", cfg.CacheControl},
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range headers {
				if h[1] != "" {
					w.Header().Set(h[0], h[1])
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
