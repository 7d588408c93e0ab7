package shield

import "net/http"

// HeadToGet lets GET routes answer HEAD probes (/health) instead of 405.
// net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
