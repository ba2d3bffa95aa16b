package auth

import "net/http"

// Middleware wraps next with the same API key check the gRPC interceptor
// performs, reading the key from the named HTTP header. Paths in open are
// served without a key (health probes, metrics scrapes).
func Middleware(mode, header, key string, next http.Handler, open ...string) http.Handler {
	if !enforced(mode, key) {
		return next
	}
	skip := make(map[string]bool, len(open))
	for _, p := range open {
		skip[p] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !keyMatches(r.Header.Get(header), key) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
