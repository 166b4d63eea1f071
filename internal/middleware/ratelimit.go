package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"app/internal/ratelimit"
)

// RateLimit rejects requests over the pool's fixed-window budget with a 429
// and annotates admitted requests with the X-RateLimit-* headers.
func RateLimit(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.Check(r)

			if !res.Allowed {
				deny := res.Deny
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(deny.RetryAfter.Seconds())))
				for k, v := range ratelimit.HeaderSet(l.MaxRequests(), 0, res.ResetAt) {
					w.Header().Set(k, v)
				}
				w.WriteHeader(deny.Status)
				_ = json.NewEncoder(w).Encode(deny.Body)
				return
			}

			remaining := l.MaxRequests() - res.Count
			if remaining < 0 {
				remaining = 0
			}
			for k, v := range ratelimit.HeaderSet(l.MaxRequests(), remaining, res.ResetAt) {
				w.Header().Set(k, v)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserOrIP keys product limiters by authenticated user when available so a
// user's budget follows them across addresses.
func UserOrIP(r *http.Request) string {
	if id := UserID(r); id != "" {
		return id
	}
	return ratelimit.DefaultKeyFunc(r)
}
