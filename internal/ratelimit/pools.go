package ratelimit

import (
	"net/http"
	"time"
)

// Pools are the predefined limiters for the different traffic classes. The
// numbers are configuration defaults, not law; tune per deployment.
type Pools struct {
	// Strict guards sensitive operations: 5 requests per 15 minutes.
	Strict *Limiter
	// Moderate guards ordinary API endpoints: 20 requests per 10 minutes.
	Moderate *Limiter
	// Lenient is the general pool: 100 requests per 5 minutes.
	Lenient *Limiter
	// PDF bounds operation submissions per user: 10 per minute.
	PDF *Limiter
	// Auth bounds login attempts per IP: 5 per 15 minutes.
	Auth *Limiter
	// Payment bounds checkout/portal actions per user: 3 per minute.
	Payment *Limiter
}

// NewPools builds the pool table over one store. userOrIP extracts the
// authenticated user id when present, falling back to the client IP.
func NewPools(store Store, userOrIP func(r *http.Request) string) *Pools {
	return &Pools{
		Strict: New(Config{
			Window:      15 * time.Minute,
			MaxRequests: 5,
		}, store),
		Moderate: New(Config{
			Window:      10 * time.Minute,
			MaxRequests: 20,
		}, store),
		Lenient: New(Config{
			Window:      5 * time.Minute,
			MaxRequests: 100,
		}, store),
		PDF: New(Config{
			Window:      time.Minute,
			MaxRequests: 10,
			KeyFunc:     PrefixedKeyFunc("pdf", userOrIP),
			OnExceeded: Deny(time.Minute,
				"PDF operation rate limit exceeded",
				"You can perform up to 10 PDF operations per minute. Please wait before trying again."),
		}, store),
		Auth: New(Config{
			Window:      15 * time.Minute,
			MaxRequests: 5,
			KeyFunc:     PrefixedKeyFunc("auth", DefaultKeyFunc),
			OnExceeded: Deny(15*time.Minute,
				"Too many authentication attempts",
				"Too many login attempts. Please try again in 15 minutes."),
		}, store),
		Payment: New(Config{
			Window:      time.Minute,
			MaxRequests: 3,
			KeyFunc:     PrefixedKeyFunc("payment", userOrIP),
			OnExceeded: Deny(time.Minute,
				"Payment rate limit exceeded",
				"Too many payment attempts. Please wait before trying again."),
		}, store),
	}
}
