// Package ratelimit implements fixed-window request limiting keyed by client
// identity. Counters live in an injectable Store so a shared backend (Redis)
// can replace the per-process map without changing call sites.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config describes one limiter pool.
type Config struct {
	Window      time.Duration
	MaxRequests int
	// KeyFunc derives the client identity for a request. Defaults to
	// DefaultKeyFunc (first forwarded-for IP).
	KeyFunc func(r *http.Request) string
	// OnExceeded builds the deny response. Defaults to a generic 429 payload.
	OnExceeded func(r *http.Request, resetAt time.Time) *DenyResponse
	// FailOpen admits requests when the store errors. Default is to deny,
	// which is the safe choice for a shared store outage.
	FailOpen bool
}

// DenyResponse is the client-facing rejection for an exceeded limit.
type DenyResponse struct {
	Status     int
	RetryAfter time.Duration
	Body       DenyBody
}

// DenyBody is the JSON payload sent with a 429.
type DenyBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// Result is the outcome of a single Check call.
type Result struct {
	Allowed bool
	Count   int
	ResetAt time.Time
	Deny    *DenyResponse
}

// Limiter applies a fixed-window counter per key.
type Limiter struct {
	cfg   Config
	store Store
}

// New returns a limiter over the given store. Zero-value config fields are
// filled with defaults.
func New(cfg Config, store Store) *Limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = DefaultKeyFunc
	}
	if cfg.OnExceeded == nil {
		cfg.OnExceeded = genericDeny(cfg.Window)
	}
	return &Limiter{cfg: cfg, store: store}
}

// Check counts the request against its window. Within one window exactly
// MaxRequests calls for the same key are allowed; the rest are denied with a
// deny response built by OnExceeded.
func (l *Limiter) Check(r *http.Request) Result {
	key := l.cfg.KeyFunc(r)

	d, err := l.store.Incr(r.Context(), key, l.cfg.Window, l.cfg.MaxRequests)
	if err != nil {
		if l.cfg.FailOpen {
			return Result{Allowed: true, Count: 0, ResetAt: time.Now().Add(l.cfg.Window)}
		}
		resetAt := time.Now().Add(l.cfg.Window)
		return Result{Allowed: false, ResetAt: resetAt, Deny: l.cfg.OnExceeded(r, resetAt)}
	}

	if !d.Allowed {
		return Result{Allowed: false, Count: d.Count, ResetAt: d.ResetAt, Deny: l.cfg.OnExceeded(r, d.ResetAt)}
	}
	return Result{Allowed: true, Count: d.Count, ResetAt: d.ResetAt}
}

// Headers reports the current limit state for a request without counting it,
// for annotating responses.
func (l *Limiter) Headers(r *http.Request) map[string]string {
	key := l.cfg.KeyFunc(r)
	count, resetAt, ok, err := l.store.Peek(r.Context(), key)
	if err != nil || !ok {
		return HeaderSet(l.cfg.MaxRequests, l.cfg.MaxRequests, time.Now().Add(l.cfg.Window))
	}
	remaining := l.cfg.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return HeaderSet(l.cfg.MaxRequests, remaining, resetAt)
}

// MaxRequests exposes the configured ceiling (used when building headers for
// a just-checked request).
func (l *Limiter) MaxRequests() int { return l.cfg.MaxRequests }

// HeaderSet builds the standard X-RateLimit-* trio.
func HeaderSet(limit, remaining int, resetAt time.Time) map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(limit),
		"X-RateLimit-Remaining": strconv.Itoa(remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(resetAt.Unix(), 10),
	}
}

// DefaultKeyFunc resolves the client identity from the forwarded-for chain,
// then the real-IP header, then a shared "unknown" bucket. The shared bucket
// is a documented weakness: clients without identity contend for one window.
func DefaultKeyFunc(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return "unknown"
}

// PrefixedKeyFunc namespaces an identity extractor, isolating quota pools per
// concern (pdf_<id>, payment_<id>, auth_<ip>).
func PrefixedKeyFunc(prefix string, extract func(r *http.Request) string) func(r *http.Request) string {
	return func(r *http.Request) string {
		return prefix + "_" + extract(r)
	}
}

func genericDeny(window time.Duration) func(*http.Request, time.Time) *DenyResponse {
	return func(_ *http.Request, _ time.Time) *DenyResponse {
		secs := int(window / time.Second)
		return &DenyResponse{
			Status:     http.StatusTooManyRequests,
			RetryAfter: window,
			Body: DenyBody{
				Error:      "Too many requests",
				Message:    "Rate limit exceeded. Please try again later.",
				RetryAfter: secs,
			},
		}
	}
}

// Deny builds a pool-specific deny response with a custom error and message.
func Deny(window time.Duration, errCode, message string) func(*http.Request, time.Time) *DenyResponse {
	return func(_ *http.Request, _ time.Time) *DenyResponse {
		secs := int(window / time.Second)
		return &DenyResponse{
			Status:     http.StatusTooManyRequests,
			RetryAfter: window,
			Body:       DenyBody{Error: errCode, Message: message, RetryAfter: secs},
		}
	}
}

// Store is the counter backend. Incr performs the whole fixed-window
// read-modify-write for one key as an effectively atomic unit: start a fresh
// window when the entry is absent or expired, deny without incrementing once
// the count reaches max.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration, max int) (Decision, error)
	// Peek reports the live entry for key without mutating it. ok is false
	// when no unexpired entry exists.
	Peek(ctx context.Context, key string) (count int, resetAt time.Time, ok bool, err error)
	Delete(ctx context.Context, key string) error
	// Sweep drops expired entries. Best-effort housekeeping; expired entries
	// are already treated as fresh on next access.
	Sweep(ctx context.Context) error
}

// Decision is the store-level outcome of an Incr.
type Decision struct {
	Allowed bool
	Count   int
	ResetAt time.Time
}
