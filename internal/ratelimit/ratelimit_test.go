package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func requestFrom(ip string) *http.Request {
	r := httptest.NewRequest("GET", "/v1/operations", nil)
	r.Header.Set("X-Forwarded-For", ip)
	return r
}

// fixedClock lets tests move a MemoryStore's idea of now.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedStore() (*MemoryStore, *fixedClock) {
	clock := &fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.now
	return store, clock
}

func TestLimiterAllowsExactlyMaxRequests(t *testing.T) {
	store, _ := newClockedStore()
	l := New(Config{Window: time.Minute, MaxRequests: 10}, store)

	for i := 1; i <= 10; i++ {
		res := l.Check(requestFrom("10.0.0.1"))
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Count != i {
			t.Fatalf("request %d: expected count %d, got %d", i, i, res.Count)
		}
	}

	for i := 0; i < 3; i++ {
		res := l.Check(requestFrom("10.0.0.1"))
		if res.Allowed {
			t.Fatal("request over the limit should be denied")
		}
		if res.Count != 10 {
			t.Fatalf("denied requests must not increment the count, got %d", res.Count)
		}
		if res.Deny == nil || res.Deny.Status != http.StatusTooManyRequests {
			t.Fatalf("expected a 429 deny response, got %+v", res.Deny)
		}
	}
}

func TestLimiterDenyCarriesRetryAfter(t *testing.T) {
	store, _ := newClockedStore()
	l := New(Config{Window: time.Minute, MaxRequests: 1}, store)

	l.Check(requestFrom("10.0.0.2"))
	res := l.Check(requestFrom("10.0.0.2"))
	if res.Allowed {
		t.Fatal("second request should be denied")
	}
	if res.Deny.RetryAfter != time.Minute {
		t.Fatalf("expected Retry-After of 60s, got %s", res.Deny.RetryAfter)
	}
	if res.Deny.Body.RetryAfter != 60 {
		t.Fatalf("expected body retryAfter 60, got %d", res.Deny.Body.RetryAfter)
	}
}

func TestLimiterWindowReset(t *testing.T) {
	store, clock := newClockedStore()
	l := New(Config{Window: time.Minute, MaxRequests: 2}, store)

	l.Check(requestFrom("10.0.0.3"))
	l.Check(requestFrom("10.0.0.3"))
	if res := l.Check(requestFrom("10.0.0.3")); res.Allowed {
		t.Fatal("third request in window should be denied")
	}

	clock.advance(61 * time.Second)

	res := l.Check(requestFrom("10.0.0.3"))
	if !res.Allowed {
		t.Fatal("request after window expiry should be allowed")
	}
	if res.Count != 1 {
		t.Fatalf("new window should start at count 1, got %d", res.Count)
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	store, _ := newClockedStore()
	l := New(Config{Window: time.Minute, MaxRequests: 1}, store)

	if res := l.Check(requestFrom("10.0.0.4")); !res.Allowed {
		t.Fatal("first client should be allowed")
	}
	if res := l.Check(requestFrom("10.0.0.5")); !res.Allowed {
		t.Fatal("second client should have its own window")
	}
	if res := l.Check(requestFrom("10.0.0.4")); res.Allowed {
		t.Fatal("first client's second request should be denied")
	}
}

func TestDefaultKeyFunc(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := DefaultKeyFunc(r); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded-for entry, got %q", got)
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.9")
	if got := DefaultKeyFunc(r); got != "198.51.100.9" {
		t.Fatalf("expected real-ip fallback, got %q", got)
	}

	r = httptest.NewRequest("GET", "/", nil)
	if got := DefaultKeyFunc(r); got != "unknown" {
		t.Fatalf("expected shared unknown bucket, got %q", got)
	}
}

func TestPrefixedKeyFunc(t *testing.T) {
	kf := PrefixedKeyFunc("pdf", func(*http.Request) string { return "user-1" })
	if got := kf(httptest.NewRequest("GET", "/", nil)); got != "pdf_user-1" {
		t.Fatalf("expected pdf_user-1, got %q", got)
	}
}

func TestMemoryStoreSweepDropsExpired(t *testing.T) {
	store, clock := newClockedStore()
	ctx := context.Background()

	if _, err := store.Incr(ctx, "a", time.Minute, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Incr(ctx, "b", time.Hour, 5); err != nil {
		t.Fatal(err)
	}

	clock.advance(2 * time.Minute)
	if err := store.Sweep(ctx); err != nil {
		t.Fatal(err)
	}

	if _, _, ok, _ := store.Peek(ctx, "a"); ok {
		t.Fatal("expired entry should have been swept")
	}
	if _, _, ok, _ := store.Peek(ctx, "b"); !ok {
		t.Fatal("live entry should survive the sweep")
	}
}

func TestHeaderSet(t *testing.T) {
	resetAt := time.Unix(1750000000, 0)
	h := HeaderSet(10, 3, resetAt)
	if h["X-RateLimit-Limit"] != "10" {
		t.Fatalf("limit header: %q", h["X-RateLimit-Limit"])
	}
	if h["X-RateLimit-Remaining"] != "3" {
		t.Fatalf("remaining header: %q", h["X-RateLimit-Remaining"])
	}
	if h["X-RateLimit-Reset"] != "1750000000" {
		t.Fatalf("reset header: %q", h["X-RateLimit-Reset"])
	}
}
