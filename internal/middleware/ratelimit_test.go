package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func limiterAt(start time.Time) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: start}
	rl := NewRateLimiter()
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterBurst(t *testing.T) {
	rl, _ := limiterAt(time.Date(2026, 7, 4, 9, 0, 0, 0, time.UTC))

	for i := 0; i < 5; i++ {
		if !rl.Allow("register:1.2.3.4", 5, time.Minute) {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	if rl.Allow("register:1.2.3.4", 5, time.Minute) {
		t.Error("request 6 allowed, want denied")
	}
	if !rl.Allow("register:5.6.7.8", 5, time.Minute) {
		t.Error("other key denied, want allowed")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl, clock := limiterAt(time.Date(2026, 7, 4, 9, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		rl.Allow("k", 3, 30*time.Second)
	}
	if rl.Allow("k", 3, 30*time.Second) {
		t.Fatal("allowed with an empty bucket")
	}

	clock.t = clock.t.Add(10 * time.Second)
	if !rl.Allow("k", 3, 30*time.Second) {
		t.Error("denied after one token refilled")
	}
	if rl.Allow("k", 3, 30*time.Second) {
		t.Error("allowed a second request after refilling only one token")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, clock := limiterAt(time.Date(2026, 7, 4, 9, 0, 0, 0, time.UTC))

	rl.Allow("idle", 5, time.Minute)
	clock.t = clock.t.Add(idleBucketTTL + time.Second)
	rl.Allow("active", 5, time.Minute)

	rl.Cleanup()

	if _, ok := rl.buckets["idle"]; ok {
		t.Error("idle bucket kept")
	}
	if _, ok := rl.buckets["active"]; !ok {
		t.Error("active bucket dropped")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter()
	h := RateLimit(rl, "register", 2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(forwardedFor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/register", nil)
		if forwardedFor != "" {
			req.Header.Set("X-Forwarded-For", forwardedFor)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send(""); rec.Code != http.StatusCreated {
			t.Fatalf("request %d status = %d, want 201", i+1, rec.Code)
		}
	}

	rec := send("")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want %q", got, "30")
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	if rec := send("203.0.113.9, 10.0.0.1"); rec.Code != http.StatusCreated {
		t.Errorf("other client status = %d, want 201", rec.Code)
	}
}

func TestRateLimitScopesAreIndependent(t *testing.T) {
	rl := NewRateLimiter()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	register := RateLimit(rl, "register", 1, time.Minute)(ok)
	upload := RateLimit(rl, "upload", 1, time.Minute)(ok)

	for _, h := range []http.Handler{register, upload} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := RealIP(req); got != "192.0.2.1" {
		t.Errorf("RealIP = %q, want %q", got, "192.0.2.1")
	}

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := RealIP(req); got != "198.51.100.7" {
		t.Errorf("RealIP = %q, want %q", got, "198.51.100.7")
	}

	req.Header.Set("CF-Connecting-IP", "203.0.113.5")
	if got := RealIP(req); got != "203.0.113.5" {
		t.Errorf("RealIP = %q, want %q", got, "203.0.113.5")
	}
}
