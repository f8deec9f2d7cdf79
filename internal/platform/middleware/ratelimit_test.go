package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestTokenBucket_BurstThenDeny(t *testing.T) {
	now := time.Now()
	b := newTokenBucket(1, 3, now)

	for i := 0; i < 3; i++ {
		if ok, _ := b.take(now); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, retry := b.take(now)
	if ok {
		t.Fatal("expected fourth request to be denied")
	}
	if retry < 1 {
		t.Errorf("expected positive retry-after, got %d", retry)
	}
}

func TestTokenBucket_Refills(t *testing.T) {
	now := time.Now()
	b := newTokenBucket(2, 1, now)
	b.take(now)

	if ok, _ := b.take(now.Add(600 * time.Millisecond)); !ok {
		t.Error("expected token to be refilled after 600ms at 2/s")
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l := newLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	start := time.Now()
	l.now = func() time.Time { return start }
	l.allow("a")
	l.allow("b")

	l.mu.Lock()
	l.sweepLocked(start.Add(2 * time.Minute))
	l.mu.Unlock()

	if l.size() != 0 {
		t.Errorf("expected idle buckets swept, %d remain", l.size())
	}
}

func runLimited(mw echo.MiddlewareFunc, userID string) (error, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set("user_id", userID)
	}
	return mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c), rec
}

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2})

	for i := 0; i < 2; i++ {
		if err, _ := runLimited(mw, ""); err != nil {
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
	}

	err, rec := runLimited(mw, "")
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimit_SeparateUsersSameIP(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})

	if err, _ := runLimited(mw, "user-a"); err != nil {
		t.Fatalf("user-a: %v", err)
	}
	if err, _ := runLimited(mw, "user-b"); err != nil {
		t.Fatalf("user-b should have its own bucket: %v", err)
	}
	if err, _ := runLimited(mw, "user-a"); err == nil {
		t.Fatal("expected user-a to be limited")
	}
}
