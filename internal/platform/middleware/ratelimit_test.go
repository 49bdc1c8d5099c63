package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func serve(e *echo.Echo, h echo.HandlerFunc, ip string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 5; i++ {
		rec, err := serve(e, handler, "10.0.0.1")
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		if _, err := serve(e, handler, "10.0.0.1"); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	rec, err := serve(e, handler, "10.0.0.1")
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	retry, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if convErr != nil || retry < 1 {
		t.Errorf("expected positive Retry-After, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("expected X-RateLimit-Remaining 0")
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	if _, err := serve(e, handler, "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	if _, err := serve(e, handler, "10.0.0.1"); err == nil {
		t.Fatal("expected second request from the same client to be limited")
	}
	if _, err := serve(e, handler, "10.0.0.2"); err != nil {
		t.Fatalf("other client should not be limited: %v", err)
	}
}

func TestLimiterStore_DropsIdleClients(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 30, 0, 0, time.UTC)
	s := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	s.now = func() time.Time { return now }
	s.lastGC = now

	s.get("a")
	s.get("b")
	now = now.Add(2 * time.Minute)
	s.get("c")

	if n := s.size(); n != 1 {
		t.Errorf("expected idle clients to be dropped, have %d", n)
	}
}
