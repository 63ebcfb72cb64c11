package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 5) // 10 per minute, burst of 5
	defer rl.Stop()

	userID := uuid.New()

	for i := 0; i < 5; i++ {
		if !rl.Allow(userID) {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if rl.Allow(userID) {
		t.Error("Request 6 should be rate limited")
	}
}

func TestRateLimiter_DifferentUsers(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 3)
	defer rl.Stop()

	user1 := uuid.New()
	user2 := uuid.New()

	for i := 0; i < 3; i++ {
		if !rl.Allow(user1) {
			t.Errorf("User1 request %d should be allowed", i+1)
		}
	}
	if rl.Allow(user1) {
		t.Error("User1 should be rate limited")
	}

	for i := 0; i < 3; i++ {
		if !rl.Allow(user2) {
			t.Errorf("User2 request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiterWithConfig(0, 0)
	rl.Stop()
	rl.Stop()
	if rl.burstSize != DefaultBurstSize || rl.requestsPerMinute != DefaultRateLimit {
		t.Errorf("Expected defaults for non-positive config, got %d/%d", rl.requestsPerMinute, rl.burstSize)
	}
}

func TestRateLimitMiddleware_SkipsAnonymous(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiterWithConfig(1, 1)
	defer rl.Stop()

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := RateLimitMiddleware(rl)(handler)(c); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("Request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_LimitsPerUser(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiterWithConfig(10, 2)
	defer rl.Stop()

	userID := uuid.New()
	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}

	call := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/expenses", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		SetUserID(c, userID)
		if err := RateLimitMiddleware(rl)(handler)(c); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		return rec
	}

	for i := 0; i < 2; i++ {
		rec := call()
		if rec.Code != http.StatusOK {
			t.Errorf("Request %d: expected 200, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "10" {
			t.Errorf("Request %d: expected X-RateLimit-Limit 10, got %q", i+1, rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	rec := call()
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}

func TestRequireAdminKey(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		header     string
		wantStatus int
	}{
		{"disabled without key", "", "anything", http.StatusForbidden},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"wrong key", "s3cret", "guess", http.StatusForbidden},
		{"correct key", "s3cret", "s3cret", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sweeps/renewal", nil)
			if tt.header != "" {
				req.Header.Set(AdminKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := RequireAdminKey(tt.key)(func(c echo.Context) error {
				return c.NoContent(http.StatusNoContent)
			})(c)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}
