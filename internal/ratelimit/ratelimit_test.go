package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestLimiterAllow(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	key := "203.0.113.9"

	// Should allow burst size requests immediately
	for i := 0; i < 5; i++ {
		if !limiter.Allow(key) {
			t.Errorf("Request %d should be allowed (within burst)", i)
		}
	}

	// Next request should be denied
	if limiter.Allow(key) {
		t.Error("Request after burst should be denied")
	}

	// Wait for token replenishment (1 second = 1 token at 60/min)
	time.Sleep(time.Second)

	// Should allow again
	if !limiter.Allow(key) {
		t.Error("Request after waiting should be allowed")
	}
}

func TestLimiterMultipleClients(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	// Voter A uses up their tokens
	for i := 0; i < 3; i++ {
		limiter.Allow("203.0.113.10")
	}

	// Voter A is now rate limited
	if limiter.Allow("203.0.113.10") {
		t.Error("Voter A should be rate limited")
	}

	// Voter B should still have tokens
	if !limiter.Allow("203.0.113.11") {
		t.Error("Voter B should not be rate limited")
	}
}

func TestLimiterTokenReplenishment(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 600, // 10 per second
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	key := "203.0.113.12"

	// Use the one token
	if !limiter.Allow(key) {
		t.Error("First request should be allowed")
	}

	// Should be denied
	if limiter.Allow(key) {
		t.Error("Second immediate request should be denied")
	}

	// Wait 100ms (should get 1 token at 10/sec)
	time.Sleep(110 * time.Millisecond)

	// Should be allowed again
	if !limiter.Allow(key) {
		t.Error("Request after 100ms should be allowed")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestsPerMinute != 60 {
		t.Errorf("Expected 60 requests/min, got %d", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 10 {
		t.Errorf("Expected burst size 10, got %d", cfg.BurstSize)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("Expected 1 minute cleanup interval, got %v", cfg.CleanupInterval)
	}
}

func TestStrictConfig(t *testing.T) {
	cfg := StrictConfig()

	if cfg.RequestsPerMinute >= DefaultConfig().RequestsPerMinute {
		t.Error("Strict limit should be tighter than the default")
	}
	if cfg.BurstSize >= DefaultConfig().BurstSize {
		t.Error("Strict burst should be smaller than the default")
	}
}

func TestMiddlewareSessionBuckets(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := New(Config{
		RequestsPerMinute: 10,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.String(200, "ok") })

	do := func(token string) int {
		req := httptest.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = "203.0.113.9:52100"
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("voter-one-session-token"); code != 200 {
		t.Fatalf("first request for session one: expected 200, got %d", code)
	}
	if code := do("voter-one-session-token"); code != 429 {
		t.Errorf("second request for session one: expected 429, got %d", code)
	}

	// A different session behind the same address gets its own bucket.
	if code := do("voter-two-session-token"); code != 200 {
		t.Errorf("first request for session two: expected 200, got %d", code)
	}
}
