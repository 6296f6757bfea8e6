package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/feedbackbot/internal/model"
)

func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	var buf bytes.Buffer
	rl := NewRateLimiter(cfg, newTestLogger(&buf))
	t.Cleanup(rl.Stop)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/feedback", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestPerMinute(t *testing.T) {
	limit, burst := PerMinute(120)
	if limit != rate.Limit(2) || burst != 120 {
		t.Errorf("PerMinute(120) = (%v, %d), want (2, 120)", limit, burst)
	}

	limit, _ = PerMinute(0)
	if limit != rate.Inf {
		t.Errorf("PerMinute(0) = %v, want Inf", limit)
	}
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		APIRate: 2, APIBurst: 5, WebhookRate: 1, WebhookBurst: 1, CleanupInterval: time.Minute,
	})
	handler := rl.APIMiddleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.1:1234"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		APIRate: 0.5, APIBurst: 2, WebhookRate: 1, WebhookBurst: 1, CleanupInterval: time.Minute,
	})
	handler := rl.APIMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:1234"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:1234"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter != 2 {
		t.Errorf("Retry-After = %q, want 2", w.Header().Get("Retry-After"))
	}

	var body Envelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != http.StatusTooManyRequests || body.Status != model.ErrCodeRateLimited {
		t.Errorf("body = %+v", body)
	}
}

// 別クライアントの消費は影響しない（ポートは無視してIPで識別する）
func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		APIRate: 0.1, APIBurst: 1, WebhookRate: 1, WebhookBurst: 1, CleanupInterval: time.Minute,
	})
	handler := rl.APIMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:1111"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:2222"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("same IP different port: status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.2:1111"))
	if w.Code != http.StatusOK {
		t.Errorf("other IP: status = %d, want 200", w.Code)
	}

	if rl.APILimiterCount() != 2 {
		t.Errorf("APILimiterCount() = %d, want 2", rl.APILimiterCount())
	}
}

func TestRateLimitMiddleware_WebhookIndependentFromAPI(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		APIRate: 0.1, APIBurst: 1, WebhookRate: 0.1, WebhookBurst: 1, CleanupInterval: time.Minute,
	})
	api := rl.APIMiddleware()(okHandler())
	webhook := rl.WebhookMiddleware()(okHandler())

	api.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:1"))

	w := httptest.NewRecorder()
	webhook.ServeHTTP(w, requestFrom("10.0.0.1:1"))
	if w.Code != http.StatusOK {
		t.Errorf("webhook status = %d, want 200", w.Code)
	}
	if rl.WebhookLimiterCount() != 1 {
		t.Errorf("WebhookLimiterCount() = %d, want 1", rl.WebhookLimiterCount())
	}
}

func TestRateLimitMiddleware_UnlimitedPassesThrough(t *testing.T) {
	rl := newTestRateLimiter(t, NewRateLimiterConfig(0, 0))
	handler := rl.APIMiddleware()(okHandler())

	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.1:1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}
	if rl.APILimiterCount() != 0 {
		t.Errorf("unlimited bucket should not track clients, got %d", rl.APILimiterCount())
	}
}

func TestRateLimiter_CleanupEvictsIdleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		APIRate: 1, APIBurst: 1, WebhookRate: 1, WebhookBurst: 1, CleanupInterval: time.Hour,
	})
	rl.APIMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:1"))

	rl.api.mu.Lock()
	for _, cl := range rl.api.limiters {
		cl.lastAccess = time.Now().Add(-3 * time.Hour)
	}
	rl.api.mu.Unlock()

	rl.cleanup()

	if rl.APILimiterCount() != 0 {
		t.Errorf("APILimiterCount() = %d after cleanup, want 0", rl.APILimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	rl := NewRateLimiter(NewRateLimiterConfig(60, 60), newTestLogger(&buf))
	rl.Stop()
	rl.Stop()
}
