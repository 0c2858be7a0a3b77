package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	defer rl.Stop()

	ok, remaining := rl.Allow("a")
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	ok, remaining = rl.Allow("a")
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)

	ok, _ = rl.Allow("a")
	assert.False(t, ok)

	ok, _ = rl.Allow("b")
	assert.True(t, ok, "keys are independent")

	time.Sleep(60 * time.Millisecond)
	ok, _ = rl.Allow("a")
	assert.True(t, ok, "window reset")
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	r := newTestEngine(RateLimit(rl))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}
