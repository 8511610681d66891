package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func rateLimitedEcho(mw echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(mw)
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	})
	return e
}

func serveFrom(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if ip != "" {
		req.Header.Set("X-Real-IP", ip)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_WithinLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := rateLimitedEcho(RateLimiter(ctx, 10, 20, nil))

	rec := serveFrom(e, "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_ExceedsLimit(t *testing.T) {
	e := rateLimitedEcho(RateLimiterWithLimiter(NewIPRateLimiter(1, 1), nil))

	assert.Equal(t, http.StatusOK, serveFrom(e, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(e, "").Code)
}

func TestRateLimiter_RetryAfterHeader(t *testing.T) {
	secLogger, buf := newCapturingSecurityLogger()
	e := rateLimitedEcho(RateLimiterWithLimiter(NewIPRateLimiter(1, 1), secLogger))

	serveFrom(e, "10.1.1.1")
	rec := serveFrom(e, "10.1.1.1")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, buf.String(), "rate_limit_exceeded")
	assert.Contains(t, buf.String(), "10.1.1.1")
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	e := rateLimitedEcho(RateLimiterWithLimiter(NewIPRateLimiter(1, 1), nil))

	assert.Equal(t, http.StatusOK, serveFrom(e, "192.168.1.1").Code)
	assert.Equal(t, http.StatusOK, serveFrom(e, "192.168.1.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(e, "192.168.1.1").Code)
}

func TestRateLimiter_BurstAllowed(t *testing.T) {
	e := rateLimitedEcho(RateLimiterWithLimiter(NewIPRateLimiter(1, 5), nil))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serveFrom(e, "").Code, "Request %d should pass", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(e, "").Code)
}

func TestIPRateLimiter_GetLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(10, 20)

	l1 := limiter.GetLimiter("192.168.1.1")
	assert.NotNil(t, l1)

	l2 := limiter.GetLimiter("192.168.1.1")
	assert.Same(t, l1, l2)

	l3 := limiter.GetLimiter("192.168.1.2")
	assert.NotSame(t, l1, l3)
}

func TestIPRateLimiter_CleanupOldEntries(t *testing.T) {
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(10, 20)
	limiter.now = func() time.Time { return now }

	stale := limiter.GetLimiter("192.168.1.1")
	now = now.Add(20 * time.Minute)
	limiter.GetLimiter("192.168.1.2")
	now = now.Add(15 * time.Minute)

	removed := limiter.CleanupOldEntries(30 * time.Minute)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, limiter.Len())
	assert.NotSame(t, stale, limiter.GetLimiter("192.168.1.1"))
}

func TestDailyLimit_AllowsLimitThenRejects(t *testing.T) {
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(rate.Every(24*time.Hour/5), 5)
	limiter.now = func() time.Time { return now }
	secLogger, buf := newCapturingSecurityLogger()
	e := rateLimitedEcho(DailyLimitWithLimiter(limiter, 5, secLogger))

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, serveFrom(e, "10.0.0.7").Code, "request %d", i+1)
	}

	rec := serveFrom(e, "10.0.0.7")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	// One token refills every 24h/5
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 17280, retryAfter, 1)
	assert.Contains(t, buf.String(), "daily_quota_exceeded")
	assert.Equal(t, http.StatusOK, serveFrom(e, "10.0.0.8").Code)
}

func TestDailyLimit_RefillsOverTime(t *testing.T) {
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(rate.Every(24*time.Hour/2), 2)
	limiter.now = func() time.Time { return now }
	e := rateLimitedEcho(DailyLimitWithLimiter(limiter, 2, nil))

	serveFrom(e, "10.0.0.9")
	serveFrom(e, "10.0.0.9")
	require.Equal(t, http.StatusTooManyRequests, serveFrom(e, "10.0.0.9").Code)

	now = now.Add(12*time.Hour + time.Second)

	assert.Equal(t, http.StatusOK, serveFrom(e, "10.0.0.9").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(e, "10.0.0.9").Code)
}

func TestDailyLimit_Constructor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := rateLimitedEcho(DailyLimit(ctx, 1, nil))

	assert.Equal(t, http.StatusOK, serveFrom(e, "10.0.0.10").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(e, "10.0.0.10").Code)
}
