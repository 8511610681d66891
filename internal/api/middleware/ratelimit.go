package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/timecapsule-backend/internal/logger"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 10 * time.Minute
	limiterMaxIdle       = 30 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter manages rate limiters per IP address
type IPRateLimiter struct {
	limiters map[string]*ipLimiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewIPRateLimiter creates a new IP-based rate limiter
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     r,
		burst:    b,
		now:      time.Now,
	}
}

// GetLimiter returns the rate limiter for the given IP
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	entry, exists := i.limiters[ip]
	if !exists {
		entry = &ipLimiter{limiter: rate.NewLimiter(i.rate, i.burst)}
		i.limiters[ip] = entry
	}
	entry.lastSeen = i.now()

	return entry.limiter
}

// CleanupOldEntries drops limiters not used within maxIdle.
// A dropped limiter starts full again, so maxIdle must cover the refill time.
func (i *IPRateLimiter) CleanupOldEntries(maxIdle time.Duration) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	cutoff := i.now().Add(-maxIdle)
	removed := 0
	for ip, entry := range i.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(i.limiters, ip)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked IPs
func (i *IPRateLimiter) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.limiters)
}

// StartCleanup sweeps idle entries until ctx is cancelled
func (i *IPRateLimiter) StartCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				i.CleanupOldEntries(maxIdle)
			}
		}
	}()
}

// RateLimiter returns the global per-IP rate limiting middleware.
// Idle limiters are swept until ctx is cancelled.
func RateLimiter(ctx context.Context, requestsPerSecond float64, burst int, secLogger *logger.SecurityLogger) echo.MiddlewareFunc {
	limiter := NewIPRateLimiter(rate.Limit(requestsPerSecond), burst)
	limiter.StartCleanup(ctx, limiterSweepInterval, limiterMaxIdle)
	return RateLimiterWithLimiter(limiter, secLogger)
}

// RateLimiterWithLimiter returns rate limiting middleware backed by limiter
func RateLimiterWithLimiter(limiter *IPRateLimiter, secLogger *logger.SecurityLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			l := limiter.GetLimiter(ip)

			if !l.Allow() {
				if secLogger != nil {
					secLogger.RateLimitExceeded(ip, c.Path())
				}

				c.Response().Header().Set("Retry-After", "60")
				return echo.NewHTTPError(http.StatusTooManyRequests, map[string]string{
					"error":       "rate limit exceeded",
					"code":        "RATE_LIMITED",
					"retry_after": "60",
				})
			}

			return next(c)
		}
	}
}

// DailyLimit allows limit requests per IP in any 24 hour window, refilling
// one token every 24h/limit. It guards message creation.
func DailyLimit(ctx context.Context, limit int, secLogger *logger.SecurityLogger) echo.MiddlewareFunc {
	limiter := NewIPRateLimiter(rate.Every(24*time.Hour/time.Duration(limit)), limit)
	limiter.StartCleanup(ctx, limiterSweepInterval, 24*time.Hour)
	return DailyLimitWithLimiter(limiter, limit, secLogger)
}

// DailyLimitWithLimiter is DailyLimit over a caller-supplied limiter
func DailyLimitWithLimiter(limiter *IPRateLimiter, limit int, secLogger *logger.SecurityLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			l := limiter.GetLimiter(ip)

			now := limiter.now()
			if !l.AllowN(now, 1) {
				reservation := l.ReserveN(now, 1)
				wait := reservation.DelayFrom(now)
				reservation.CancelAt(now)

				if secLogger != nil {
					secLogger.DailyQuotaExceeded(ip, limit)
				}

				retryAfter := strconv.Itoa(int(math.Ceil(wait.Seconds())))
				c.Response().Header().Set("Retry-After", retryAfter)
				return echo.NewHTTPError(http.StatusTooManyRequests, map[string]string{
					"error":       "daily message limit reached",
					"code":        "RATE_LIMITED",
					"retry_after": retryAfter,
				})
			}

			return next(c)
		}
	}
}
