// Package middleware provides HTTP middleware for the Time Capsule API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/timecapsule-backend/internal/logger"
)

// APIKeyAuth validates the API key from the Authorization header.
// An empty apiKey disables the check (development mode).
func APIKeyAuth(apiKey string, secLogger *logger.SecurityLogger) echo.MiddlewareFunc {
	if apiKey == "" && secLogger != nil {
		secLogger.GetLogger().Warn("API_KEY not set - API is UNSECURED")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()

			// Skip auth for health endpoints
			if strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/ready") {
				return next(c)
			}

			if apiKey == "" {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				if secLogger != nil {
					secLogger.AuthFailure(c.RealIP(), path, "missing authorization header")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{
					"error": "missing authorization header",
					"code":  "UNAUTHORIZED",
				})
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				if secLogger != nil {
					secLogger.AuthFailure(c.RealIP(), path, "invalid API key")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{
					"error": "invalid API key",
					"code":  "UNAUTHORIZED",
				})
			}

			return next(c)
		}
	}
}

// OperatorAudit records every request to an operator route as a security event.
// Credentials in the request headers are never logged.
func OperatorAudit(event string, secLogger *logger.SecurityLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secLogger != nil {
				req := c.Request()
				secLogger.SecurityEvent(event, c.RealIP(), map[string]string{
					"method":        req.Method,
					"path":          c.Path(),
					"user_agent":    req.UserAgent(),
					"authorization": req.Header.Get("Authorization"),
				})
			}
			return next(c)
		}
	}
}
