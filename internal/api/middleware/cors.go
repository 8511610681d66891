package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const defaultDevOrigin = "http://localhost:3000"

// SecureCORS returns CORS middleware for the comma-separated allowedOrigins.
// Wildcard origins are dropped in production.
func SecureCORS(allowedOrigins string, production bool) echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     corsOrigins(allowedOrigins, production),
		AllowMethods:     []string{echo.GET, echo.POST, echo.OPTIONS},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, UserIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func corsOrigins(allowedOrigins string, production bool) []string {
	if strings.TrimSpace(allowedOrigins) == "" {
		return []string{defaultDevOrigin}
	}

	origins := make([]string, 0)
	for _, origin := range strings.Split(allowedOrigins, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if production && origin == "*" {
			continue
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		origins = []string{defaultDevOrigin}
	}
	return origins
}
