package websocket

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/welldanyogia/timecapsule-backend/internal/logger"
)

// DefaultAllowedOrigin is used when no origins are configured
const DefaultAllowedOrigin = "http://localhost:3000"

// ParseOrigins splits a comma separated ALLOWED_ORIGINS value, dropping empty entries
func ParseOrigins(raw string) []string {
	origins := make([]string, 0)
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// NewSecureUpgrader creates a WebSocket upgrader that only accepts the given
// origins (comma separated). Rejections are reported to secLogger when set.
func NewSecureUpgrader(allowedOrigins string, secLogger *logger.SecurityLogger) websocket.Upgrader {
	origins := ParseOrigins(allowedOrigins)
	if len(origins) == 0 {
		origins = []string{DefaultAllowedOrigin}
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			// Allow same-origin requests (empty Origin)
			if origin == "" {
				return true
			}

			for _, allowed := range origins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}

			if secLogger != nil {
				secLogger.InvalidOrigin(r.RemoteAddr, origin)
			}
			return false
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}
