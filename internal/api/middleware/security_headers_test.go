package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func securedRequest(target string) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(SecureHeaders())
	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	}
	e.GET("/health", handler)
	e.GET("/api/messages/sent", handler)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSecureHeaders_AllHeadersPresent(t *testing.T) {
	rec := securedRequest("/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "1; mode=block", rec.Header().Get("X-XSS-Protection"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "geolocation=(), microphone=(), camera=()", rec.Header().Get("Permissions-Policy"))
}

func TestSecureHeaders_APIResponsesNotCached(t *testing.T) {
	assert.Equal(t, "no-store", securedRequest("/api/messages/sent").Header().Get("Cache-Control"))
	assert.Empty(t, securedRequest("/health").Header().Get("Cache-Control"))
}

func TestSecureHeaders_HSTSNotOnHTTP(t *testing.T) {
	rec := securedRequest("http://localhost/health")

	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecureHeaders_HSTSBehindTLSProxy(t *testing.T) {
	e := echo.New()
	e.Use(SecureHeaders())
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderXForwardedProto, "https")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, hstsValue, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecureHeaders_CSPBlocksAllContent(t *testing.T) {
	csp := securedRequest("/api/messages/sent").Header().Get("Content-Security-Policy")

	assert.Contains(t, csp, "default-src 'none'")
}
