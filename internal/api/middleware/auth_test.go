package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/welldanyogia/timecapsule-backend/internal/logger"
)

func newCapturingSecurityLogger() (*logger.SecurityLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return logger.NewSecurityLoggerWithHandler(slog.NewJSONHandler(buf, nil)), buf
}

func authContext(path, authHeader string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(path)
	return c, rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "success")
}

func TestAPIKeyAuth_MissingHeader(t *testing.T) {
	c, _ := authContext("/api/messages/sent", "")

	err := APIKeyAuth("test-api-key", nil)(okHandler)(c)

	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAPIKeyAuth_InvalidKey(t *testing.T) {
	secLogger, buf := newCapturingSecurityLogger()
	c, _ := authContext("/api/messages/sent", "Bearer wrong-key")

	err := APIKeyAuth("test-api-key", secLogger)(okHandler)(c)

	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Contains(t, buf.String(), "authentication_failure")
	assert.NotContains(t, buf.String(), "wrong-key")
}

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	c, rec := authContext("/api/messages/sent", "Bearer test-api-key")

	err := APIKeyAuth("test-api-key", nil)(okHandler)(c)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_HealthEndpointsSkipAuth(t *testing.T) {
	for _, path := range []string{"/health", "/ready"} {
		t.Run(path, func(t *testing.T) {
			c, rec := authContext(path, "")

			err := APIKeyAuth("test-api-key", nil)(okHandler)(c)

			assert.NoError(t, err)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestAPIKeyAuth_NoAPIKeyConfigured(t *testing.T) {
	secLogger, buf := newCapturingSecurityLogger()
	c, rec := authContext("/api/messages/sent", "")

	err := APIKeyAuth("", secLogger)(okHandler)(c)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), "UNSECURED")
}

func TestOperatorAudit_LogsEventWithoutCredentials(t *testing.T) {
	secLogger, buf := newCapturingSecurityLogger()
	c, rec := authContext("/api/scheduler/run", "Bearer operator-key")

	err := OperatorAudit("manual_delivery_trigger", secLogger)(okHandler)(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), `"event_type":"manual_delivery_trigger"`)
	assert.Contains(t, buf.String(), "/api/scheduler/run")
	assert.NotContains(t, buf.String(), "operator-key")
}
