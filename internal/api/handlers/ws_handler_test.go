package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/welldanyogia/timecapsule-backend/internal/api/middleware"
	"github.com/welldanyogia/timecapsule-backend/internal/testutil"
	"github.com/welldanyogia/timecapsule-backend/internal/websocket"
)

func TestWSHandler_StreamsCallerDeliveries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub(quietLogger())
	go hub.Run(ctx)

	sender := testutil.NewAccountBuilder().Build()
	handler := NewWSHandler(hub, websocket.NewSecureUpgrader("http://localhost:3000", nil), quietLogger())

	e := echo.New()
	e.GET("/ws", handler.Serve, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			middleware.SetCurrentAccount(c, sender)
			return next(c)
		}
	})
	server := httptest.NewServer(e)
	defer server.Close()

	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount(sender.ID) == 1
	}, time.Second, 5*time.Millisecond)

	msg := testutil.NewMessageBuilder(sender).Build()
	msg.Sender = *sender
	hub.PublishDelivery(msg, nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event websocket.WSMessage
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, websocket.MessageTypeMessageDelivered, event.Type)
	assert.Equal(t, sender.ID, event.UserID)
}

func TestWSHandler_RejectsForeignOrigin(t *testing.T) {
	hub := websocket.NewHub(quietLogger())
	account := testutil.NewAccountBuilder().Build()
	handler := NewWSHandler(hub, websocket.NewSecureUpgrader("http://localhost:3000", nil), quietLogger())

	e := echo.New()
	e.GET("/ws", handler.Serve, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			middleware.SetCurrentAccount(c, account)
			return next(c)
		}
	})
	server := httptest.NewServer(e)
	defer server.Close()

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", header)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, hub.SubscriberCount(account.ID))
}

func TestWSHandler_RequiresAccount(t *testing.T) {
	handler := NewWSHandler(websocket.NewHub(nil), gorillaws.Upgrader{}, nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), rec)

	require.NoError(t, handler.Serve(c))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
