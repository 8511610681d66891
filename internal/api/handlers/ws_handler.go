package handlers

import (
	"log/slog"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/timecapsule-backend/internal/api/middleware"
	"github.com/welldanyogia/timecapsule-backend/internal/api/response"
	"github.com/welldanyogia/timecapsule-backend/internal/websocket"
)

// WSHandler upgrades connections to the live delivery feed
type WSHandler struct {
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(hub *websocket.Hub, upgrader gorillaws.Upgrader, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{hub: hub, upgrader: upgrader, logger: logger}
}

// Serve handles GET /ws. The connection is bound to the caller and
// subscribed to their delivery events straight away.
func (h *WSHandler) Serve(c echo.Context) error {
	account := middleware.CurrentAccount(c)
	if account == nil {
		return response.Unauthorized(c, "missing user")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Warn("websocket upgrade failed",
			slog.String("user_id", account.ID.String()),
			slog.String("error", err.Error()))
		return nil
	}

	client := websocket.NewClient(h.hub, conn, account.ID, h.logger)
	h.hub.Register(client)
	h.hub.Subscribe(client, account.ID)

	go client.WritePump()
	go client.ReadPump()

	return nil
}
