package controllers

import (
	"net/http"

	gorilla "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"fleet-system/pkg/utils"
	"fleet-system/pkg/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is consumed by the board SPA from another origin; auth
	// happens via the bearer token, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebsocketController struct {
	hub    *websocket.Hub
	logger *zap.Logger
}

func NewWebsocketController(hub *websocket.Hub, logger *zap.Logger) *WebsocketController {
	return &WebsocketController{hub: hub, logger: logger}
}

// Serve upgrades the connection and parks it in the hub under the
// authenticated actor's id.
func (c *WebsocketController) Serve(ctx echo.Context) error {
	actor, err := utils.ActorFromContext(ctx.Request().Context())
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		c.logger.Warn("websocket upgrade failed", zap.Error(err))
		return err
	}

	client := websocket.NewClient(c.hub, conn, actor.ID)
	c.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
	return nil
}
