package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yukikurage/priority-matrix/internal/middleware"
	"github.com/yukikurage/priority-matrix/internal/realtime"
	"go.uber.org/zap"
)

// WebsocketHandler upgrades /ws requests and hands the connection to the hub
type WebsocketHandler struct {
	hub        *realtime.Hub
	dispatcher *realtime.Dispatcher
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

func NewWebsocketHandler(hub *realtime.Hub, dispatcher *realtime.Dispatcher, log *zap.Logger) *WebsocketHandler {
	return &WebsocketHandler{
		hub:        hub,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: log,
	}
}

// Serve binds the session identity to the connection for its whole lifetime
func (h *WebsocketHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := realtime.NewClient(conn, middleware.Identity(c))
	h.hub.Serve(client, h.dispatcher.Handle)
}
