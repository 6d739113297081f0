package handler

import (
	"mindspace/backend/internal/chathub"

	"github.com/gin-gonic/gin"
)

// ServeWebSocket authenticates the handshake and upgrades it. Unauthenticated
// requests get a 401 and are never upgraded.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	identity, err := h.authenticate(c)
	if err != nil {
		h.logger.Info("websocket handshake rejected", "remote", c.ClientIP(), "error", err)
		h.abortWithError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already replied
		h.logger.Warn("websocket upgrade failed", "user_id", identity.ID, "error", err)
		return
	}

	client := chathub.NewWebSocketClient(conn, h.Hub, identity, h.logger)
	if err := h.Hub.Register(c.Request.Context(), client); err != nil {
		h.logger.Warn("hub refused connection", "user_id", identity.ID, "error", err)
		conn.Close()
		return
	}
	client.Run()
}
