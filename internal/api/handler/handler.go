package handler

import (
	"log/slog"
	"net/http"

	"mindspace/backend/internal/attachments"
	"mindspace/backend/internal/auth"
	"mindspace/backend/internal/chathub"
	"mindspace/backend/internal/config"
	"mindspace/backend/internal/messaging"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler holds everything the HTTP surface needs.
type Handler struct {
	Hub      *chathub.ManagerService
	Messages *messaging.Service
	Verifier *auth.Verifier
	Uploads  *attachments.Saver

	cfg      *config.Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(cfg *config.Config, hub *chathub.ManagerService, messages *messaging.Service, verifier *auth.Verifier, uploads *attachments.Saver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Hub:      hub,
		Messages: messages,
		Verifier: verifier,
		Uploads:  uploads,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return cfg.CheckOrigin(r.Header.Get("Origin"))
			},
		},
		logger: logger,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.ServeWebSocket)
	if h.Uploads != nil {
		r.Static(UploadsPath, h.Uploads.Dir)
	}

	api := r.Group("/api/messages", h.RequireAuth())
	{
		api.POST("", h.SendMessage)
		api.GET("", h.ListMessages)
		api.GET("/conversation/:userId", h.Conversation)
		api.GET("/conversations", h.Conversations)
		api.GET("/unread/count", h.UnreadCount)
		api.GET("/unread/by-sender", h.UnreadBySender)
		api.GET("/contacts", h.Contacts)
		api.GET("/online", h.OnlineUsers)
		api.PUT("/:id/read", h.MarkRead)
		api.PUT("/read-all/:userId", h.MarkAllRead)
		api.DELETE("/:id", h.DeleteMessage)
	}
}

// UploadsPath is the URL prefix saved attachments are served under.
const UploadsPath = "/uploads"

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
