package chathub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mindspace/backend/internal/config"
	"mindspace/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketClient implements Client over a gorilla websocket connection.
type WebSocketClient struct {
	id       string
	identity models.Identity
	conn     *websocket.Conn
	hub      *ManagerService
	send     chan models.OutboundEvent
	once     sync.Once
	logger   *slog.Logger
}

func NewWebSocketClient(conn *websocket.Conn, hub *ManagerService, identity models.Identity, logger *slog.Logger) *WebSocketClient {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &WebSocketClient{
		id:       id,
		identity: identity,
		conn:     conn,
		hub:      hub,
		send:     make(chan models.OutboundEvent, config.SendBufferSize),
		logger:   logger.With("conn_id", id, "user_id", identity.ID),
	}
}

func (c *WebSocketClient) ID() string                        { return c.id }
func (c *WebSocketClient) Identity() models.Identity         { return c.identity }
func (c *WebSocketClient) Send() chan<- models.OutboundEvent { return c.send }

func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the send channel, which makes writePump say goodbye and drop
// the connection.
func (c *WebSocketClient) Close() {
	c.once.Do(func() { close(c.send) })
}

func (c *WebSocketClient) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		c.hub.HandleFrame(ctx, c, message)
	}
}

// writePump is the only writer on the connection. Each event is its own frame.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.logger.Debug("websocket write failed", "event", event.Event, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
