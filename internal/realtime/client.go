package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// Envelope is the WebSocket message envelope for both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client represents a single WebSocket connection on the relay.
type Client struct {
	ID       string
	UserID   uuid.UUID
	Role     string
	JoinedAt time.Time

	// Subscription set and closed flag, both guarded by the hub's mutex.
	topics map[string]struct{}
	closed bool

	hub    *Hub
	conn   *websocket.Conn
	send   chan Envelope
	logger *zap.Logger
}

// NewClient creates a relay client. conn may be nil in tests; such a
// client participates in the hub's subscriber table but has no pumps.
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, role string, logger *zap.Logger) *Client {
	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now(),
		topics:   make(map[string]struct{}),
		hub:      hub,
		conn:     conn,
		send:     make(chan Envelope, 256),
		logger:   logger,
	}
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, jwtValidate func(token string) (userID, role string, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		userIDStr, role, err := jwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID, _ := uuid.Parse(userIDStr)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(hub, conn, userID, role, logger)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg Envelope
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "subscribe":
			if msg.Topic == "" {
				continue
			}
			if err := c.hub.Subscribe(c, msg.Topic); err != nil {
				return
			}
		case "unsubscribe":
			if msg.Topic == "" {
				continue
			}
			if err := c.hub.Unsubscribe(c, msg.Topic); err != nil {
				return
			}
		case "publish":
			// Clients may only publish to topics they are subscribed to.
			if msg.Topic == "" || !c.hub.Subscribed(c, msg.Topic) {
				c.logger.Debug("dropped publish to unsubscribed topic", zap.String("client_id", c.ID), zap.String("topic", msg.Topic))
				continue
			}
			c.hub.Publish(msg.Topic, "message", json.RawMessage(msg.Payload))
		default:
			// Malformed or unknown inbound events are dropped, not errors.
			c.logger.Debug("dropped unknown event", zap.String("client_id", c.ID), zap.String("event", msg.Event))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
