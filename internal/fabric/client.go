// CodeLab socket client
// One connection: gorilla read/write pumps plus client-event dispatch

package fabric

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"codelab/internal/logging"
	"codelab/internal/metrics"
	"codelab/internal/sandbox"
	"codelab/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // code payloads can be large
)

// Client is one live socket connection and its per-connection state.
type Client struct {
	ID       string
	UserID   uint
	UserName string
	Role     string
	JoinedAt time.Time

	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	sandbox *sandbox.Session

	// sendMu guards send against the sandbox run goroutines, which keep
	// emitting directly on this connection after unregister has torn it down.
	sendMu     sync.Mutex
	sendClosed bool

	// rooms this connection is joined to; guarded by hub.mu.
	rooms map[string]bool
}

// clientMessage is the inbound envelope.
type clientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return os.Getenv("ENVIRONMENT") != "production"
		}
		allowed := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowed == "" {
			return strings.HasPrefix(origin, "http://localhost:") ||
				strings.HasPrefix(origin, "http://127.0.0.1:")
		}
		for _, a := range strings.Split(allowed, ",") {
			if strings.TrimSpace(a) == origin {
				return true
			}
		}
		return false
	},
}

// HandleWebSocket upgrades an authenticated HTTP request into a fabric
// connection. The auth middleware has already populated the context.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
		return
	}
	userName, _ := c.Get("user_name")
	role, _ := c.Get("role")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.S().Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		ID:       uuid.New().String(),
		UserID:   userID.(uint),
		UserName: userName.(string),
		Role:     role.(string),
		JoinedAt: time.Now(),
		conn:     conn,
		send:     make(chan []byte, 256),
		hub:      h,
		rooms:    make(map[string]bool),
	}
	client.sandbox = sandbox.NewSession(client)

	h.register(client)
	go client.writePump()
	go client.readPump()
}

// Emit queues a single event to this connection. Implements
// sandbox.Emitter.
func (c *Client) Emit(event string, payload interface{}) {
	raw, err := json.Marshal(Message{Event: event, Data: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		logging.S().Errorw("event marshal failed", "event", event, "error", err)
		return
	}
	c.enqueue(raw)
}

// enqueue drops the message if the connection's queue is full or already
// closed. Late emits from a run goroutine racing a disconnect land here.
func (c *Client) enqueue(raw []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- raw:
	default:
		logging.S().Debugw("send queue full, dropping event", "conn", c.ID)
	}
}

// closeSend closes the send queue exactly once. Emits arriving afterwards
// are discarded by enqueue instead of panicking on the closed channel.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// readPump reads client events until the connection dies, then tears down
// the connection: sandbox child, room memberships, presence.
func (c *Client) readPump() {
	defer func() {
		c.sandbox.Shutdown()
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.S().Debugw("websocket read error", "conn", c.ID, "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Emit("error", map[string]string{"error": "invalid message format"})
			continue
		}
		c.handleMessage(msg)
	}
}

// writePump flushes the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg clientMessage) {
	metrics.Get().RecordSocketEvent(msg.Event, "in")
	switch msg.Event {
	case msgJoinRoom:
		c.handleJoinRoom(msg.Data)
	case msgJoinLabSession:
		c.handleJoinLabSession(msg.Data)
	case msgLeaveLabSession:
		c.handleLeaveLabSession(msg.Data)
	case msgSandboxRun:
		c.handleSandboxRun(msg.Data)
	case msgSandboxInput:
		c.handleSandboxInput(msg.Data)
	case msgSandboxStop:
		c.sandbox.Stop()
	default:
		c.Emit("error", map[string]string{"error": "unknown event: " + msg.Event})
	}
}

// handleJoinRoom subscribes the connection to its role and per-user rooms and
// registers presence.
func (c *Client) handleJoinRoom(data json.RawMessage) {
	var payload struct {
		Role     string `json:"role"`
		UserID   uint   `json:"userId"`
		UserName string `json:"userName"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		c.Emit("error", map[string]string{"error": "invalid join-room payload"})
		return
	}

	// The socket is authenticated; the payload may not claim someone else's
	// identity or a different role.
	if payload.UserID != c.UserID || payload.Role != c.Role {
		c.Emit("error", map[string]string{"error": "identity mismatch"})
		return
	}

	c.hub.Join(c, RoomRole(c.Role))
	switch c.Role {
	case models.RoleStudent:
		c.hub.Join(c, RoomStudent(c.UserID))
	case models.RoleInstructor:
		c.hub.Join(c, RoomInstructor(c.UserID))
	}

	c.hub.presence.add(c.ID, c.Role, PresenceEntry{
		UserID:   c.UserID,
		UserName: c.UserName,
		JoinedAt: time.Now(),
	})
}

func (c *Client) handleJoinLabSession(data json.RawMessage) {
	var payload struct {
		SessionID uint `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.SessionID == 0 {
		c.Emit("error", map[string]string{"error": "invalid join-lab-session payload"})
		return
	}

	c.hub.Join(c, RoomLabSession(payload.SessionID))
	if c.Role == models.RoleStudent {
		c.hub.EmitToLabSession(payload.SessionID, EventStudentJoinedSession, map[string]interface{}{
			"sessionId":   payload.SessionID,
			"studentId":   c.UserID,
			"studentName": c.UserName,
		})
	}
}

func (c *Client) handleLeaveLabSession(data json.RawMessage) {
	var payload struct {
		SessionID uint `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.SessionID == 0 {
		return
	}
	c.hub.Leave(c, RoomLabSession(payload.SessionID))
}

func (c *Client) handleSandboxRun(data json.RawMessage) {
	var payload struct {
		Language string `json:"language"`
		Code     string `json:"code"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Code == "" {
		c.Emit(sandbox.EventError, map[string]string{"error": "invalid sandbox-run payload"})
		return
	}
	go c.sandbox.Run(context.Background(), payload.Language, payload.Code)
}

func (c *Client) handleSandboxInput(data json.RawMessage) {
	var payload struct {
		Input string `json:"input"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	c.sandbox.WriteInput(payload.Input)
}
