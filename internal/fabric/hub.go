// CodeLab event fabric
// Connection registry with role, user and session rooms

package fabric

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"codelab/internal/logging"
	"codelab/internal/metrics"
	"codelab/pkg/models"
)

// Message is the envelope for every server-to-client event.
type Message struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains live connections and their room memberships. All fan-out
// goes through rooms: student-<id>, instructor-<id>, role-<role> and
// lab-session-<id>.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client          // connection id -> client
	rooms   map[string]map[*Client]bool // room name -> members

	presence *Presence
}

// NewHub creates an empty hub with its presence registry.
func NewHub() *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]bool),
	}
	h.presence = newPresence(h)
	return h
}

// Presence exposes the hub's presence registry.
func (h *Hub) Presence() *Presence { return h.presence }

// Room name helpers.
func RoomStudent(userID uint) string    { return fmt.Sprintf("student-%d", userID) }
func RoomInstructor(userID uint) string { return fmt.Sprintf("instructor-%d", userID) }
func RoomRole(role string) string       { return "role-" + role }
func RoomLabSession(sessionID uint) string {
	return fmt.Sprintf("lab-session-%d", sessionID)
}

// register adds a connection to the registry.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	metrics.Get().SocketConnectionsGauge.WithLabelValues(c.Role).Inc()
	logging.S().Debugw("connection registered", "conn", c.ID)
}

// unregister removes a connection from the registry and every room, updates
// presence and closes the send queue. Safe to call once per connection.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	for room := range c.rooms {
		h.leaveRoomLocked(room, c)
	}
	h.mu.Unlock()

	h.presence.remove(c.ID)
	c.closeSend()
	metrics.Get().SocketConnectionsGauge.WithLabelValues(c.Role).Dec()
	logging.S().Debugw("connection unregistered", "conn", c.ID, "user", c.UserID)
}

// Join subscribes a connection to a room.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
	c.rooms[room] = true
}

// Leave unsubscribes a connection from a room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(room, c)
	delete(c.rooms, room)
}

func (h *Hub) leaveRoomLocked(room string, c *Client) {
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// emitToRooms marshals once and queues the message to every member of the
// given rooms. Connections with a full send queue miss the event; delivery
// is best effort within a live connection.
func (h *Hub) emitToRooms(rooms []string, event string, payload interface{}) {
	raw, err := json.Marshal(Message{Event: event, Data: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		logging.S().Errorw("event marshal failed", "event", event, "error", err)
		return
	}

	metrics.Get().RecordSocketEvent(event, "out")

	seen := make(map[*Client]bool)
	h.mu.RLock()
	for _, room := range rooms {
		for c := range h.rooms[room] {
			if seen[c] {
				continue
			}
			seen[c] = true
			c.enqueue(raw)
		}
	}
	h.mu.RUnlock()
}

// EmitToLabSession fans an event out to every connection in a session room.
func (h *Hub) EmitToLabSession(sessionID uint, event string, payload interface{}) {
	h.emitToRooms([]string{RoomLabSession(sessionID)}, event, payload)
}

// EmitToAllStudents fans an event out to the student role room.
func (h *Hub) EmitToAllStudents(event string, payload interface{}) {
	h.emitToRooms([]string{RoomRole(models.RoleStudent)}, event, payload)
}

// EmitToAllInstructors fans an event out to the instructor role room.
func (h *Hub) EmitToAllInstructors(event string, payload interface{}) {
	h.emitToRooms([]string{RoomRole(models.RoleInstructor)}, event, payload)
}

// EmitToUser delivers to the union of the user's per-role rooms.
func (h *Hub) EmitToUser(userID uint, event string, payload interface{}) {
	h.emitToRooms([]string{RoomStudent(userID), RoomInstructor(userID)}, event, payload)
}

// EmitToUsers delivers to each listed user.
func (h *Hub) EmitToUsers(userIDs []uint, event string, payload interface{}) {
	for _, id := range userIDs {
		h.EmitToUser(id, event, payload)
	}
}

// EmitToAll delivers to every live connection.
func (h *Hub) EmitToAll(event string, payload interface{}) {
	raw, err := json.Marshal(Message{Event: event, Data: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		logging.S().Errorw("event marshal failed", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	for _, c := range h.clients {
		c.enqueue(raw)
	}
	h.mu.RUnlock()
}

// RoomSize reports the current number of members in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// UserOnline reports whether a user has at least one live connection joined
// to one of their per-user rooms.
func (h *Hub) UserOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[RoomStudent(userID)]) > 0 || len(h.rooms[RoomInstructor(userID)]) > 0
}

// ConnectionCount reports the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
