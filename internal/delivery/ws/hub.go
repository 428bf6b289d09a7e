// Package ws carries the live side of a collaboration session: one
// WebSocket connection per participant, grouped per session, fanning the
// engine's broadcast events out and dispatching inbound edit messages back
// into the engine.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pitchside/tacticsroom/internal/service"
	"github.com/pitchside/tacticsroom/pkg/logger"
)

// Hub implements service.Broadcaster over per-session connection groups.
// Fan-out never blocks: a client whose send buffer is full is evicted.
type Hub struct {
	l logger.Logger

	mu     sync.RWMutex
	rooms  map[string]map[*Client]bool
	collab service.CollabService
}

func NewHub(l logger.Logger) *Hub {
	return &Hub{
		l:     l,
		rooms: make(map[string]map[*Client]bool),
	}
}

// Bind attaches the engine after construction; the hub and the service
// reference each other, so one side has to be wired late.
func (h *Hub) Bind(collab service.CollabService) {
	h.collab = collab
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.sessionID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[c.sessionID] = room
	}
	room[c] = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.sessionID]
	if !ok {
		return
	}
	if room[c] {
		delete(room, c)
		close(c.send)
	}
	if len(room) == 0 {
		delete(h.rooms, c.sessionID)
	}
}

func (h *Hub) ToSession(sessionID string, ev service.Event) {
	h.send(sessionID, ev, func(*Client) bool { return true })
}

func (h *Hub) ToOthers(sessionID, excludeUserID string, ev service.Event) {
	h.send(sessionID, ev, func(c *Client) bool { return c.userID != excludeUserID })
}

func (h *Hub) ToUser(sessionID, userID string, ev service.Event) {
	h.send(sessionID, ev, func(c *Client) bool { return c.userID == userID })
}

func (h *Hub) send(sessionID string, ev service.Event, match func(*Client) bool) {
	raw, err := json.Marshal(ev)
	if err != nil {
		h.l.Errorf(context.Background(), "ws.Hub.send: marshal %s event: %v", ev.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	for c := range room {
		if !match(c) {
			continue
		}
		select {
		case c.send <- raw:
		default:
			// Slow consumer; drop the connection rather than the session.
			delete(room, c)
			close(c.send)
		}
	}
}

// CloseSession disconnects every client of an ended session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	for c := range room {
		close(c.send)
	}
	delete(h.rooms, sessionID)
}

// SessionConnections reports the number of live connections on a session.
func (h *Hub) SessionConnections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}
