package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pitchside/tacticsroom/internal/delivery"
	"github.com/pitchside/tacticsroom/internal/models"
	"github.com/pitchside/tacticsroom/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The engine sits behind the platform gateway; origin policy is
		// enforced there.
		return true
	},
}

// Client is one live WebSocket connection bound to a session participant.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	userID    string
	send      chan []byte
}

// clientMessage is the inbound frame shape. Action selects the engine
// operation; the remaining fields are per-action.
type clientMessage struct {
	Action     string          `json:"action"`
	Type       string          `json:"type,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	ConflictID string          `json:"conflict_id,omitempty"`
	Resolution string          `json:"resolution,omitempty"`
	MergedData json.RawMessage `json:"merged_data,omitempty"`
}

const (
	actionSubmitUpdate    = "submit_update"
	actionResolveConflict = "resolve_conflict"
)

// HandleWS upgrades the request, binds the connection to the session and
// runs it until either side hangs up. Leaving tears the participant out of
// the roster.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	user, ok := delivery.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warnf(r.Context(), "ws.Hub.HandleWS: upgrade: %v", err)
		return
	}

	c := &Client{
		hub:       h,
		conn:      conn,
		sessionID: sessionID,
		userID:    user.ID,
		send:      make(chan []byte, sendBufferSize),
	}

	// Register before JoinLive so the session_state snapshot the engine
	// sends to this user has a connection to land on.
	h.register(c)
	if _, err := h.collab.JoinLive(r.Context(), sessionID, user.ID); err != nil {
		h.unregister(c)
		h.writeClose(conn, err)
		return
	}

	go c.writePump()
	c.readPump()
}

func (h *Hub) writeClose(conn *websocket.Conn, err error) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	conn.Close()
}

func (c *Client) readPump() {
	ctx := context.Background()
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		if err := c.hub.collab.LeaveLive(ctx, c.sessionID, c.userID); err != nil &&
			err != service.ErrSessionNotFound && err != service.ErrParticipantNotFound {
			c.hub.l.Warnf(ctx, "ws.Client.readPump: leave session %s: %v", c.sessionID, err)
		}
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.l.Warnf(ctx, "ws.Client.readPump: session %s user %s: %v", c.sessionID, c.userID, err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("malformed message")
			continue
		}

		c.dispatch(ctx, msg)
	}
}

func (c *Client) dispatch(ctx context.Context, msg clientMessage) {
	switch msg.Action {
	case actionSubmitUpdate:
		out, err := c.hub.collab.SubmitUpdate(ctx, service.SubmitUpdateInput{
			SessionID: c.sessionID,
			UserID:    c.userID,
			Type:      models.UpdateType(msg.Type),
			Data:      msg.Data,
		})
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendAck("update_accepted", out)

	case actionResolveConflict:
		out, err := c.hub.collab.ResolveConflict(ctx, service.ResolveConflictInput{
			SessionID:  c.sessionID,
			UserID:     c.userID,
			ConflictID: msg.ConflictID,
			Resolution: models.ResolutionAction(msg.Resolution),
			MergedData: msg.MergedData,
		})
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendAck("conflict_resolution_accepted", out)

	default:
		c.sendError("unknown action")
	}
}

// sendError reports a failure back to this connection only.
func (c *Client) sendError(detail string) {
	raw, err := json.Marshal(service.NewEvent("error", c.sessionID, map[string]string{"detail": detail}))
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) sendAck(eventType string, data any) {
	raw, err := json.Marshal(service.NewEvent(eventType, c.sessionID, data))
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush whatever else queued up behind this frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
