package service

import (
	"encoding/json"
	"time"

	"github.com/pitchside/tacticsroom/internal/models"
)

// Broadcast event types, one per thing participants can observe.
const (
	EventParticipantJoined    = "participant_joined"
	EventParticipantActivity  = "participant_activity"
	EventSessionState         = "session_state"
	EventPlayerPosition       = "player_position_update"
	EventFormationUpdate      = "formation_update"
	EventTacticalUpdate       = "tactical_update"
	EventCursorMove           = "cursor_move"
	EventSelectionChange      = "selection_change"
	EventPositionConflict     = "position_conflict"
	EventConflictResolved     = "conflict_resolved"
	EventConflictAutoResolved = "conflict_auto_resolved"
	EventPermissionChanged    = "permission_changed"
	EventSessionDegraded      = "session_degraded"
	EventSessionEnded         = "session_ended"
)

// Event is one broadcast message to a session's live participants.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(eventType, sessionID string, data any) Event {
	return Event{
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// Broadcaster fans events out to a session's live connections. Delivery is
// best effort; the engine never blocks on a slow consumer.
type Broadcaster interface {
	ToSession(sessionID string, ev Event)
	ToOthers(sessionID, excludeUserID string, ev Event)
	ToUser(sessionID, userID string, ev Event)
	CloseSession(sessionID string)
}

type ParticipantJoinedPayload struct {
	Participant models.Participant `json:"participant"`
}

type ActivityPayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// UpdatePayload echoes a queued document edit to the other participants.
type UpdatePayload struct {
	UpdateID  string            `json:"update_id"`
	UserID    string            `json:"user_id"`
	Type      models.UpdateType `json:"type"`
	Data      json.RawMessage   `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
}

type PresencePayload struct {
	UserID          string                 `json:"user_id"`
	Cursor          *models.CursorPosition `json:"cursor,omitempty"`
	SelectedElement string                 `json:"selected_element,omitempty"`
}

type PermissionChangedPayload struct {
	Action       PermissionAction               `json:"action"`
	TargetUserID string                         `json:"target_user_id"`
	ActorUserID  string                         `json:"actor_user_id"`
	NewRole      models.ParticipantRole         `json:"new_role,omitempty"`
	RoleCounts   map[models.ParticipantRole]int `json:"role_counts"`
}

type SessionEndedPayload struct {
	Reason string `json:"reason"`
}

// DegradedPayload tells participants an edit was abandoned after repeated
// repository failures.
type DegradedPayload struct {
	UpdateID string `json:"update_id"`
	UserID   string `json:"user_id"`
	Detail   string `json:"detail"`
}
