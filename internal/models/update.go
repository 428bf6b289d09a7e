package models

import (
	"encoding/json"
	"time"
)

type UpdateType string

const (
	UpdateTypePlayerMove      UpdateType = "player_move"
	UpdateTypeFormationChange UpdateType = "formation_change"
	UpdateTypeTacticalUpdate  UpdateType = "tactical_update"
	UpdateTypeCursorMove      UpdateType = "cursor_move"
	UpdateTypeSelectionChange UpdateType = "selection_change"
)

func (t UpdateType) Valid() bool {
	switch t {
	case UpdateTypePlayerMove, UpdateTypeFormationChange, UpdateTypeTacticalUpdate,
		UpdateTypeCursorMove, UpdateTypeSelectionChange:
		return true
	}
	return false
}

// IsDocumentEdit reports whether the update mutates the formation document
// and therefore goes through the pending queue. Cursor and selection traffic
// is presence-only and broadcast immediately.
func (t UpdateType) IsDocumentEdit() bool {
	switch t {
	case UpdateTypePlayerMove, UpdateTypeFormationChange, UpdateTypeTacticalUpdate:
		return true
	}
	return false
}

// RealTimeUpdate sits in a session's pending queue until the apply tick
// delegates it to the formation repository.
type RealTimeUpdate struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Type      UpdateType      `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Applied   bool            `json:"applied"`

	// Failures counts consecutive apply attempts that errored. Not part of
	// the wire shape.
	Failures int `json:"-"`

	// Holds counts open conflicts anchored on this update. A held update
	// stays queued but never applies until every conflict resolves.
	Holds int `json:"-"`
}

// Held reports whether an open conflict is anchored on this update.
func (u *RealTimeUpdate) Held() bool {
	return u.Holds > 0
}

// PlayerMoveData is the payload of a player_move update.
type PlayerMoveData struct {
	PlayerID string  `json:"player_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// PlayerMovePayload decodes the update's data as a player move. Returns
// false when the update is not a player_move or the payload does not parse.
func (u *RealTimeUpdate) PlayerMovePayload() (PlayerMoveData, bool) {
	if u.Type != UpdateTypePlayerMove {
		return PlayerMoveData{}, false
	}
	var move PlayerMoveData
	if err := json.Unmarshal(u.Data, &move); err != nil {
		return PlayerMoveData{}, false
	}
	return move, true
}

// FormationChangeData is the payload of a formation_change update. Nil
// fields leave the document untouched.
type FormationChangeData struct {
	Name    *string          `json:"name,omitempty"`
	Layout  *string          `json:"layout,omitempty"`
	Players []PlayerPosition `json:"players,omitempty"`
}

// TacticalUpdateData merges instruction entries into the document.
type TacticalUpdateData struct {
	Instructions map[string]string `json:"instructions"`
}

// CursorMoveData is the payload of cursor_move / selection_change traffic.
type CursorMoveData struct {
	Cursor          *CursorPosition `json:"cursor,omitempty"`
	SelectedElement string          `json:"selected_element,omitempty"`
}
