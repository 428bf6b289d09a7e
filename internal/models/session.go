package models

import "time"

type ParticipantRole string

const (
	RoleOwner  ParticipantRole = "owner"
	RoleEditor ParticipantRole = "editor"
	RoleViewer ParticipantRole = "viewer"
)

func (r ParticipantRole) Valid() bool {
	return r == RoleOwner || r == RoleEditor || r == RoleViewer
}

// CanEdit reports whether the role may touch the document at all.
// Viewers only ever move cursors and selections.
func (r ParticipantRole) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

type Participant struct {
	UserID          string          `json:"user_id"`
	UserName        string          `json:"user_name"`
	Role            ParticipantRole `json:"role"`
	JoinedAt        time.Time       `json:"joined_at"`
	LastSeen        time.Time       `json:"last_seen"`
	Cursor          *CursorPosition `json:"cursor,omitempty"`
	SelectedElement string          `json:"selected_element,omitempty"`
}

type CursorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SessionPermissions are session-wide switches, fixed at creation.
type SessionPermissions struct {
	AllowEditing         bool `json:"allow_editing"`
	AllowPlayerMovement  bool `json:"allow_player_movement"`
	AllowTacticalChanges bool `json:"allow_tactical_changes"`
	AllowExport          bool `json:"allow_export"`
	RequireApproval      bool `json:"require_approval"`
}

func DefaultPermissions() SessionPermissions {
	return SessionPermissions{
		AllowEditing:         true,
		AllowPlayerMovement:  true,
		AllowTacticalChanges: true,
		AllowExport:          true,
		RequireApproval:      false,
	}
}

type CollaborationSession struct {
	ID           string             `json:"id"`
	FormationID  string             `json:"formation_id"`
	Participants []Participant      `json:"participants"`
	IsActive     bool               `json:"is_active"`
	CreatedAt    time.Time          `json:"created_at"`
	LastActivity time.Time          `json:"last_activity"`
	Permissions  SessionPermissions `json:"permissions"`
}

// Participant returns the roster entry for userID, or nil.
func (s *CollaborationSession) Participant(userID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

func (s *CollaborationSession) HasParticipant(userID string) bool {
	return s.Participant(userID) != nil
}

func (s *CollaborationSession) OwnerCount() int {
	n := 0
	for i := range s.Participants {
		if s.Participants[i].Role == RoleOwner {
			n++
		}
	}
	return n
}

// RoleCounts tallies the roster per role, for permission_changed payloads.
func (s *CollaborationSession) RoleCounts() map[ParticipantRole]int {
	counts := make(map[ParticipantRole]int, 3)
	for i := range s.Participants {
		counts[s.Participants[i].Role]++
	}
	return counts
}

func (s *CollaborationSession) IdleSince(threshold time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivity) > threshold
}

// Clone deep-copies the session so snapshots can leave the engine's
// critical section.
func (s *CollaborationSession) Clone() CollaborationSession {
	out := *s
	out.Participants = make([]Participant, len(s.Participants))
	copy(out.Participants, s.Participants)
	for i := range out.Participants {
		if c := out.Participants[i].Cursor; c != nil {
			cc := *c
			out.Participants[i].Cursor = &cc
		}
	}
	return out
}
