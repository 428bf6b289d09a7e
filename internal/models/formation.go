package models

import "time"

// PlayerPosition is one player marker on the tactics board, coordinates in
// percent of pitch size.
type PlayerPosition struct {
	PlayerID string  `json:"player_id"`
	Name     string  `json:"name"`
	Number   int     `json:"number"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// Formation is the shared tactical document collaboration sessions edit.
// Persisted by the formation repository; the engine only reads it for
// access checks and delegates edits back.
type Formation struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Layout       string            `json:"layout"`
	CreatedBy    string            `json:"created_by"`
	IsPublic     bool              `json:"is_public"`
	SharedWith   []string          `json:"shared_with,omitempty"`
	Version      int64             `json:"version"`
	Players      []PlayerPosition  `json:"players"`
	Instructions map[string]string `json:"instructions,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ViewableBy reports whether user may read the formation: creators, shared
// users, public boards and app admins.
func (f *Formation) ViewableBy(user User) bool {
	if f.IsPublic || f.CreatedBy == user.ID || user.IsAdmin() {
		return true
	}
	for _, id := range f.SharedWith {
		if id == user.ID {
			return true
		}
	}
	return false
}

// FormationHistoryEntry records one applied edit, persisted alongside the
// formation.
type FormationHistoryEntry struct {
	Version     int64     `json:"version"`
	Actor       string    `json:"actor"`
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
}
