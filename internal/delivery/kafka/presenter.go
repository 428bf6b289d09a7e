package kafka

import "time"

// Events published BY the collaboration service

type SessionStartedEvent struct {
	SessionID   string    `json:"session_id"`
	FormationID string    `json:"formation_id"`
	StartedBy   string    `json:"started_by"`
	StartedAt   time.Time `json:"started_at"`
	Timestamp   time.Time `json:"timestamp"`
}

type SessionEndedEvent struct {
	SessionID   string    `json:"session_id"`
	FormationID string    `json:"formation_id"`
	Reason      string    `json:"reason"`
	EndedAt     time.Time `json:"ended_at"`
	Timestamp   time.Time `json:"timestamp"`
}

type ConflictResolvedEvent struct {
	ConflictID  string    `json:"conflict_id"`
	SessionID   string    `json:"session_id"`
	FormationID string    `json:"formation_id"`
	Resolution  string    `json:"resolution"`
	ResolvedBy  string    `json:"resolved_by"`
	ResolvedAt  time.Time `json:"resolved_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// Events consumed BY the collaboration service (from the formations service)

type FormationDeletedEvent struct {
	FormationID string    `json:"formation_id"`
	DeletedBy   string    `json:"deleted_by"`
	Timestamp   time.Time `json:"timestamp"`
}
