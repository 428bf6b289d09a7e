package models

import (
	"encoding/json"
	"time"
)

type ConflictType string

const (
	ConflictTypePosition     ConflictType = "position_conflict"
	ConflictTypeSimultaneous ConflictType = "simultaneous_edit"
	ConflictTypeVersion      ConflictType = "version_conflict"
)

type ResolutionAction string

const (
	ResolutionAccept ResolutionAction = "accept"
	ResolutionReject ResolutionAction = "reject"
	ResolutionMerge  ResolutionAction = "merge"
)

func (a ResolutionAction) Valid() bool {
	return a == ResolutionAccept || a == ResolutionReject || a == ResolutionMerge
}

// SystemResolver marks conflicts closed by the auto-resolve sweep rather
// than a participant.
const SystemResolver = "system"

// ConflictData holds both competing edits. The original edit also still
// sits in the pending queue, held there until the conflict is resolved;
// the incoming one was withheld at submission and exists only here.
type ConflictData struct {
	Original *RealTimeUpdate `json:"original"`
	Incoming *RealTimeUpdate `json:"incoming"`
	Merged   json.RawMessage `json:"merged,omitempty"`
}

// ConflictResolution is a detected conflict; the resolution fields stay
// empty until a participant or the sweep closes it.
type ConflictResolution struct {
	ConflictID   string           `json:"conflict_id"`
	SessionID    string           `json:"session_id"`
	Type         ConflictType     `json:"type"`
	Participants []string         `json:"participants"`
	Data         ConflictData     `json:"data"`
	Resolution   ResolutionAction `json:"resolution,omitempty"`
	ResolvedBy   string           `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time       `json:"resolved_at,omitempty"`
	DetectedAt   time.Time        `json:"detected_at"`
}

func (c *ConflictResolution) Resolved() bool {
	return c.ResolvedAt != nil
}

// OlderThan reports whether the conflict has aged past the given duration,
// measured from the originating edit's timestamp. Conflicts with no anchored
// edit fall back to the detection time.
func (c *ConflictResolution) OlderThan(age time.Duration, now time.Time) bool {
	anchor := c.DetectedAt
	if c.Data.Original != nil {
		anchor = c.Data.Original.Timestamp
	}
	return now.Sub(anchor) >= age
}
