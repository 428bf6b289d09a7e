package service

import (
	"encoding/json"

	"github.com/pitchside/tacticsroom/internal/models"
)

// PermissionOverrides carries the optional per-field overrides a session
// creator may set on top of the defaults. Nil fields keep the default.
type PermissionOverrides struct {
	AllowEditing         *bool `json:"allow_editing,omitempty"`
	AllowPlayerMovement  *bool `json:"allow_player_movement,omitempty"`
	AllowTacticalChanges *bool `json:"allow_tactical_changes,omitempty"`
	AllowExport          *bool `json:"allow_export,omitempty"`
	RequireApproval      *bool `json:"require_approval,omitempty"`
}

func (o *PermissionOverrides) Apply(p models.SessionPermissions) models.SessionPermissions {
	if o == nil {
		return p
	}
	if o.AllowEditing != nil {
		p.AllowEditing = *o.AllowEditing
	}
	if o.AllowPlayerMovement != nil {
		p.AllowPlayerMovement = *o.AllowPlayerMovement
	}
	if o.AllowTacticalChanges != nil {
		p.AllowTacticalChanges = *o.AllowTacticalChanges
	}
	if o.AllowExport != nil {
		p.AllowExport = *o.AllowExport
	}
	if o.RequireApproval != nil {
		p.RequireApproval = *o.RequireApproval
	}
	return p
}

type StartCollaborationInput struct {
	FormationID string               `json:"formation_id" validate:"required"`
	User        models.User          `json:"user"`
	Permissions *PermissionOverrides `json:"permissions,omitempty"`
}

type StartCollaborationOutput struct {
	SessionID string                      `json:"session_id"`
	Session   models.CollaborationSession `json:"session"`
	Created   bool                        `json:"created"`
}

type SubmitUpdateInput struct {
	SessionID string            `json:"session_id" validate:"required"`
	UserID    string            `json:"user_id" validate:"required"`
	Type      models.UpdateType `json:"type" validate:"required"`
	Data      json.RawMessage   `json:"data"`
}

type SubmitUpdateOutput struct {
	UpdateID string `json:"update_id"`

	// Conflict is set when the submission collided with a queued edit and
	// was withheld pending resolution.
	Conflict *models.ConflictResolution `json:"conflict,omitempty"`
}

type ResolveConflictInput struct {
	SessionID  string                  `json:"session_id" validate:"required"`
	UserID     string                  `json:"user_id" validate:"required"`
	ConflictID string                  `json:"conflict_id" validate:"required"`
	Resolution models.ResolutionAction `json:"resolution" validate:"required"`
	MergedData json.RawMessage         `json:"merged_data,omitempty"`
}

type PermissionAction string

const (
	PermissionAdd    PermissionAction = "add"
	PermissionUpdate PermissionAction = "update"
	PermissionRemove PermissionAction = "remove"
)

type UpdatePermissionInput struct {
	SessionID      string                 `json:"session_id" validate:"required"`
	Actor          models.User            `json:"-"`
	TargetUserID   string                 `json:"target_user_id" validate:"required"`
	TargetUserName string                 `json:"target_user_name,omitempty"`
	Action         PermissionAction       `json:"action" validate:"required"`
	NewRole        models.ParticipantRole `json:"new_role,omitempty"`
}
