package service

import "errors"

var (
	ErrSessionNotFound   = errors.New("collaboration session not found")
	ErrFormationNotFound = errors.New("formation not found")

	ErrAccessDenied     = errors.New("no read access to formation")
	ErrForbidden        = errors.New("insufficient role for operation")
	ErrUnauthorizedEdit = errors.New("not authorized to edit in this session")

	// ErrLastOwner guards the roster invariant: an active session keeps at
	// least one owner.
	ErrLastOwner = errors.New("session must retain at least one owner")

	ErrParticipantExists   = errors.New("participant already in session")
	ErrParticipantNotFound = errors.New("participant not in session")

	ErrConflictNotFound = errors.New("conflict not found")

	ErrInvalidUpdateType       = errors.New("invalid update type")
	ErrInvalidUpdateData       = errors.New("update payload does not parse")
	ErrInvalidResolution       = errors.New("invalid conflict resolution")
	ErrInvalidRole             = errors.New("invalid participant role")
	ErrInvalidPermissionAction = errors.New("invalid permission action")
)
