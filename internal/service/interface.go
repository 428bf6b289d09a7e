package service

import (
	"context"

	"github.com/pitchside/tacticsroom/internal/models"
)

// CollabService is the collaboration engine's synchronous surface, called
// by the HTTP and WebSocket delivery layers with a pre-authenticated user.
type CollabService interface {
	StartCollaboration(ctx context.Context, in StartCollaborationInput) (*StartCollaborationOutput, error)
	EndCollaboration(ctx context.Context, sessionID string, user models.User) error
	JoinLive(ctx context.Context, sessionID, userID string) (*models.CollaborationSession, error)
	LeaveLive(ctx context.Context, sessionID, userID string) error
	SubmitUpdate(ctx context.Context, in SubmitUpdateInput) (*SubmitUpdateOutput, error)
	ResolveConflict(ctx context.Context, in ResolveConflictInput) (*models.ConflictResolution, error)
	UpdateParticipantPermission(ctx context.Context, in UpdatePermissionInput) (*models.CollaborationSession, error)
	GetActiveSessions(ctx context.Context, formationID string) ([]models.CollaborationSession, error)

	// EndFormationSessions tears down every active session on a formation,
	// used when the formations service announces a deletion.
	EndFormationSessions(ctx context.Context, formationID, reason string) error
}

// Scheduler runs the engine's three background sweeps: applying pending
// updates, auto-resolving stale conflicts and evicting idle sessions. The
// single-tick methods are exported so ticks can also be driven directly.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
	ApplyPendingUpdates(ctx context.Context)
	ResolveStaleConflicts(ctx context.Context)
	SweepInactiveSessions(ctx context.Context)
	Status() SchedulerStatus
}
