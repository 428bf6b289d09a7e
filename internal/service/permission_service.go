package service

import (
	"context"
	"time"

	"github.com/pitchside/tacticsroom/internal/models"
)

func (s *collabService) UpdateParticipantPermission(ctx context.Context, in UpdatePermissionInput) (*models.CollaborationSession, error) {
	switch in.Action {
	case PermissionAdd, PermissionUpdate, PermissionRemove:
	default:
		return nil, ErrInvalidPermissionAction
	}

	st, ok := s.store.Get(in.SessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	st.Lock()
	if st.Ended {
		st.Unlock()
		return nil, ErrSessionNotFound
	}

	actor := st.Session.Participant(in.Actor.ID)
	if actor == nil || actor.Role != models.RoleOwner {
		st.Unlock()
		return nil, ErrForbidden
	}

	now := time.Now()
	target := st.Session.Participant(in.TargetUserID)

	switch in.Action {
	case PermissionAdd:
		if target != nil {
			st.Unlock()
			return nil, ErrParticipantExists
		}
		if !in.NewRole.Valid() {
			st.Unlock()
			return nil, ErrInvalidRole
		}
		st.Session.Participants = append(st.Session.Participants, models.Participant{
			UserID:   in.TargetUserID,
			UserName: in.TargetUserName,
			Role:     in.NewRole,
			JoinedAt: now,
			LastSeen: now,
		})

	case PermissionUpdate:
		if target == nil {
			st.Unlock()
			return nil, ErrParticipantNotFound
		}
		if !in.NewRole.Valid() {
			st.Unlock()
			return nil, ErrInvalidRole
		}
		if target.Role == models.RoleOwner && in.NewRole != models.RoleOwner && st.Session.OwnerCount() == 1 {
			st.Unlock()
			return nil, ErrLastOwner
		}
		// Owners never modify their own entry; ownership moves by adding
		// another owner, not by self-demotion.
		if in.TargetUserID == in.Actor.ID {
			st.Unlock()
			return nil, ErrForbidden
		}
		target.Role = in.NewRole

	case PermissionRemove:
		if target == nil {
			st.Unlock()
			return nil, ErrParticipantNotFound
		}
		if target.Role == models.RoleOwner && st.Session.OwnerCount() == 1 {
			st.Unlock()
			return nil, ErrLastOwner
		}
		if in.TargetUserID == in.Actor.ID {
			st.Unlock()
			return nil, ErrForbidden
		}
		roster := st.Session.Participants
		for i := range roster {
			if roster[i].UserID == in.TargetUserID {
				st.Session.Participants = append(roster[:i], roster[i+1:]...)
				break
			}
		}
	}

	st.Touch(in.Actor.ID, now)
	snap := st.Snapshot()
	counts := st.Session.RoleCounts()
	st.Unlock()

	s.bc.ToSession(in.SessionID, NewEvent(EventPermissionChanged, in.SessionID, PermissionChangedPayload{
		Action:       in.Action,
		TargetUserID: in.TargetUserID,
		ActorUserID:  in.Actor.ID,
		NewRole:      in.NewRole,
		RoleCounts:   counts,
	}))

	s.l.Infof(ctx, "collabService.UpdateParticipantPermission: %s %s on %s in session %s by %s",
		in.Action, in.NewRole, in.TargetUserID, in.SessionID, in.Actor.ID)

	return &snap, nil
}
