package service

import (
	"context"
	"time"

	kafkaevents "github.com/pitchside/tacticsroom/internal/delivery/kafka"
	"github.com/pitchside/tacticsroom/internal/models"
)

func (s *collabService) ResolveConflict(ctx context.Context, in ResolveConflictInput) (*models.ConflictResolution, error) {
	if !in.Resolution.Valid() {
		return nil, ErrInvalidResolution
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

	p := st.Session.Participant(in.UserID)
	if p == nil || !p.Role.CanEdit() {
		st.Unlock()
		return nil, ErrForbidden
	}

	conflict := st.Conflict(in.ConflictID)
	if conflict == nil {
		st.Unlock()
		return nil, ErrConflictNotFound
	}

	now := time.Now()
	resolveConflictLocked(st, conflict, in.Resolution, in.UserID, in.MergedData, now)
	st.Touch(in.UserID, now)
	snap := *conflict
	formationID := st.Session.FormationID
	st.Unlock()

	s.bc.ToSession(in.SessionID, NewEvent(EventConflictResolved, in.SessionID, snap))

	if err := s.prod.PublishConflictResolved(ctx, kafkaevents.ConflictResolvedEvent{
		ConflictID:  snap.ConflictID,
		SessionID:   in.SessionID,
		FormationID: formationID,
		Resolution:  string(snap.Resolution),
		ResolvedBy:  snap.ResolvedBy,
		ResolvedAt:  *snap.ResolvedAt,
	}); err != nil {
		s.l.Errorf(ctx, "collabService.ResolveConflict: publish conflict resolved: %v", err)
	}

	s.l.Infof(ctx, "collabService.ResolveConflict: conflict %s in session %s resolved as %s by %s",
		snap.ConflictID, in.SessionID, snap.Resolution, in.UserID)

	return &snap, nil
}
