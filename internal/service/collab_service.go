package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pitchside/tacticsroom/config"
	kafkaevents "github.com/pitchside/tacticsroom/internal/delivery/kafka"
	"github.com/pitchside/tacticsroom/internal/delivery/kafka/producer"
	"github.com/pitchside/tacticsroom/internal/models"
	repo "github.com/pitchside/tacticsroom/internal/repository/redis"
	"github.com/pitchside/tacticsroom/internal/store"
	"github.com/pitchside/tacticsroom/pkg/logger"
)

type collabService struct {
	*engineCore
}

func NewCollabService(
	st *store.Store,
	formRepo repo.FormationRepository,
	bc Broadcaster,
	prod producer.Producer,
	cfg config.CollabConfig,
	l logger.Logger,
) CollabService {
	return &collabService{
		engineCore: &engineCore{
			store:    st,
			formRepo: formRepo,
			bc:       bc,
			prod:     prod,
			cfg:      cfg,
			l:        l,
		},
	}
}

func (s *collabService) StartCollaboration(ctx context.Context, in StartCollaborationInput) (*StartCollaborationOutput, error) {
	f, err := s.formRepo.Load(ctx, in.FormationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFormationNotFound
		}
		s.l.Errorf(ctx, "collabService.StartCollaboration: load formation %s: %v", in.FormationID, err)
		return nil, err
	}

	if !f.ViewableBy(in.User) {
		return nil, ErrAccessDenied
	}

	for {
		st, created := s.store.GetOrCreate(in.FormationID, func() *models.CollaborationSession {
			now := time.Now()
			return &models.CollaborationSession{
				ID:          uuid.New().String(),
				FormationID: in.FormationID,
				Participants: []models.Participant{{
					UserID:   in.User.ID,
					UserName: in.User.Name,
					Role:     models.RoleOwner,
					JoinedAt: now,
					LastSeen: now,
				}},
				IsActive:     true,
				CreatedAt:    now,
				LastActivity: now,
				Permissions:  in.Permissions.Apply(models.DefaultPermissions()),
			}
		})

		st.Lock()
		if st.Ended {
			// Raced a teardown that has not left the store yet; the next
			// round gets a fresh session.
			st.Unlock()
			continue
		}

		now := time.Now()
		var joined *models.Participant
		if !created {
			if p := st.Session.Participant(in.User.ID); p != nil {
				p.LastSeen = now
			} else {
				role := models.RoleEditor
				if f.CreatedBy == in.User.ID {
					role = models.RoleOwner
				}
				st.Session.Participants = append(st.Session.Participants, models.Participant{
					UserID:   in.User.ID,
					UserName: in.User.Name,
					Role:     role,
					JoinedAt: now,
					LastSeen: now,
				})
				joined = st.Session.Participant(in.User.ID)
			}
		}
		st.Touch(in.User.ID, now)
		snap := st.Snapshot()
		var joinedCopy *models.Participant
		if joined != nil {
			pc := *joined
			joinedCopy = &pc
		}
		st.Unlock()

		if joinedCopy != nil {
			s.bc.ToOthers(snap.ID, in.User.ID, NewEvent(EventParticipantJoined, snap.ID, ParticipantJoinedPayload{
				Participant: *joinedCopy,
			}))
		}

		if created {
			if err := s.prod.PublishSessionStarted(ctx, kafkaevents.SessionStartedEvent{
				SessionID:   snap.ID,
				FormationID: snap.FormationID,
				StartedBy:   in.User.ID,
				StartedAt:   snap.CreatedAt,
			}); err != nil {
				s.l.Errorf(ctx, "collabService.StartCollaboration: publish session started: %v", err)
			}
			s.l.Infof(ctx, "collabService.StartCollaboration: session %s created on formation %s by %s",
				snap.ID, snap.FormationID, in.User.ID)
		}

		return &StartCollaborationOutput{
			SessionID: snap.ID,
			Session:   snap,
			Created:   created,
		}, nil
	}
}

func (s *collabService) EndCollaboration(ctx context.Context, sessionID string, user models.User) error {
	st, ok := s.store.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	st.Lock()
	if st.Ended {
		st.Unlock()
		return ErrSessionNotFound
	}
	p := st.Session.Participant(user.ID)
	if p == nil || p.Role != models.RoleOwner {
		st.Unlock()
		return ErrForbidden
	}
	snap, dropped := s.teardownLocked(st)
	st.Unlock()

	s.finishTeardown(ctx, snap, dropped, "Ended by owner")
	return nil
}

func (s *collabService) JoinLive(ctx context.Context, sessionID, userID string) (*models.CollaborationSession, error) {
	st, ok := s.store.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	st.Lock()
	if st.Ended {
		st.Unlock()
		return nil, ErrSessionNotFound
	}
	if !st.Session.HasParticipant(userID) {
		st.Unlock()
		return nil, ErrParticipantNotFound
	}
	st.Touch(userID, time.Now())
	snap := st.Snapshot()
	st.Unlock()

	s.bc.ToUser(sessionID, userID, NewEvent(EventSessionState, sessionID, snap))
	s.bc.ToOthers(sessionID, userID, NewEvent(EventParticipantActivity, sessionID, ActivityPayload{
		UserID: userID,
		Status: "joined",
	}))

	return &snap, nil
}

func (s *collabService) LeaveLive(ctx context.Context, sessionID, userID string) error {
	st, ok := s.store.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	st.Lock()
	if st.Ended {
		st.Unlock()
		return ErrSessionNotFound
	}
	p := st.Session.Participant(userID)
	if p == nil {
		st.Unlock()
		return ErrParticipantNotFound
	}
	wasOwner := p.Role == models.RoleOwner

	roster := st.Session.Participants
	for i := range roster {
		if roster[i].UserID == userID {
			st.Session.Participants = append(roster[:i], roster[i+1:]...)
			break
		}
	}

	// Zero-participant sessions never persist.
	if len(st.Session.Participants) == 0 {
		snap, dropped := s.teardownLocked(st)
		st.Unlock()
		s.finishTeardown(ctx, snap, dropped, "All participants left")
		return nil
	}

	// The sole owner walked out: promote the earliest joiner so the
	// at-least-one-owner invariant holds.
	var promoted *models.Participant
	if wasOwner && st.Session.OwnerCount() == 0 {
		idx := 0
		for i := range st.Session.Participants {
			if st.Session.Participants[i].JoinedAt.Before(st.Session.Participants[idx].JoinedAt) {
				idx = i
			}
		}
		st.Session.Participants[idx].Role = models.RoleOwner
		pc := st.Session.Participants[idx]
		promoted = &pc
	}

	st.Session.LastActivity = time.Now()
	counts := st.Session.RoleCounts()
	st.Unlock()

	s.bc.ToSession(sessionID, NewEvent(EventParticipantActivity, sessionID, ActivityPayload{
		UserID: userID,
		Status: "left",
	}))
	if promoted != nil {
		s.bc.ToSession(sessionID, NewEvent(EventPermissionChanged, sessionID, PermissionChangedPayload{
			Action:       PermissionUpdate,
			TargetUserID: promoted.UserID,
			ActorUserID:  models.SystemResolver,
			NewRole:      models.RoleOwner,
			RoleCounts:   counts,
		}))
		s.l.Infof(ctx, "collabService.LeaveLive: promoted %s to owner of session %s", promoted.UserID, sessionID)
	}

	return nil
}

func (s *collabService) GetActiveSessions(ctx context.Context, formationID string) ([]models.CollaborationSession, error) {
	if formationID != "" {
		st, ok := s.store.ByFormation(formationID)
		if !ok {
			return []models.CollaborationSession{}, nil
		}
		st.Lock()
		defer st.Unlock()
		if st.Ended {
			return []models.CollaborationSession{}, nil
		}
		return []models.CollaborationSession{st.Snapshot()}, nil
	}

	states := s.store.All()
	out := make([]models.CollaborationSession, 0, len(states))
	for _, st := range states {
		st.Lock()
		if !st.Ended {
			out = append(out, st.Snapshot())
		}
		st.Unlock()
	}
	return out, nil
}

func (s *collabService) EndFormationSessions(ctx context.Context, formationID, reason string) error {
	st, ok := s.store.ByFormation(formationID)
	if !ok {
		return nil
	}
	s.endSession(ctx, st, reason)
	return nil
}
