package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pitchside/tacticsroom/internal/models"
)

func (s *collabService) SubmitUpdate(ctx context.Context, in SubmitUpdateInput) (*SubmitUpdateOutput, error) {
	if !in.Type.Valid() {
		return nil, ErrInvalidUpdateType
	}

	st, ok := s.store.Get(in.SessionID)
	if !ok {
		return nil, ErrUnauthorizedEdit
	}

	st.Lock()
	if st.Ended {
		st.Unlock()
		return nil, ErrUnauthorizedEdit
	}

	p := st.Session.Participant(in.UserID)
	if p == nil {
		st.Unlock()
		return nil, ErrUnauthorizedEdit
	}

	now := time.Now()

	// Presence traffic never queues: it mutates the roster entry in place
	// and goes straight out.
	if !in.Type.IsDocumentEdit() {
		var presence models.CursorMoveData
		if len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, &presence); err != nil {
				st.Unlock()
				return nil, ErrInvalidUpdateData
			}
		}
		if in.Type == models.UpdateTypeCursorMove {
			p.Cursor = presence.Cursor
		} else {
			p.SelectedElement = presence.SelectedElement
		}
		st.Touch(in.UserID, now)
		payload := PresencePayload{
			UserID:          in.UserID,
			Cursor:          p.Cursor,
			SelectedElement: p.SelectedElement,
		}
		st.Unlock()

		s.bc.ToOthers(in.SessionID, in.UserID, NewEvent(presenceEventFor(in.Type), in.SessionID, payload))
		return &SubmitUpdateOutput{}, nil
	}

	if !s.mayEdit(p, st.Session.Permissions, in.Type) {
		st.Unlock()
		return nil, ErrUnauthorizedEdit
	}

	u := &models.RealTimeUpdate{
		ID:        uuid.New().String(),
		SessionID: in.SessionID,
		UserID:    in.UserID,
		Type:      in.Type,
		Data:      in.Data,
		Timestamp: now,
	}

	if in.Type == models.UpdateTypePlayerMove {
		move, parsed := u.PlayerMovePayload()
		if !parsed {
			st.Unlock()
			return nil, ErrInvalidUpdateData
		}

		since := now.Add(-s.cfg.ConflictWindow)
		if original := st.FindPendingPlayerMove(move.PlayerID, in.UserID, since); original != nil {
			// The first edit stays queued but is held: neither side of the
			// conflict reaches the document until someone resolves it.
			original.Holds++
			conflict := &models.ConflictResolution{
				ConflictID:   uuid.New().String(),
				SessionID:    in.SessionID,
				Type:         models.ConflictTypePosition,
				Participants: []string{original.UserID, in.UserID},
				Data: models.ConflictData{
					Original: original,
					Incoming: u,
				},
				DetectedAt: now,
			}
			st.Conflicts = append(st.Conflicts, conflict)
			st.Touch(in.UserID, now)
			snap := *conflict
			st.Unlock()

			s.bc.ToSession(in.SessionID, NewEvent(EventPositionConflict, in.SessionID, snap))
			s.l.Warnf(ctx, "collabService.SubmitUpdate: position conflict %s on player %s in session %s (%s vs %s)",
				snap.ConflictID, move.PlayerID, in.SessionID, original.UserID, in.UserID)

			// The submission is withheld until the conflict resolves.
			return &SubmitUpdateOutput{UpdateID: u.ID, Conflict: &snap}, nil
		}
	}

	st.Pending = append(st.Pending, u)
	st.Touch(in.UserID, now)
	st.Unlock()

	s.bc.ToOthers(in.SessionID, in.UserID, NewEvent(echoEventFor(in.Type), in.SessionID, UpdatePayload{
		UpdateID:  u.ID,
		UserID:    in.UserID,
		Type:      in.Type,
		Data:      in.Data,
		Timestamp: now,
	}))

	return &SubmitUpdateOutput{UpdateID: u.ID}, nil
}

// mayEdit enforces the role and session-permission gates on document
// edits. Viewers never edit; the session switches gate per category.
func (s *collabService) mayEdit(p *models.Participant, perms models.SessionPermissions, t models.UpdateType) bool {
	if !p.Role.CanEdit() || !perms.AllowEditing {
		return false
	}
	switch t {
	case models.UpdateTypePlayerMove:
		return perms.AllowPlayerMovement
	case models.UpdateTypeFormationChange, models.UpdateTypeTacticalUpdate:
		return perms.AllowTacticalChanges
	}
	return false
}

func echoEventFor(t models.UpdateType) string {
	switch t {
	case models.UpdateTypePlayerMove:
		return EventPlayerPosition
	case models.UpdateTypeFormationChange:
		return EventFormationUpdate
	default:
		return EventTacticalUpdate
	}
}

func presenceEventFor(t models.UpdateType) string {
	if t == models.UpdateTypeCursorMove {
		return EventCursorMove
	}
	return EventSelectionChange
}
