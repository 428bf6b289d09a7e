package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pitchside/tacticsroom/config"
	kafkaevents "github.com/pitchside/tacticsroom/internal/delivery/kafka"
	"github.com/pitchside/tacticsroom/internal/delivery/kafka/producer"
	"github.com/pitchside/tacticsroom/internal/models"
	repo "github.com/pitchside/tacticsroom/internal/repository/redis"
	"github.com/pitchside/tacticsroom/internal/store"
	"github.com/pitchside/tacticsroom/pkg/logger"
)

// engineCore carries the dependencies shared by the request-driven service
// and the background scheduler. All mutable state lives in the store.
type engineCore struct {
	store    *store.Store
	formRepo repo.FormationRepository
	bc       Broadcaster
	prod     producer.Producer
	cfg      config.CollabConfig
	l        logger.Logger
}

// endSession tears one session down end to end. Safe to race: only the
// caller that flips the Ended flag acts.
func (c *engineCore) endSession(ctx context.Context, st *store.SessionState, reason string) {
	st.Lock()
	if st.Ended {
		st.Unlock()
		return
	}
	snap, dropped := c.teardownLocked(st)
	st.Unlock()

	c.finishTeardown(ctx, snap, dropped, reason)
}

// teardownLocked flips the ended flag and empties the queues. Caller holds
// the session lock and must run finishTeardown after releasing it.
func (c *engineCore) teardownLocked(st *store.SessionState) (models.CollaborationSession, int) {
	st.Ended = true
	st.Session.IsActive = false

	dropped := 0
	for _, u := range st.Pending {
		if !u.Applied {
			dropped++
		}
	}
	st.Pending = nil
	st.Conflicts = nil

	return st.Snapshot(), dropped
}

func (c *engineCore) finishTeardown(ctx context.Context, snap models.CollaborationSession, dropped int, reason string) {
	c.bc.ToSession(snap.ID, NewEvent(EventSessionEnded, snap.ID, SessionEndedPayload{Reason: reason}))
	c.bc.CloseSession(snap.ID)
	c.store.Remove(snap.ID)

	if err := c.prod.PublishSessionEnded(ctx, kafkaevents.SessionEndedEvent{
		SessionID:   snap.ID,
		FormationID: snap.FormationID,
		Reason:      reason,
		EndedAt:     time.Now(),
	}); err != nil {
		c.l.Errorf(ctx, "collabService.finishTeardown: publish session ended: %v", err)
	}

	if dropped > 0 {
		c.l.Warnf(ctx, "collabService.finishTeardown: session %s ended (%s), %d pending updates dropped",
			snap.ID, reason, dropped)
	} else {
		c.l.Infof(ctx, "collabService.finishTeardown: session %s ended (%s)", snap.ID, reason)
	}
}

// resolveConflictLocked closes a conflict under the session lock. accept
// releases the hold on the original queued edit so the next apply tick can
// take it; reject drops it; merge drops it and stores the caller's merged
// payload opaquely. The withheld incoming edit is discarded in every case.
func resolveConflictLocked(st *store.SessionState, c *models.ConflictResolution, action models.ResolutionAction, resolvedBy string, merged json.RawMessage, now time.Time) {
	c.Resolution = action
	c.ResolvedBy = resolvedBy
	t := now
	c.ResolvedAt = &t

	switch action {
	case models.ResolutionAccept:
		if c.Data.Original != nil && c.Data.Original.Holds > 0 {
			c.Data.Original.Holds--
		}
	case models.ResolutionReject:
		if c.Data.Original != nil {
			st.DropPending(c.Data.Original.ID)
		}
	case models.ResolutionMerge:
		if c.Data.Original != nil {
			st.DropPending(c.Data.Original.ID)
		}
		c.Data.Merged = merged
	}

	st.RemoveConflict(c.ConflictID)
}
