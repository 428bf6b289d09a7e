package store

import (
	"sort"
	"sync"
	"time"

	"github.com/pitchside/tacticsroom/internal/models"
)

// SessionState bundles everything the engine tracks for one session: the
// roster, the pending update queue and the open conflicts. Callers take the
// embedded mutex for the whole of an operation; every helper below assumes
// it is held.
type SessionState struct {
	sync.Mutex

	Session   *models.CollaborationSession
	Pending   []*models.RealTimeUpdate
	Conflicts []*models.ConflictResolution

	// Ended flips when the session is torn down so operations racing the
	// teardown on a stale pointer fail instead of mutating a ghost.
	Ended bool
}

func newSessionState(sess *models.CollaborationSession) *SessionState {
	return &SessionState{Session: sess}
}

// Touch refreshes the activity clocks: the session's lastActivity and, when
// the user is on the roster, their lastSeen.
func (st *SessionState) Touch(userID string, now time.Time) {
	st.Session.LastActivity = now
	if p := st.Session.Participant(userID); p != nil {
		p.LastSeen = now
	}
}

// Snapshot deep-copies the session for use outside the lock.
func (st *SessionState) Snapshot() models.CollaborationSession {
	return st.Session.Clone()
}

// FindPendingPlayerMove scans the queue for an unapplied player_move on the
// given player by some other user, timestamped at or after since. Returns
// the earliest match.
func (st *SessionState) FindPendingPlayerMove(playerID, excludeUserID string, since time.Time) *models.RealTimeUpdate {
	for _, u := range st.Pending {
		if u.Applied || u.UserID == excludeUserID || u.Type != models.UpdateTypePlayerMove {
			continue
		}
		if u.Timestamp.Before(since) {
			continue
		}
		move, ok := u.PlayerMovePayload()
		if !ok || move.PlayerID != playerID {
			continue
		}
		return u
	}
	return nil
}

// PendingSorted returns the apply-eligible queue ordered by timestamp
// ascending: unapplied updates not held by an open conflict. The sort is
// stable so updates with equal timestamps keep arrival order.
func (st *SessionState) PendingSorted() []*models.RealTimeUpdate {
	out := make([]*models.RealTimeUpdate, 0, len(st.Pending))
	for _, u := range st.Pending {
		if !u.Applied && !u.Held() {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// PendingByID returns the queued update with the given id, or nil.
func (st *SessionState) PendingByID(updateID string) *models.RealTimeUpdate {
	for _, u := range st.Pending {
		if u.ID == updateID {
			return u
		}
	}
	return nil
}

// DropPending removes the update with the given id from the queue.
func (st *SessionState) DropPending(updateID string) bool {
	for i, u := range st.Pending {
		if u.ID == updateID {
			st.Pending = append(st.Pending[:i], st.Pending[i+1:]...)
			return true
		}
	}
	return false
}

func (st *SessionState) Conflict(conflictID string) *models.ConflictResolution {
	for _, c := range st.Conflicts {
		if c.ConflictID == conflictID {
			return c
		}
	}
	return nil
}

func (st *SessionState) RemoveConflict(conflictID string) bool {
	for i, c := range st.Conflicts {
		if c.ConflictID == conflictID {
			st.Conflicts = append(st.Conflicts[:i], st.Conflicts[i+1:]...)
			return true
		}
	}
	return false
}

// UnresolvedOlderThan lists open conflicts whose age meets or exceeds the
// given duration, for the auto-resolve sweep.
func (st *SessionState) UnresolvedOlderThan(age time.Duration, now time.Time) []*models.ConflictResolution {
	var out []*models.ConflictResolution
	for _, c := range st.Conflicts {
		if !c.Resolved() && c.OlderThan(age, now) {
			out = append(out, c)
		}
	}
	return out
}
