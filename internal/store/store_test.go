package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/tacticsroom/internal/models"
)

func buildSession(id, formationID string) func() *models.CollaborationSession {
	return func() *models.CollaborationSession {
		now := time.Now()
		return &models.CollaborationSession{
			ID:           id,
			FormationID:  formationID,
			IsActive:     true,
			CreatedAt:    now,
			LastActivity: now,
			Permissions:  models.DefaultPermissions(),
		}
	}
}

func playerMove(id, userID, playerID string, at time.Time) *models.RealTimeUpdate {
	data, _ := json.Marshal(models.PlayerMoveData{PlayerID: playerID, X: 50, Y: 50})
	return &models.RealTimeUpdate{
		ID:        id,
		UserID:    userID,
		Type:      models.UpdateTypePlayerMove,
		Data:      data,
		Timestamp: at,
	}
}

func TestGetOrCreateConvergesPerFormation(t *testing.T) {
	s := New()

	first, created := s.GetOrCreate("f1", buildSession("s1", "f1"))
	assert.True(t, created)

	second, created := s.GetOrCreate("f1", buildSession("s2", "f1"))
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, 1, s.Len())

	_, created = s.GetOrCreate("f2", buildSession("s3", "f2"))
	assert.True(t, created)
	assert.Equal(t, 2, s.Len())
}

func TestGetOrCreateConcurrent(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	results := make([]*SessionState, 16)
	for i := 0; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, _ := s.GetOrCreate("f1", buildSession(fmt.Sprintf("s%d", i), "f1"))
			results[i] = st
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, s.Len())
	for _, st := range results {
		assert.Same(t, results[0], st)
	}
}

func TestRemoveDropsBothIndexes(t *testing.T) {
	s := New()
	s.GetOrCreate("f1", buildSession("s1", "f1"))

	s.Remove("s1")

	_, ok := s.Get("s1")
	assert.False(t, ok)
	_, ok = s.ByFormation("f1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	// Removing twice is a no-op.
	s.Remove("s1")
}

func TestRemoveKeepsNewerFormationMapping(t *testing.T) {
	s := New()
	old, _ := s.GetOrCreate("f1", buildSession("s1", "f1"))
	old.Lock()
	old.Ended = true
	old.Unlock()
	s.Remove("s1")

	s.GetOrCreate("f1", buildSession("s2", "f1"))

	// A late Remove on the old id must not unmap the replacement.
	s.Remove("s1")
	st, ok := s.ByFormation("f1")
	require.True(t, ok)
	assert.Equal(t, "s2", st.Session.ID)
}

func TestFindPendingPlayerMove(t *testing.T) {
	st := newSessionState(buildSession("s1", "f1")())
	now := time.Now()
	since := now.Add(-time.Second)

	st.Pending = []*models.RealTimeUpdate{
		playerMove("u1", "alice", "p1", now.Add(-2*time.Second)), // too old
		playerMove("u2", "bob", "p2", now),                       // other player
		playerMove("u3", "bob", "p1", now),
	}

	hit := st.FindPendingPlayerMove("p1", "alice", since)
	require.NotNil(t, hit)
	assert.Equal(t, "u3", hit.ID)

	// The submitting user's own moves never match.
	assert.Nil(t, st.FindPendingPlayerMove("p1", "bob", since))

	// Applied updates are out of the race.
	st.Pending[2].Applied = true
	assert.Nil(t, st.FindPendingPlayerMove("p1", "alice", since))
}

func TestPendingSortedIsStableOnEqualTimestamps(t *testing.T) {
	st := newSessionState(buildSession("s1", "f1")())
	at := time.Now()

	st.Pending = []*models.RealTimeUpdate{
		playerMove("u1", "alice", "p1", at.Add(time.Millisecond)),
		playerMove("u2", "alice", "p2", at),
		playerMove("u3", "alice", "p3", at),
	}

	sorted := st.PendingSorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, "u2", sorted[0].ID)
	assert.Equal(t, "u3", sorted[1].ID, "equal timestamps keep arrival order")
	assert.Equal(t, "u1", sorted[2].ID)
}

func TestPendingSortedSkipsHeldUpdates(t *testing.T) {
	st := newSessionState(buildSession("s1", "f1")())
	at := time.Now()

	st.Pending = []*models.RealTimeUpdate{
		playerMove("u1", "alice", "p1", at),
		playerMove("u2", "bob", "p2", at.Add(time.Millisecond)),
	}
	st.Pending[0].Holds = 1

	sorted := st.PendingSorted()
	require.Len(t, sorted, 1)
	assert.Equal(t, "u2", sorted[0].ID)

	// Releasing the hold makes the update eligible again.
	st.Pending[0].Holds = 0
	assert.Len(t, st.PendingSorted(), 2)
}

func TestDropPendingAndConflictHelpers(t *testing.T) {
	st := newSessionState(buildSession("s1", "f1")())
	st.Pending = []*models.RealTimeUpdate{
		playerMove("u1", "alice", "p1", time.Now()),
		playerMove("u2", "bob", "p1", time.Now()),
	}

	assert.True(t, st.DropPending("u1"))
	assert.False(t, st.DropPending("u1"))
	require.Len(t, st.Pending, 1)
	assert.NotNil(t, st.PendingByID("u2"))
	assert.Nil(t, st.PendingByID("u1"))

	st.Conflicts = []*models.ConflictResolution{
		{ConflictID: "c1", DetectedAt: time.Now().Add(-time.Minute)},
		{ConflictID: "c2", DetectedAt: time.Now()},
	}
	assert.NotNil(t, st.Conflict("c1"))

	stale := st.UnresolvedOlderThan(30*time.Second, time.Now())
	require.Len(t, stale, 1)
	assert.Equal(t, "c1", stale[0].ConflictID)

	assert.True(t, st.RemoveConflict("c1"))
	assert.False(t, st.RemoveConflict("c1"))
	assert.Len(t, st.Conflicts, 1)
}

func TestTouchRefreshesClocks(t *testing.T) {
	sess := buildSession("s1", "f1")()
	sess.Participants = []models.Participant{{UserID: "alice", Role: models.RoleOwner}}
	st := newSessionState(sess)

	now := time.Now()
	st.Touch("alice", now)
	assert.Equal(t, now, st.Session.LastActivity)
	assert.Equal(t, now, st.Session.Participant("alice").LastSeen)

	// Unknown users still bump the session clock.
	later := now.Add(time.Minute)
	st.Touch("ghost", later)
	assert.Equal(t, later, st.Session.LastActivity)
}
