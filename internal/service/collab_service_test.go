package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/tacticsroom/internal/models"
)

func TestStartCollaborationCreatesSession(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	e.addFormation("f1", userA.ID)

	out := e.start(t, "f1", userA)

	assert.True(t, out.Created)
	assert.NotEmpty(t, out.SessionID)
	assert.True(t, out.Session.IsActive)
	require.Len(t, out.Session.Participants, 1)
	assert.Equal(t, models.RoleOwner, out.Session.Participants[0].Role)
	assert.Equal(t, userA.ID, out.Session.Participants[0].UserID)

	require.Len(t, e.prod.started, 1)
	assert.Equal(t, out.SessionID, e.prod.started[0].SessionID)
}

func TestStartCollaborationJoinsExistingSession(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	e.addFormation("f1", userA.ID)

	first := e.start(t, "f1", userA)
	second := e.start(t, "f1", userB)

	assert.False(t, second.Created)
	assert.Equal(t, first.SessionID, second.SessionID)
	require.Len(t, second.Session.Participants, 2)
	assert.Equal(t, models.RoleEditor, *roleOf(t, &second.Session, userB.ID))

	// B is not the formation creator, A is.
	assert.Equal(t, models.RoleOwner, *roleOf(t, &second.Session, userA.ID))
	assert.Equal(t, 1, e.bc.countByType(EventParticipantJoined))
	assert.Equal(t, 1, e.store.Len())
}

func TestStartCollaborationCreatorRejoinsAsOwner(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	e.addFormation("f1", userB.ID)

	e.start(t, "f1", userA)
	out := e.start(t, "f1", userB)

	assert.Equal(t, models.RoleOwner, *roleOf(t, &out.Session, userB.ID))
}

func TestStartCollaborationRejoinDoesNotDuplicate(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	e.addFormation("f1", userA.ID)

	e.start(t, "f1", userA)
	out := e.start(t, "f1", userA)

	assert.False(t, out.Created)
	assert.Len(t, out.Session.Participants, 1)
	assert.Equal(t, 0, e.bc.countByType(EventParticipantJoined))
}

func TestStartCollaborationErrors(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	f := e.addFormation("private", userA.ID)
	f.IsPublic = false
	e.repo.put(f)

	_, err := e.svc.StartCollaboration(context.Background(), StartCollaborationInput{
		FormationID: "missing",
		User:        userA,
	})
	assert.ErrorIs(t, err, ErrFormationNotFound)

	_, err = e.svc.StartCollaboration(context.Background(), StartCollaborationInput{
		FormationID: "private",
		User:        userB,
	})
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestStartCollaborationSharedAndPublicAccess(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	f := e.addFormation("f1", userA.ID)
	f.IsPublic = false
	f.SharedWith = []string{userB.ID}
	e.repo.put(f)

	out := e.start(t, "f1", userB)
	assert.True(t, out.Created)

	admin := models.User{ID: "root", Name: "Root", Role: models.UserRoleAdmin}
	out2 := e.start(t, "f1", admin)
	assert.Equal(t, out.SessionID, out2.SessionID)
}

func TestEndCollaborationOwnerOnly(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	e.addFormation("f1", userA.ID)
	out := e.start(t, "f1", userA)
	e.start(t, "f1", userB)

	err := e.svc.EndCollaboration(context.Background(), out.SessionID, userB)
	assert.ErrorIs(t, err, ErrForbidden)

	err = e.svc.EndCollaboration(context.Background(), out.SessionID, userA)
	require.NoError(t, err)

	_, ok := e.store.Get(out.SessionID)
	assert.False(t, ok)
	assert.Equal(t, 1, e.bc.countByType(EventSessionEnded))
	assert.Equal(t, []string{out.SessionID}, e.bc.closed)
	require.Len(t, e.prod.ended, 1)
	assert.Equal(t, "Ended by owner", e.prod.ended[0].Reason)

	err = e.svc.EndCollaboration(context.Background(), out.SessionID, userA)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJoinLiveSendsSnapshotAndActivity(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	e.addFormation("f1", userA.ID)
	out := e.start(t, "f1", userA)

	snap, err := e.svc.JoinLive(context.Background(), out.SessionID, userA.ID)
	require.NoError(t, err)
	assert.Equal(t, out.SessionID, snap.ID)
	assert.Equal(t, 1, e.bc.countByType(EventSessionState))
	assert.Equal(t, 1, e.bc.countByType(EventParticipantActivity))

	_, err = e.svc.JoinLive(context.Background(), out.SessionID, "stranger")
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	_, err = e.svc.JoinLive(context.Background(), "nope", userA.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLeaveLiveLastParticipantEndsSession(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	e.addFormation("f1", userA.ID)
	out := e.start(t, "f1", userA)

	err := e.svc.LeaveLive(context.Background(), out.SessionID, userA.ID)
	require.NoError(t, err)

	_, ok := e.store.Get(out.SessionID)
	assert.False(t, ok, "zero-participant session must not persist")
	require.Len(t, e.prod.ended, 1)
	assert.Equal(t, "All participants left", e.prod.ended[0].Reason)
}

func TestLeaveLivePromotesEarliestJoiner(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	e.addFormation("f1", userA.ID)
	out := e.start(t, "f1", userA)
	e.start(t, "f1", userB)
	e.start(t, "f1", userC)

	err := e.svc.LeaveLive(context.Background(), out.SessionID, userA.ID)
	require.NoError(t, err)

	st := e.sessionState(t, out.SessionID)
	st.Lock()
	defer st.Unlock()
	require.Equal(t, 1, st.Session.OwnerCount())
	p := st.Session.Participant(userB.ID)
	require.NotNil(t, p)
	assert.Equal(t, models.RoleOwner, p.Role, "earliest joiner becomes owner")
}

func TestGetActiveSessions(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	e.addFormation("f1", userA.ID)
	e.addFormation("f2", userB.ID)
	s1 := e.start(t, "f1", userA)
	e.start(t, "f2", userB)

	byFormation, err := e.svc.GetActiveSessions(context.Background(), "f1")
	require.NoError(t, err)
	require.Len(t, byFormation, 1)
	assert.Equal(t, s1.SessionID, byFormation[0].ID)

	all, err := e.svc.GetActiveSessions(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := e.svc.GetActiveSessions(context.Background(), "f3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEndFormationSessions(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	e.addFormation("f1", userA.ID)
	out := e.start(t, "f1", userA)

	err := e.svc.EndFormationSessions(context.Background(), "f1", "Formation deleted")
	require.NoError(t, err)

	_, ok := e.store.Get(out.SessionID)
	assert.False(t, ok)
	require.Len(t, e.prod.ended, 1)
	assert.Equal(t, "Formation deleted", e.prod.ended[0].Reason)

	// No session on the formation is a no-op.
	assert.NoError(t, e.svc.EndFormationSessions(context.Background(), "f1", "Formation deleted"))
}

func TestEndedSessionIDNeverReused(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	e.addFormation("f1", userA.ID)

	first := e.start(t, "f1", userA)
	require.NoError(t, e.svc.EndCollaboration(context.Background(), first.SessionID, userA))

	second := e.start(t, "f1", userA)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestSessionActivityRefreshedByStart(t *testing.T) {
	e := newTestEngine(t, testCollabConfig())
	e.addFormation("f1", userA.ID)
	out := e.start(t, "f1", userA)

	st := e.sessionState(t, out.SessionID)
	st.Lock()
	st.Session.LastActivity = time.Now().Add(-time.Hour)
	st.Unlock()

	e.start(t, "f1", userB)

	st.Lock()
	defer st.Unlock()
	assert.WithinDuration(t, time.Now(), st.Session.LastActivity, time.Second)
}

func roleOf(t *testing.T, s *models.CollaborationSession, userID string) *models.ParticipantRole {
	t.Helper()
	p := s.Participant(userID)
	if p == nil {
		t.Fatalf("participant %s not in session %s", userID, s.ID)
	}
	return &p.Role
}
