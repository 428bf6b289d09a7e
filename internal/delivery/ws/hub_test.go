package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/tacticsroom/internal/delivery"
	"github.com/pitchside/tacticsroom/internal/models"
	"github.com/pitchside/tacticsroom/internal/service"
	"github.com/pitchside/tacticsroom/pkg/logger"
)

type recordingService struct {
	mu       sync.Mutex
	joined   []string
	left     []string
	joinErr  error
	submits  []service.SubmitUpdateInput
	resolves []service.ResolveConflictInput
}

func (s *recordingService) JoinLive(_ context.Context, sessionID, userID string) (*models.CollaborationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joinErr != nil {
		return nil, s.joinErr
	}
	s.joined = append(s.joined, userID)
	return &models.CollaborationSession{ID: sessionID}, nil
}

func (s *recordingService) LeaveLive(_ context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = append(s.left, userID)
	return nil
}

func (s *recordingService) SubmitUpdate(_ context.Context, in service.SubmitUpdateInput) (*service.SubmitUpdateOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, in)
	return &service.SubmitUpdateOutput{UpdateID: "u1"}, nil
}

func (s *recordingService) ResolveConflict(_ context.Context, in service.ResolveConflictInput) (*models.ConflictResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolves = append(s.resolves, in)
	return &models.ConflictResolution{ConflictID: in.ConflictID}, nil
}

func (s *recordingService) StartCollaboration(context.Context, service.StartCollaborationInput) (*service.StartCollaborationOutput, error) {
	return nil, service.ErrSessionNotFound
}

func (s *recordingService) EndCollaboration(context.Context, string, models.User) error { return nil }

func (s *recordingService) UpdateParticipantPermission(context.Context, service.UpdatePermissionInput) (*models.CollaborationSession, error) {
	return nil, service.ErrSessionNotFound
}

func (s *recordingService) GetActiveSessions(context.Context, string) ([]models.CollaborationSession, error) {
	return nil, nil
}

func (s *recordingService) EndFormationSessions(context.Context, string, string) error { return nil }

func (s *recordingService) leftUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.left...)
}

// newWSServer serves the hub behind a header-based identity shim so tests
// can dial as different users.
func newWSServer(t *testing.T, svc service.CollabService) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(logger.InitializeTestZapLogger())
	hub.Bind(svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get("X-Test-User"); id != "" {
				r = r.WithContext(delivery.UserToContext(r.Context(), models.User{ID: id, Name: id}))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/ws/sessions/{sessionID}", hub.HandleWS)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialWS(t *testing.T, srv *httptest.Server, sessionID, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + sessionID
	header := http.Header{"X-Test-User": []string{userID}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) service.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev service.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestHandleWSJoinsAndLeaves(t *testing.T) {
	svc := &recordingService{}
	hub, srv := newWSServer(t, svc)

	conn := dialWS(t, srv, "s1", "alice")
	assert.Eventually(t, func() bool {
		return hub.SessionConnections("s1") == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool {
		return len(svc.leftUsers()) == 1 && hub.SessionConnections("s1") == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"alice"}, svc.leftUsers())
}

func TestHandleWSRejectsUnauthenticated(t *testing.T) {
	_, srv := newWSServer(t, &recordingService{})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/s1"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWSClosesOnJoinFailure(t *testing.T) {
	svc := &recordingService{joinErr: service.ErrParticipantNotFound}
	hub, srv := newWSServer(t, svc)

	conn := dialWS(t, srv, "s1", "ghost")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
	assert.Equal(t, 0, hub.SessionConnections("s1"))
}

func TestSubmitUpdateOverWS(t *testing.T) {
	svc := &recordingService{}
	_, srv := newWSServer(t, svc)
	conn := dialWS(t, srv, "s1", "alice")

	frame := map[string]any{
		"action": "submit_update",
		"type":   "player_move",
		"data":   map[string]any{"player_id": "p1", "x": 10, "y": 20},
	}
	require.NoError(t, conn.WriteJSON(frame))

	ack := readEvent(t, conn)
	assert.Equal(t, "update_accepted", ack.Type)

	svc.mu.Lock()
	require.Len(t, svc.submits, 1)
	assert.Equal(t, "s1", svc.submits[0].SessionID)
	assert.Equal(t, "alice", svc.submits[0].UserID)
	assert.Equal(t, models.UpdateTypePlayerMove, svc.submits[0].Type)
	svc.mu.Unlock()
}

func TestUnknownActionGetsError(t *testing.T) {
	_, srv := newWSServer(t, &recordingService{})
	conn := dialWS(t, srv, "s1", "alice")

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "dance"}))

	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev.Type)
}

func TestFanOutRoutesByRecipient(t *testing.T) {
	hub, srv := newWSServer(t, &recordingService{})
	alice := dialWS(t, srv, "s1", "alice")
	bob := dialWS(t, srv, "s1", "bob")

	require.Eventually(t, func() bool {
		return hub.SessionConnections("s1") == 2
	}, time.Second, 10*time.Millisecond)

	hub.ToOthers("s1", "alice", service.NewEvent("cursor_move", "s1", nil))
	ev := readEvent(t, bob)
	assert.Equal(t, "cursor_move", ev.Type)

	hub.ToUser("s1", "alice", service.NewEvent("session_state", "s1", nil))
	ev = readEvent(t, alice)
	assert.Equal(t, "session_state", ev.Type)

	hub.ToSession("s1", service.NewEvent("session_ended", "s1", nil))
	assert.Equal(t, "session_ended", readEvent(t, alice).Type)
	assert.Equal(t, "session_ended", readEvent(t, bob).Type)
}

func TestCloseSessionDisconnectsClients(t *testing.T) {
	hub, srv := newWSServer(t, &recordingService{})
	conn := dialWS(t, srv, "s1", "alice")

	require.Eventually(t, func() bool {
		return hub.SessionConnections("s1") == 1
	}, time.Second, 10*time.Millisecond)

	hub.CloseSession("s1")
	assert.Equal(t, 0, hub.SessionConnections("s1"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection is torn down")
}
