package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pitchside/tacticsroom/config"
	kafkaevents "github.com/pitchside/tacticsroom/internal/delivery/kafka"
	"github.com/pitchside/tacticsroom/internal/models"
	repo "github.com/pitchside/tacticsroom/internal/repository/redis"
	"github.com/pitchside/tacticsroom/internal/store"
	"github.com/pitchside/tacticsroom/pkg/logger"
)

// fakeFormationRepo keeps formations in a map and records applied edits in
// arrival order. Individual update ids can be told to fail.
type fakeFormationRepo struct {
	mu         sync.Mutex
	formations map[string]*models.Formation
	applied    []*models.RealTimeUpdate
	history    []models.FormationHistoryEntry
	failIDs    map[string]bool
}

func newFakeFormationRepo() *fakeFormationRepo {
	return &fakeFormationRepo{
		formations: make(map[string]*models.Formation),
		failIDs:    make(map[string]bool),
	}
}

func (r *fakeFormationRepo) put(f *models.Formation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formations[f.ID] = f
}

func (r *fakeFormationRepo) failUpdate(id string, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failIDs[id] = fail
}

func (r *fakeFormationRepo) appliedUpdates() []*models.RealTimeUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.RealTimeUpdate, len(r.applied))
	copy(out, r.applied)
	return out
}

func (r *fakeFormationRepo) Load(ctx context.Context, fID string) (*models.Formation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.formations[fID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFormationRepo) Save(ctx context.Context, f *models.Formation) error {
	r.put(f)
	return nil
}

func (r *fakeFormationRepo) Delete(ctx context.Context, fID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.formations, fID)
	return nil
}

func (r *fakeFormationRepo) ApplyEdit(ctx context.Context, fID string, u *models.RealTimeUpdate) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failIDs[u.ID] {
		return 0, fmt.Errorf("injected apply failure for %s", u.ID)
	}
	f, ok := r.formations[fID]
	if !ok {
		return 0, repo.ErrNotFound
	}
	f.Version++
	r.applied = append(r.applied, u)
	return f.Version, nil
}

func (r *fakeFormationRepo) AppendHistory(ctx context.Context, fID string, entry models.FormationHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, entry)
	return nil
}

func (r *fakeFormationRepo) History(ctx context.Context, fID string, limit int64) ([]models.FormationHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.FormationHistoryEntry(nil), r.history...), nil
}

// fakeBroadcaster records every event in emission order.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []Event
	closed []string
}

func newFakeBroadcaster() *fakeBroadcaster { return &fakeBroadcaster{} }

func (b *fakeBroadcaster) ToSession(sessionID string, ev Event) { b.record(ev) }

func (b *fakeBroadcaster) ToOthers(sessionID, excludeUserID string, ev Event) { b.record(ev) }

func (b *fakeBroadcaster) ToUser(sessionID, userID string, ev Event) { b.record(ev) }

func (b *fakeBroadcaster) CloseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, sessionID)
}

func (b *fakeBroadcaster) record(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *fakeBroadcaster) byType(eventType string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, ev := range b.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (b *fakeBroadcaster) countByType(eventType string) int {
	return len(b.byType(eventType))
}

// capturingProducer records published collaboration events.
type capturingProducer struct {
	mu       sync.Mutex
	started  []kafkaevents.SessionStartedEvent
	ended    []kafkaevents.SessionEndedEvent
	resolved []kafkaevents.ConflictResolvedEvent
}

func newCapturingProducer() *capturingProducer { return &capturingProducer{} }

func (p *capturingProducer) PublishSessionStarted(ctx context.Context, e kafkaevents.SessionStartedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, e)
	return nil
}

func (p *capturingProducer) PublishSessionEnded(ctx context.Context, e kafkaevents.SessionEndedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, e)
	return nil
}

func (p *capturingProducer) PublishConflictResolved(ctx context.Context, e kafkaevents.ConflictResolvedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = append(p.resolved, e)
	return nil
}

func (p *capturingProducer) Close() error { return nil }

func testCollabConfig() config.CollabConfig {
	return config.CollabConfig{
		ApplyInterval:     10 * time.Millisecond,
		ResolveInterval:   10 * time.Millisecond,
		SweepInterval:     10 * time.Millisecond,
		ConflictWindow:    1 * time.Second,
		ConflictTimeout:   30 * time.Second,
		InactivityTimeout: 30 * time.Minute,
		MaxApplyRetries:   3,
		HistoryLimit:      50,
	}
}

type testEngine struct {
	svc   CollabService
	sched Scheduler
	store *store.Store
	repo  *fakeFormationRepo
	bc    *fakeBroadcaster
	prod  *capturingProducer
	cfg   config.CollabConfig
}

func newTestEngine(t *testing.T, cfg config.CollabConfig) *testEngine {
	t.Helper()

	st := store.New()
	formRepo := newFakeFormationRepo()
	bc := newFakeBroadcaster()
	prod := newCapturingProducer()
	l := logger.InitializeTestZapLogger()

	return &testEngine{
		svc:   NewCollabService(st, formRepo, bc, prod, cfg, l),
		sched: NewScheduler(st, formRepo, bc, prod, cfg, l),
		store: st,
		repo:  formRepo,
		bc:    bc,
		prod:  prod,
		cfg:   cfg,
	}
}

func (e *testEngine) addFormation(id, createdBy string, players ...string) *models.Formation {
	f := &models.Formation{
		ID:        id,
		Name:      "Test Formation",
		Layout:    "4-3-3",
		CreatedBy: createdBy,
		IsPublic:  true,
		Version:   1,
	}
	for i, p := range players {
		f.Players = append(f.Players, models.PlayerPosition{
			PlayerID: p,
			Name:     fmt.Sprintf("Player %d", i+1),
			Number:   i + 1,
			X:        50,
			Y:        50,
		})
	}
	e.repo.put(f)
	return f
}

func (e *testEngine) start(t *testing.T, formationID string, user models.User) *StartCollaborationOutput {
	t.Helper()
	out, err := e.svc.StartCollaboration(context.Background(), StartCollaborationInput{
		FormationID: formationID,
		User:        user,
	})
	if err != nil {
		t.Fatalf("StartCollaboration(%s, %s): %v", formationID, user.ID, err)
	}
	return out
}

func (e *testEngine) sessionState(t *testing.T, sessionID string) *store.SessionState {
	t.Helper()
	st, ok := e.store.Get(sessionID)
	if !ok {
		t.Fatalf("session %s not in store", sessionID)
	}
	return st
}

func moveData(t *testing.T, playerID string, x, y float64) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(models.PlayerMoveData{PlayerID: playerID, X: x, Y: y})
	if err != nil {
		t.Fatalf("marshal move: %v", err)
	}
	return raw
}

var (
	userA = models.User{ID: "user-a", Name: "Alice", Role: models.UserRoleUser}
	userB = models.User{ID: "user-b", Name: "Bruno", Role: models.UserRoleUser}
	userC = models.User{ID: "user-c", Name: "Carla", Role: models.UserRoleUser}
)
