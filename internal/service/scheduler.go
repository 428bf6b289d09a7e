package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pitchside/tacticsroom/config"
	kafkaevents "github.com/pitchside/tacticsroom/internal/delivery/kafka"
	"github.com/pitchside/tacticsroom/internal/delivery/kafka/producer"
	"github.com/pitchside/tacticsroom/internal/models"
	repo "github.com/pitchside/tacticsroom/internal/repository/redis"
	"github.com/pitchside/tacticsroom/internal/store"
	"github.com/pitchside/tacticsroom/pkg/logger"
)

// SchedulerStatus is a point-in-time snapshot of the background loops.
type SchedulerStatus struct {
	IsRunning         bool      `json:"is_running"`
	StartedAt         time.Time `json:"started_at,omitempty"`
	LastApplyTick     time.Time `json:"last_apply_tick,omitempty"`
	LastResolveTick   time.Time `json:"last_resolve_tick,omitempty"`
	LastSweepTick     time.Time `json:"last_sweep_tick,omitempty"`
	AppliedTotal      int64     `json:"applied_total"`
	AutoResolvedTotal int64     `json:"auto_resolved_total"`
	SweptTotal        int64     `json:"swept_total"`
	DroppedTotal      int64     `json:"dropped_total"`
	ErrorCount        int64     `json:"error_count"`
}

type scheduler struct {
	*engineCore

	mu        sync.RWMutex
	isRunning bool
	startedAt time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup

	lastApplyTick   time.Time
	lastResolveTick time.Time
	lastSweepTick   time.Time
	appliedTotal    int64
	resolvedTotal   int64
	sweptTotal      int64
	droppedTotal    int64
	errorCount      int64
}

func NewScheduler(
	st *store.Store,
	formRepo repo.FormationRepository,
	bc Broadcaster,
	prod producer.Producer,
	cfg config.CollabConfig,
	l logger.Logger,
) Scheduler {
	return &scheduler{
		engineCore: &engineCore{
			store:    st,
			formRepo: formRepo,
			bc:       bc,
			prod:     prod,
			cfg:      cfg,
			l:        l,
		},
		stopCh: make(chan struct{}),
	}
}

func (sc *scheduler) Start(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.isRunning {
		return errors.New("scheduler is already running")
	}

	sc.l.Infof(ctx, "scheduler.Start: apply=%s resolve=%s sweep=%s",
		sc.cfg.ApplyInterval, sc.cfg.ResolveInterval, sc.cfg.SweepInterval)

	sc.isRunning = true
	sc.startedAt = time.Now()

	// Every tick logs through this context with the component field attached.
	ctx = logger.WithFields(ctx, sc.l, "component", "scheduler")

	sc.wg.Add(3)
	go sc.loop(ctx, sc.cfg.ApplyInterval, sc.ApplyPendingUpdates)
	go sc.loop(ctx, sc.cfg.ResolveInterval, sc.ResolveStaleConflicts)
	go sc.loop(ctx, sc.cfg.SweepInterval, sc.SweepInactiveSessions)

	return nil
}

func (sc *scheduler) Stop() error {
	sc.mu.Lock()
	if !sc.isRunning {
		sc.mu.Unlock()
		return errors.New("scheduler is not running")
	}
	close(sc.stopCh)
	sc.mu.Unlock()

	// Ticks take the status mutex, so waiting happens outside of it.
	sc.wg.Wait()

	sc.mu.Lock()
	sc.isRunning = false
	sc.mu.Unlock()

	sc.l.Info(context.Background(), "scheduler stopped")
	return nil
}

func (sc *scheduler) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	defer sc.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sc.stopCh:
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// ApplyPendingUpdates runs one apply tick: every active session's pending
// queue is drained in timestamp order, one session's failure never touching
// the next session's batch.
func (sc *scheduler) ApplyPendingUpdates(ctx context.Context) {
	defer sc.markTick(&sc.lastApplyTick)

	for _, st := range sc.store.All() {
		sc.applySession(ctx, st)
	}
}

func (sc *scheduler) applySession(ctx context.Context, st *store.SessionState) {
	st.Lock()
	if st.Ended {
		st.Unlock()
		return
	}
	batch := st.PendingSorted()
	formationID := st.Session.FormationID
	st.Unlock()

	for _, u := range batch {
		// A resolution may have discarded the update, or a fresh conflict
		// grabbed it, since the snapshot.
		st.Lock()
		if st.Ended {
			st.Unlock()
			return
		}
		if q := st.PendingByID(u.ID); q == nil || q.Held() {
			st.Unlock()
			continue
		}
		st.Unlock()

		version, err := sc.formRepo.ApplyEdit(ctx, formationID, u)
		if err != nil {
			sc.countError()
			sc.handleApplyFailure(ctx, st, u, err)
			// Stop this session's batch so later updates never overtake
			// the failed one.
			return
		}

		st.Lock()
		u.Applied = true
		u.Failures = 0
		st.DropPending(u.ID)
		st.Unlock()

		sc.mu.Lock()
		sc.appliedTotal++
		sc.mu.Unlock()

		if err := sc.formRepo.AppendHistory(ctx, formationID, models.FormationHistoryEntry{
			Version:     version,
			Actor:       u.UserID,
			Description: fmt.Sprintf("applied %s update %s", u.Type, u.ID),
			OccurredAt:  time.Now(),
		}); err != nil {
			sc.l.Warnf(ctx, "scheduler.applySession: append history for %s: %v", formationID, err)
		}
	}
}

func (sc *scheduler) handleApplyFailure(ctx context.Context, st *store.SessionState, u *models.RealTimeUpdate, err error) {
	st.Lock()
	u.Failures++
	failures := u.Failures
	exhausted := failures >= sc.cfg.MaxApplyRetries
	if exhausted {
		st.DropPending(u.ID)
	}
	sessionID := st.Session.ID
	st.Unlock()

	if !exhausted {
		sc.l.Warnf(ctx, "scheduler.applySession: update %s in session %s failed (%d/%d), retrying next tick: %v",
			u.ID, sessionID, failures, sc.cfg.MaxApplyRetries, err)
		return
	}

	sc.mu.Lock()
	sc.droppedTotal++
	sc.mu.Unlock()

	sc.l.Errorf(ctx, "scheduler.applySession: update %s in session %s dropped after %d failed applies: %v",
		u.ID, sessionID, failures, err)
	sc.bc.ToSession(sessionID, NewEvent(EventSessionDegraded, sessionID, DegradedPayload{
		UpdateID: u.ID,
		UserID:   u.UserID,
		Detail:   fmt.Sprintf("update dropped after %d failed apply attempts", failures),
	}))
}

// ResolveStaleConflicts accepts every conflict that has sat unresolved for
// the configured timeout: first writer wins so no session blocks forever.
func (sc *scheduler) ResolveStaleConflicts(ctx context.Context) {
	defer sc.markTick(&sc.lastResolveTick)

	now := time.Now()
	for _, st := range sc.store.All() {
		st.Lock()
		if st.Ended {
			st.Unlock()
			continue
		}
		stale := st.UnresolvedOlderThan(sc.cfg.ConflictTimeout, now)
		resolved := make([]models.ConflictResolution, 0, len(stale))
		for _, c := range stale {
			resolveConflictLocked(st, c, models.ResolutionAccept, models.SystemResolver, nil, now)
			resolved = append(resolved, *c)
		}
		sessionID := st.Session.ID
		formationID := st.Session.FormationID
		st.Unlock()

		for i := range resolved {
			c := &resolved[i]
			sc.bc.ToSession(sessionID, NewEvent(EventConflictAutoResolved, sessionID, *c))
			if err := sc.prod.PublishConflictResolved(ctx, kafkaevents.ConflictResolvedEvent{
				ConflictID:  c.ConflictID,
				SessionID:   sessionID,
				FormationID: formationID,
				Resolution:  string(c.Resolution),
				ResolvedBy:  c.ResolvedBy,
				ResolvedAt:  *c.ResolvedAt,
			}); err != nil {
				sc.countError()
				sc.l.Errorf(ctx, "scheduler.ResolveStaleConflicts: publish conflict resolved: %v", err)
			}
			sc.l.Infof(ctx, "scheduler.ResolveStaleConflicts: conflict %s in session %s auto-accepted",
				c.ConflictID, sessionID)
		}

		sc.mu.Lock()
		sc.resolvedTotal += int64(len(resolved))
		sc.mu.Unlock()
	}
}

// SweepInactiveSessions ends every session idle past the inactivity
// threshold, freeing its queues.
func (sc *scheduler) SweepInactiveSessions(ctx context.Context) {
	defer sc.markTick(&sc.lastSweepTick)

	now := time.Now()
	for _, st := range sc.store.All() {
		st.Lock()
		idle := !st.Ended && st.Session.IdleSince(sc.cfg.InactivityTimeout, now)
		if !idle {
			st.Unlock()
			continue
		}
		snap, dropped := sc.teardownLocked(st)
		st.Unlock()

		sc.finishTeardown(ctx, snap, dropped, "Inactivity timeout")

		sc.mu.Lock()
		sc.sweptTotal++
		sc.mu.Unlock()
	}
}

func (sc *scheduler) markTick(field *time.Time) {
	sc.mu.Lock()
	*field = time.Now()
	sc.mu.Unlock()
}

func (sc *scheduler) countError() {
	sc.mu.Lock()
	sc.errorCount++
	sc.mu.Unlock()
}

func (sc *scheduler) Status() SchedulerStatus {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	return SchedulerStatus{
		IsRunning:         sc.isRunning,
		StartedAt:         sc.startedAt,
		LastApplyTick:     sc.lastApplyTick,
		LastResolveTick:   sc.lastResolveTick,
		LastSweepTick:     sc.lastSweepTick,
		AppliedTotal:      sc.appliedTotal,
		AutoResolvedTotal: sc.resolvedTotal,
		SweptTotal:        sc.sweptTotal,
		DroppedTotal:      sc.droppedTotal,
		ErrorCount:        sc.errorCount,
	}
}
