// Package store keeps all live collaboration state in memory: one
// SessionState per active session, indexed by session id and by formation
// id. The store's own lock only guards the indexes; each session carries
// its own mutex so work on one session never blocks another.
package store

import (
	"sync"

	"github.com/pitchside/tacticsroom/internal/models"
)

type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*SessionState
	byFormation map[string]string
}

func New() *Store {
	return &Store{
		sessions:    make(map[string]*SessionState),
		byFormation: make(map[string]string),
	}
}

// GetOrCreate returns the live session for formationID, building one via
// build when none exists. The second result is true when a new session was
// created. The check and the insert happen under one write lock so two
// concurrent starts on the same formation converge on one session.
func (s *Store) GetOrCreate(formationID string, build func() *models.CollaborationSession) (*SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byFormation[formationID]; ok {
		if st, ok := s.sessions[id]; ok {
			return st, false
		}
	}

	sess := build()
	st := newSessionState(sess)
	s.sessions[sess.ID] = st
	s.byFormation[formationID] = sess.ID
	return st, true
}

func (s *Store) Get(sessionID string) (*SessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	return st, ok
}

func (s *Store) ByFormation(formationID string) (*SessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byFormation[formationID]
	if !ok {
		return nil, false
	}
	st, ok := s.sessions[id]
	return st, ok
}

// Remove drops the session from both indexes. The SessionState itself may
// still be referenced by in-flight operations; they observe its Ended flag.
func (s *Store) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	delete(s.sessions, sessionID)
	if s.byFormation[st.Session.FormationID] == sessionID {
		delete(s.byFormation, st.Session.FormationID)
	}
}

// All snapshots the current session set. The returned states still need
// their own locks taken before use.
func (s *Store) All() []*SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*SessionState, 0, len(s.sessions))
	for _, st := range s.sessions {
		out = append(out, st)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
