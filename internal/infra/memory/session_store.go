package memory

import (
	"context"
	"sync"

	"neuroaid-diagnostic-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Snapshots are copied on the way in and out so callers never share state.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionSnapshot
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.SessionSnapshot),
	}
}

func (s *SessionStore) Create(_ context.Context, snapshot domain.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[snapshot.ID]; ok {
		return domain.ErrSessionExists
	}
	s.sessions[snapshot.ID] = snapshot.Clone()
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.sessions[sessionID]
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return snapshot.Clone(), nil
}

func (s *SessionStore) Save(_ context.Context, snapshot domain.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[snapshot.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions[snapshot.ID] = snapshot.Clone()
	return nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len reports how many sessions are held.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
