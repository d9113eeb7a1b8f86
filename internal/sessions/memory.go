package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexusengine/core/pkg/models"
)

// MemoryStore is an in-process Store, useful for tests and single-process
// deployments that don't need crash durability.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	events   map[string][]models.SessionEvent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.Session),
		events:   make(map[string][]models.SessionEvent),
	}
}

func (s *MemoryStore) CreateSession(ctx context.Context, metadata map[string]any) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := models.Session{
		SessionID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
	s.sessions[session.SessionID] = session
	s.events[session.SessionID] = nil
	return session, nil
}

func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *MemoryStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.events, sessionID)
	return nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, event models.SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[event.SessionID]; !ok {
		return ErrSessionNotFound
	}
	s.events[event.SessionID] = append(s.events[event.SessionID], event)
	return nil
}

func (s *MemoryStore) GetEvents(ctx context.Context, sessionID string, eventType models.EventType) ([]models.SessionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, ok := s.events[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if eventType == "" {
		out := make([]models.SessionEvent, len(all))
		copy(out, all)
		return out, nil
	}

	var filtered []models.SessionEvent
	for _, e := range all {
		if e.EventType == eventType {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (s *MemoryStore) Close() error { return nil }
