package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for development and tests. Documents
// are deep-copied on the way in and out so callers cannot alias internal
// state.
//
// MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Find returns a copy of the session or ErrNotFound.
func (s *MemoryStore) Find(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("finding session %s: %w", id, ErrNotFound)
	}
	return copySession(sess), nil
}

// Insert stores a new session, returning ErrConflict when the ID exists.
func (s *MemoryStore) Insert(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("inserting session %s: %w", sess.ID, ErrConflict)
	}
	s.sessions[sess.ID] = copySession(sess)
	return nil
}

// Update replaces an existing session document.
func (s *MemoryStore) Update(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return fmt.Errorf("updating session %s: %w", sess.ID, ErrNotFound)
	}
	s.sessions[sess.ID] = copySession(sess)
	return nil
}

// Delete removes a session. Removing a missing session succeeds.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// List returns summaries of all sessions, newest first by creation time.
func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		summaries = append(summaries, sess.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func copySession(sess *Session) *Session {
	c := *sess
	c.Messages = make([]Message, len(sess.Messages))
	copy(c.Messages, sess.Messages)
	return &c
}
