package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Manager implements the session lifecycle on top of a Store: lazy creation,
// turn appends, listing, history reads and deletion.
//
// Manager is safe for concurrent use; read-modify-write races on a single
// session are serialized by the caller holding a per-session lock around
// AppendTurn.
type Manager struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager backed by the given store.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// ResolveOrCreate returns the session with the given ID, creating it empty
// when absent. The title callback runs only on the create path, so callers
// can defer expensive title generation until a session is actually new.
//
// When two callers race to create the same ID, exactly one insert wins; the
// loser reads back the winner's session. Created reports whether this call
// performed the insert.
func (m *Manager) ResolveOrCreate(ctx context.Context, id string, title func(context.Context) string) (sess *Session, created bool, err error) {
	sess, err = m.store.Find(ctx, id)
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := m.now()
	sess = &Session{
		ID:          id,
		Title:       title(ctx),
		Messages:    []Message{},
		CreatedAt:   now,
		LastUpdated: now,
	}

	if err := m.store.Insert(ctx, sess); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost the create race; the winner's document is canonical.
			existing, findErr := m.store.Find(ctx, id)
			if findErr != nil {
				return nil, false, fmt.Errorf("resolving session %s after conflict: %w", id, findErr)
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	m.logger.Info("session created", "session_id", id, "title", sess.Title)
	return sess, true, nil
}

// AppendTurn appends one user/assistant exchange to the session history and
// advances last_updated. Timestamps are assigned here: the assistant message
// is always strictly after the user message, so slice order and timestamp
// order agree.
func (m *Manager) AppendTurn(ctx context.Context, id, userContent, assistantContent string) (*Session, error) {
	sess, err := m.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	userAt := m.now()
	assistantAt := m.now()
	if !assistantAt.After(userAt) {
		assistantAt = userAt.Add(time.Millisecond)
	}

	sess.Messages = append(sess.Messages,
		Message{Role: RoleUser, Content: userContent, Timestamp: userAt},
		Message{Role: RoleAssistant, Content: assistantContent, Timestamp: assistantAt},
	)
	sess.LastUpdated = assistantAt

	if err := m.store.Update(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Debug("turn appended", "session_id", id, "messages", len(sess.Messages))
	return sess, nil
}

// Get returns the full session document.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Find(ctx, id)
}

// History returns the ordered message history of a session.
func (m *Manager) History(ctx context.Context, id string) ([]Message, error) {
	sess, err := m.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.Messages, nil
}

// List returns summaries of all sessions, newest first.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	return m.store.List(ctx)
}

// Delete removes a session. Deleting an unknown session succeeds, so the
// operation is idempotent from the caller's view.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("session deleted", "session_id", id)
	return nil
}
