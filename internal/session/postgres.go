package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions in the chat_sessions table, one row per
// session with the message history as a JSONB column.
//
// PostgresStore is safe for concurrent use.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Find returns the session or ErrNotFound.
func (s *PostgresStore) Find(ctx context.Context, id string) (*Session, error) {
	const query = `
		SELECT session_id, title, messages, created_at, last_updated
		FROM chat_sessions
		WHERE session_id = $1`

	var (
		sess     Session
		messages []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&sess.ID, &sess.Title, &messages, &sess.CreatedAt, &sess.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("finding session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding session %s: %w", id, err)
	}

	if err := json.Unmarshal(messages, &sess.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages for session %s: %w", id, err)
	}

	return &sess, nil
}

// Insert creates a new session row. A unique violation on the primary key
// maps to ErrConflict.
func (s *PostgresStore) Insert(ctx context.Context, sess *Session) error {
	const query = `
		INSERT INTO chat_sessions (session_id, title, messages, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5)`

	messages, err := encodeMessages(sess.Messages)
	if err != nil {
		return fmt.Errorf("encoding messages for session %s: %w", sess.ID, err)
	}

	_, err = s.pool.Exec(ctx, query,
		sess.ID, sess.Title, messages, sess.CreatedAt, sess.LastUpdated)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("inserting session %s: %w", sess.ID, ErrConflict)
		}
		return fmt.Errorf("inserting session %s: %w", sess.ID, err)
	}

	s.logger.Debug("session created", "session_id", sess.ID, "title", sess.Title)
	return nil
}

// Update replaces the stored document with the given one.
func (s *PostgresStore) Update(ctx context.Context, sess *Session) error {
	const query = `
		UPDATE chat_sessions
		SET title = $2, messages = $3, last_updated = $4
		WHERE session_id = $1`

	messages, err := encodeMessages(sess.Messages)
	if err != nil {
		return fmt.Errorf("encoding messages for session %s: %w", sess.ID, err)
	}

	tag, err := s.pool.Exec(ctx, query,
		sess.ID, sess.Title, messages, sess.LastUpdated)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", sess.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating session %s: %w", sess.ID, ErrNotFound)
	}

	s.logger.Debug("session updated", "session_id", sess.ID, "messages", len(sess.Messages))
	return nil
}

// Delete removes the session row. Removing a missing session succeeds.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM chat_sessions WHERE session_id = $1`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}

	s.logger.Debug("session deleted", "session_id", id, "existed", tag.RowsAffected() > 0)
	return nil
}

// List returns summaries of all sessions, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	const query = `
		SELECT session_id, title, created_at
		FROM chat_sessions
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning session summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	return summaries, nil
}

// encodeMessages serializes the history, mapping a nil slice to the empty
// JSON array the column default expects.
func encodeMessages(messages []Message) ([]byte, error) {
	if messages == nil {
		messages = []Message{}
	}
	return json.Marshal(messages)
}
