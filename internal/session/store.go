package session

import "context"

// Store persists session documents. Implementations must be safe for
// concurrent use.
//
// Update replaces the whole document; last writer wins. Callers that need
// read-modify-write atomicity serialize per session above this interface.
type Store interface {
	// Find returns the session or ErrNotFound.
	Find(ctx context.Context, id string) (*Session, error)

	// Insert creates a new session. Returns ErrConflict when the ID
	// already exists.
	Insert(ctx context.Context, s *Session) error

	// Update replaces an existing session document. Returns ErrNotFound
	// when the session does not exist.
	Update(ctx context.Context, s *Session) error

	// Delete removes a session. Deleting a missing session is not an
	// error.
	Delete(ctx context.Context, id string) error

	// List returns summaries of all sessions, newest first by creation
	// time.
	List(ctx context.Context) ([]Summary, error)
}
