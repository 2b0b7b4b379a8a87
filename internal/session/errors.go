package session

import "errors"

// Sentinel errors returned by Store implementations. Callers check them
// with errors.Is.
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrConflict indicates an insert raced with another insert of the
	// same session ID. The losing writer re-reads instead of retrying.
	ErrConflict = errors.New("session already exists")
)
