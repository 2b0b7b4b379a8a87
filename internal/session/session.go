// Package session provides durable conversation session storage.
//
// A session is a single document: its identity, title, timestamps and the
// full ordered message history. Stores persist whole documents; ordering of
// messages inside a document is the slice order and is never re-sorted on
// read.
package session

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Message roles. Assistant turns are produced by the model, user turns by
// the authenticated caller.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TitleMaxLength is the maximum session title length in runes. Longer
// titles are truncated, never rejected.
const TitleMaxLength = 50

// Message is a single entry in a session's history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the stored conversation document.
type Session struct {
	ID          string    `json:"sessionId"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Summary is the listing projection of a session: identity and title only,
// no message history.
type Summary struct {
	ID        string    `json:"sessionId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary returns the listing projection of the session.
func (s *Session) Summary() Summary {
	return Summary{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
	}
}

// TruncateTitle enforces TitleMaxLength in runes so multi-byte text is not
// cut mid-character.
func TruncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= TitleMaxLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:TitleMaxLength])
}

// NormalizeTitle trims surrounding whitespace and quotes that models tend to
// wrap short answers in, then truncates. Returns "" when nothing remains;
// callers must substitute a fallback title, a session never stores an empty
// one.
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)
	return TruncateTitle(title)
}

// FallbackTitle derives a title from the first user message when the model
// cannot produce one.
func FallbackTitle(firstMessage string) string {
	title := NormalizeTitle(firstMessage)
	if title == "" {
		return "New conversation"
	}
	return title
}
