// Package chat implements the conversational turn: context assembly, model
// invocation and durable history updates.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lumenchat/lumen/internal/session"
)

// ErrInvalidInput indicates a missing message or session ID.
var ErrInvalidInput = errors.New("message and sessionId are required")

// Completer produces a model completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Result is the outcome of one processed turn.
type Result struct {
	SessionID string
	Reply     string
	Title     string
	Created   bool
}

// Config contains the required parameters for a Service.
type Config struct {
	Manager   *session.Manager
	Completer Completer
	Logger    *slog.Logger

	// ContextWindow bounds how many history messages enter the prompt.
	// 0 means unbounded.
	ContextWindow int
}

func (cfg Config) validate() error {
	if cfg.Manager == nil {
		return errors.New("session manager is required")
	}
	if cfg.Completer == nil {
		return errors.New("completer is required")
	}
	if cfg.ContextWindow < 0 {
		return errors.New("context window must not be negative")
	}
	return nil
}

// Service orchestrates chat turns over the session manager and the model.
//
// Service is safe for concurrent use. Turns on the same session are
// serialized by a per-session lock held from history read to history write,
// so concurrent turns cannot lose each other's messages.
type Service struct {
	manager   *session.Manager
	completer Completer
	logger    *slog.Logger
	window    int
	locks     *keyedMutex
}

// NewService creates a Service from the given configuration.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid chat service config: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		manager:   cfg.Manager,
		completer: cfg.Completer,
		logger:    logger,
		window:    cfg.ContextWindow,
		locks:     newKeyedMutex(),
	}, nil
}

// HandleTurn processes one user message: resolve the session (creating it
// with a generated title on first contact), build the prompt from prior
// history, call the model and append the exchange.
//
// The model call happens inside the per-session lock. A failed model call
// leaves the stored history untouched.
func (s *Service) HandleTurn(ctx context.Context, sessionID, message string) (*Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	message = strings.TrimSpace(message)
	if sessionID == "" || message == "" {
		return nil, ErrInvalidInput
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, created, err := s.manager.ResolveOrCreate(ctx, sessionID, func(ctx context.Context) string {
		return s.generateTitle(ctx, message)
	})
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	prompt := BuildPrompt(sess.Messages, message, s.window)
	reply, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating reply: %w", err)
	}

	updated, err := s.manager.AppendTurn(ctx, sessionID, message, reply)
	if err != nil {
		return nil, fmt.Errorf("persisting turn: %w", err)
	}

	s.logger.Info("turn completed",
		"session_id", sessionID,
		"created", created,
		"messages", len(updated.Messages))

	return &Result{
		SessionID: sessionID,
		Reply:     reply,
		Title:     updated.Title,
		Created:   created,
	}, nil
}

// generateTitle asks the model for a short title for a new session. Model
// failures fall back to a truncation of the first message; a session never
// gets an empty title.
func (s *Service) generateTitle(ctx context.Context, firstMessage string) string {
	raw, err := s.completer.Complete(ctx, TitlePrompt(firstMessage))
	if err != nil {
		s.logger.Debug("title generation failed, falling back to truncation", "error", err)
		return session.FallbackTitle(firstMessage)
	}

	title := session.NormalizeTitle(raw)
	if title == "" {
		return session.FallbackTitle(firstMessage)
	}
	return title
}
