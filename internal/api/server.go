// Package api exposes the HTTP surface: Google sign-in, the chat turn
// endpoint and session management routes.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lumenchat/lumen/internal/auth"
	"github.com/lumenchat/lumen/internal/chat"
	"github.com/lumenchat/lumen/internal/session"
)

// ServerConfig contains the dependencies for the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	ChatService *chat.Service    // Required
	Sessions    *session.Manager // Required
	Verifier    auth.Verifier    // Required
	Tokens      *auth.TokenIssuer
	Environment string   // Reported by /health; "development" exposes error details
	CORSOrigins []string // Allowed origins for CORS
	TrustProxy  bool     // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst   int      // Rate limiter burst per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.ChatService == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	isDev := cfg.Environment == "development"

	ah := &authHandler{verifier: cfg.Verifier, tokens: cfg.Tokens, logger: logger}
	ch := &chatHandler{
		service:  cfg.ChatService,
		sessions: cfg.Sessions,
		logger:   logger,
		isDev:    isDev,
	}

	// Chat routes sit behind bearer-token auth.
	chatMux := http.NewServeMux()
	chatMux.HandleFunc("POST /api/chat", ch.send)
	chatMux.HandleFunc("GET /api/chat/sessions", ch.listSessions)
	chatMux.HandleFunc("GET /api/chat/history/{sessionId}", ch.history)
	chatMux.HandleFunc("DELETE /api/chat/session/{sessionId}", ch.deleteSession)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/google", ah.googleSignIn)
	mux.Handle("/api/chat", authMiddleware(cfg.Tokens, logger)(chatMux))
	mux.Handle("/api/chat/", authMiddleware(cfg.Tokens, logger)(chatMux))

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> CORS -> RateLimit -> Routes
	// RequestID precedes Logging so request_id is available in log lines.
	// CORS sits before RateLimit so preflight OPTIONS always gets headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(cfg.Environment, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
