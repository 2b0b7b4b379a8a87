package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lumenchat/lumen/internal/chat"
	"github.com/lumenchat/lumen/internal/session"
)

// chatHandler serves the chat turn endpoint and session management routes.
type chatHandler struct {
	service  *chat.Service
	sessions *session.Manager
	logger   *slog.Logger
	isDev    bool
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
}

// send processes one chat turn.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Message and sessionId are required", "", h.logger)
		return
	}

	if claims, ok := identityFromContext(r.Context()); ok {
		h.logger.Debug("chat turn received", "session_id", req.SessionID, "user", claims.Subject)
	}

	result, err := h.service.HandleTurn(r.Context(), req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "Message and sessionId are required", "", h.logger)
			return
		}
		h.logger.Error("chat turn failed", "error", err, "session_id", req.SessionID)
		writeError(w, http.StatusInternalServerError, "An error occurred", h.details(err), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Message:   result.Reply,
		SessionID: result.SessionID,
		Title:     result.Title,
	}, h.logger)
}

// listSessions returns summaries of all sessions, newest first.
func (h *chatHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.sessions.List(r.Context())
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch chat sessions", h.details(err), h.logger)
		return
	}
	writeJSON(w, http.StatusOK, summaries, h.logger)
}

// history returns the full session document including its messages.
func (h *chatHandler) history(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")

	sess, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found", "", h.logger)
			return
		}
		h.logger.Error("fetching history", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to fetch chat history", h.details(err), h.logger)
		return
	}
	writeJSON(w, http.StatusOK, sess, h.logger)
}

// deleteSession removes a session. Unknown IDs get the same success answer
// as existing ones.
func (h *chatHandler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")

	if err := h.sessions.Delete(r.Context(), id); err != nil {
		h.logger.Error("deleting session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to delete session", h.details(err), h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"}, h.logger)
}

// details exposes the internal error message in development only.
func (h *chatHandler) details(err error) string {
	if h.isDev {
		return err.Error()
	}
	return ""
}
