package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lumenchat/lumen/internal/auth"
)

// authHandler exchanges Google ID tokens for API tokens.
type authHandler struct {
	verifier auth.Verifier
	tokens   *auth.TokenIssuer
	logger   *slog.Logger
}

type googleSignInRequest struct {
	Token string `json:"token"`
}

type userPayload struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type signInResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

// googleSignIn verifies a Google ID token and answers with a 7-day API
// token plus the caller's profile.
func (h *authHandler) googleSignIn(w http.ResponseWriter, r *http.Request) {
	var req googleSignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "Token is required", "", h.logger)
		return
	}

	identity, err := h.verifier.Verify(r.Context(), req.Token)
	if err != nil {
		h.logger.Warn("google sign-in rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "Authentication failed", "", h.logger)
		return
	}

	token, err := h.tokens.Issue(identity)
	if err != nil {
		h.logger.Error("issuing API token", "error", err)
		writeError(w, http.StatusInternalServerError, "Authentication failed", "", h.logger)
		return
	}

	h.logger.Info("user signed in", "subject", identity.Subject)
	writeJSON(w, http.StatusOK, signInResponse{
		Token: token,
		User: userPayload{
			ID:      identity.Subject,
			Email:   identity.Email,
			Name:    identity.Name,
			Picture: identity.Picture,
		},
	}, h.logger)
}
