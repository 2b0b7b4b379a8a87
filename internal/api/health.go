package api

import (
	"log/slog"
	"net/http"
)

// health answers liveness probes with the running environment name.
func health(environment string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":      "ok",
			"environment": environment,
		}, logger)
	}
}
