package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	database Pinger
	logger   zerolog.Logger
}

func NewHealthHandler(database Pinger, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{database: database, logger: logger}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.database(ctx); err != nil {
			h.logger.Error().Err(err).Msg("Health check failed")
			respondWithError(w, http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE", "Database unreachable")
			return
		}
	}
	respondWithJSON(w, http.StatusOK, envelope{"status": "ok"})
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}
