package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"carrental/internal/middleware"
	"carrental/internal/models"
	"carrental/internal/repository"
	"carrental/internal/services"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// envelope is merged into every success body next to "success": true.
type envelope map[string]any

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload envelope) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["success"] = true

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func respondWithError(w http.ResponseWriter, code int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorBody{
		Success: false,
		Message: message,
		Error:   errorCode,
	})
}

// respondWithServiceError maps service and repository errors to their HTTP
// status and error code.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error, notFoundMessage string) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondWithError(w, http.StatusBadRequest, "VALIDATION_ERROR", validationErr.Message)
	case errors.Is(err, services.ErrNoImages):
		respondWithError(w, http.StatusBadRequest, "NO_IMAGES_UPLOADED", "Please upload at least one image")
	case errors.Is(err, services.ErrInvalidStatus):
		respondWithError(w, http.StatusBadRequest, "INVALID_STATUS", "Invalid status. Must be one of: active, inactive, pending")
	case errors.Is(err, repository.ErrDuplicateLicensePlate):
		respondWithError(w, http.StatusBadRequest, "DUPLICATE_LICENSE_PLATE", "A car with this license plate already exists")
	case errors.Is(err, repository.ErrDuplicateUsername):
		respondWithError(w, http.StatusBadRequest, "DUPLICATE_USERNAME", "Username already exists")
	case errors.Is(err, repository.ErrDuplicateEmail):
		respondWithError(w, http.StatusBadRequest, "DUPLICATE_EMAIL", "Email already exists")
	case errors.Is(err, repository.ErrCompanyExists):
		respondWithError(w, http.StatusBadRequest, "COMPANY_ALREADY_EXISTS", "You already have a rental company")
	case errors.Is(err, repository.ErrDuplicateKey):
		respondWithError(w, http.StatusBadRequest, "DUPLICATE_KEY", "A record with these values already exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	case errors.Is(err, services.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "FORBIDDEN", "Access denied")
	case errors.Is(err, services.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", notFoundMessage)
	default:
		logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong!")
	}
}

// pathID parses a route variable as an ObjectID.
func pathID(r *http.Request, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)[name])
	return id, err == nil
}

func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := middleware.GetUser(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	}
	return user, ok
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return 0
	}
	return n
}

func queryFloat(r *http.Request, key string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, models.NewValidationError("invalid " + key)
	}
	return &f, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, models.NewValidationError("invalid " + key)
	}
	return &b, nil
}
