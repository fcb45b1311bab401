package handlers

import (
	"net/http"

	"carrental/internal/models"
	"carrental/internal/services"

	"github.com/rs/zerolog"
)

type AuthHandler struct {
	userService *services.UserService
	authService *services.AuthService
	logger      zerolog.Logger
}

func NewAuthHandler(userService *services.UserService, authService *services.AuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		authService: authService,
		logger:      logger,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, company, err := h.userService.Register(r.Context(), &req)
	if err != nil {
		h.logger.Warn().Err(err).Str("username", req.Username).Msg("Registration failed")
		respondWithServiceError(w, r, h.logger, err, "User not found")
		return
	}

	token, err := h.authService.GenerateToken(user.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate token")
		return
	}

	payload := envelope{
		"message": "Registration successful",
		"user":    user,
		"token":   token,
	}
	if company != nil {
		payload["companyId"] = company.ID.Hex()
		payload["company"] = company
	}
	respondWithJSON(w, http.StatusCreated, payload)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.Authenticate(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, "User not found")
		return
	}

	token, err := h.authService.GenerateToken(user.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate token")
		return
	}

	payload := envelope{
		"message": "Login successful",
		"user":    user,
		"token":   token,
	}
	if companyID := h.userService.CompanyIDFor(r.Context(), user); companyID != "" {
		payload["companyId"] = companyID
	}
	respondWithJSON(w, http.StatusOK, payload)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	payload := envelope{"user": user}
	if companyID := h.userService.CompanyIDFor(r.Context(), user); companyID != "" {
		payload["companyId"] = companyID
	}
	respondWithJSON(w, http.StatusOK, payload)
}
