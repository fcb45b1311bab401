package handlers

import (
	"net/http"

	"carrental/internal/models"
	"carrental/internal/services"

	"github.com/rs/zerolog"
)

type UserHandler struct {
	userService *services.UserService
	logger      zerolog.Logger
}

func NewUserHandler(userService *services.UserService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	filter := models.UserFilter{
		Role:  r.URL.Query().Get("role"),
		Page:  queryInt(r, "page"),
		Limit: queryInt(r, "limit"),
	}

	users, pagination, err := h.userService.ListUsers(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, "Users not found")
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{
		"users":      users,
		"pagination": pagination,
	})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if current.ID != userID && !current.HasRole(models.RoleAdmin) {
		respondWithError(w, http.StatusForbidden, "FORBIDDEN", "You can only view your own profile")
		return
	}

	user, err := h.userService.GetUserByID(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, "User not found")
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{"user": user})
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}

	var req models.UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), current, userID, &req)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, "User not found")
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{
		"message": "Profile updated successfully",
		"user":    user,
	})
}
