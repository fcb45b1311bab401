package handlers

import (
	"net/http"
	"strings"

	"carrental/internal/middleware"
	"carrental/internal/models"
	"carrental/internal/services"

	"github.com/rs/zerolog"
)

const companyNotFound = "Rental company not found"

type CompanyHandler struct {
	companyService *services.CompanyService
	logger         zerolog.Logger
}

func NewCompanyHandler(companyService *services.CompanyService, logger zerolog.Logger) *CompanyHandler {
	return &CompanyHandler{
		companyService: companyService,
		logger:         logger,
	}
}

func (h *CompanyHandler) GetCompanies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minRating, err := queryFloat(r, "minRating")
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, companyNotFound)
		return
	}
	filter := models.CompanyFilter{
		Category: strings.ToLower(strings.TrimSpace(q.Get("category"))),
		Location: strings.TrimSpace(q.Get("location")),
		Search:   strings.TrimSpace(q.Get("search")),
		Page:     queryInt(r, "page"),
		Limit:    queryInt(r, "limit"),
	}
	if minRating != nil {
		filter.MinRating = *minRating
	}

	companies, pagination, err := h.companyService.ListActive(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, companyNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{
		"companies":  companies,
		"pagination": pagination,
	})
}

// GetCompany is public; the optional user lets owners and admins see
// companies that are not active yet.
func (h *CompanyHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", companyNotFound)
		return
	}
	user, _ := middleware.GetUser(r)

	company, err := h.companyService.GetByID(r.Context(), user, id)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, companyNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{"company": company})
}

func (h *CompanyHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req models.CompanyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	company, err := h.companyService.Create(r.Context(), user, &req)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, companyNotFound)
		return
	}
	respondWithJSON(w, http.StatusCreated, envelope{
		"message": "Rental company created successfully. It will be visible once approved.",
		"company": company,
	})
}

func (h *CompanyHandler) GetMyCompany(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	company, err := h.companyService.GetMine(r.Context(), user, r.URL.Query().Get("ownerId"))
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, "No rental company found for this user")
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{"company": company})
}

func (h *CompanyHandler) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", companyNotFound)
		return
	}
	var req models.CompanyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	company, err := h.companyService.Update(r.Context(), user, id, &req)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, companyNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{
		"message": "Rental company updated successfully",
		"company": company,
	})
}
