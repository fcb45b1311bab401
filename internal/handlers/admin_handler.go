package handlers

import (
	"net/http"
	"strings"

	"carrental/internal/models"
	"carrental/internal/services"

	"github.com/rs/zerolog"
)

type AdminHandler struct {
	adminService *services.AdminService
	logger       zerolog.Logger
}

func NewAdminHandler(adminService *services.AdminService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		logger:       logger,
	}
}

func (h *AdminHandler) GetCompanies(w http.ResponseWriter, r *http.Request) {
	filter := models.CompanyFilter{
		Status: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))),
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
	}

	companies, pagination, err := h.adminService.ListCompanies(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, companyNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{
		"companies":  companies,
		"pagination": pagination,
	})
}

func (h *AdminHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", companyNotFound)
		return
	}

	company, err := h.adminService.GetCompany(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, companyNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{"company": company})
}

func (h *AdminHandler) UpdateCompanyStatus(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", companyNotFound)
		return
	}
	var req models.CompanyStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	company, err := h.adminService.UpdateCompanyStatus(r.Context(), admin, id, req.Status)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, companyNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{
		"message": "Company status updated to " + company.Status,
		"company": company,
	})
}
