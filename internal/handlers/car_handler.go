package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"carrental/internal/middleware"
	"carrental/internal/models"
	"carrental/internal/services"

	"github.com/rs/zerolog"
)

const (
	carNotFound       = "Car not found"
	maxCarFormMemory  = 1 << 20
	maxCarJSONPayload = 1 << 20
	maxCarUpdateBody  = 10 << 20
)

type CarHandler struct {
	carService *services.CarService
	logger     zerolog.Logger
}

func NewCarHandler(carService *services.CarService, logger zerolog.Logger) *CarHandler {
	return &CarHandler{
		carService: carService,
		logger:     logger,
	}
}

func (h *CarHandler) CreateCar(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	images := middleware.GetUploadedImages(r)

	fields, err := carFields(r)
	if err != nil {
		// The service never sees these uploads, so drop them here.
		h.carService.Discard(r.Context(), images)
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	car, err := h.carService.Create(r.Context(), user, fields, images)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, carNotFound)
		return
	}
	respondWithJSON(w, http.StatusCreated, envelope{
		"message": "Car added successfully",
		"car":     car,
	})
}

func (h *CarHandler) GetCars(w http.ResponseWriter, r *http.Request) {
	filter, err := carFilter(r)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, carNotFound)
		return
	}

	cars, pagination, err := h.carService.List(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, carNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{
		"cars":       cars,
		"pagination": pagination,
	})
}

func (h *CarHandler) GetCar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "carId")
	if !ok {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", carNotFound)
		return
	}

	car, err := h.carService.GetByID(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, carNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{"car": car})
}

func (h *CarHandler) GetShopCars(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	shopID, ok := pathID(r, "shopId")
	if !ok {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", "Shop not found")
		return
	}
	filter, err := carFilter(r)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, carNotFound)
		return
	}

	cars, pagination, err := h.carService.ListByShop(r.Context(), user, shopID, filter)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, carNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{
		"cars":       cars,
		"pagination": pagination,
	})
}

func (h *CarHandler) UpdateCar(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "carId")
	if !ok {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", carNotFound)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxCarUpdateBody)
	fields, err := carFields(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	car, err := h.carService.Update(r.Context(), user, id, fields)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, carNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{
		"message": "Car updated successfully",
		"car":     car,
	})
}

func (h *CarHandler) DeleteCar(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "carId")
	if !ok {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", carNotFound)
		return
	}

	if err := h.carService.Delete(r.Context(), user, id); err != nil {
		respondWithServiceError(w, r, h.logger, err, carNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{"message": "Car deleted successfully"})
}

func (h *CarHandler) ToggleAvailability(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "carId")
	if !ok {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", carNotFound)
		return
	}

	car, err := h.carService.ToggleAvailability(r.Context(), user, id)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err, carNotFound)
		return
	}
	status := "unavailable"
	if car.IsAvailable {
		status = "available"
	}
	respondWithJSON(w, http.StatusOK, envelope{
		"message": "Car marked as " + status,
		"car":     car,
	})
}

// carFields collects the submitted car fields from a multipart form, a
// urlencoded form or a JSON object.
func carFields(r *http.Request) (map[string]any, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if r.MultipartForm == nil {
			if err := r.ParseMultipartForm(maxCarFormMemory); err != nil {
				return nil, err
			}
			// Only the values are kept; spilled file parts go now.
			defer r.MultipartForm.RemoveAll()
		}
		return formFields(r.MultipartForm.Value), nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return formFields(r.PostForm), nil
	}

	fields := map[string]any{}
	err := json.NewDecoder(io.LimitReader(r.Body, maxCarJSONPayload)).Decode(&fields)
	if errors.Is(err, io.EOF) {
		return fields, nil
	}
	return fields, err
}

func formFields(values map[string][]string) map[string]any {
	fields := make(map[string]any, len(values))
	for key, vals := range values {
		if key == middleware.ImagesField || len(vals) == 0 {
			continue
		}
		fields[key] = vals[0]
	}
	return fields
}

func carFilter(r *http.Request) (models.CarFilter, error) {
	q := r.URL.Query()
	filter := models.CarFilter{
		Brand:           strings.TrimSpace(q.Get("brand")),
		FuelType:        strings.ToLower(strings.TrimSpace(q.Get("fuelType"))),
		Transmission:    strings.ToLower(strings.TrimSpace(q.Get("transmission"))),
		SeatingCapacity: queryInt(r, "seatingCapacity"),
		SortBy:          q.Get("sortBy"),
		SortDesc:        !strings.EqualFold(q.Get("sortOrder"), "asc"),
		Page:            queryInt(r, "page"),
		Limit:           queryInt(r, "limit"),
	}

	var err error
	if filter.MinPrice, err = queryFloat(r, "minPrice"); err != nil {
		return filter, err
	}
	if filter.MaxPrice, err = queryFloat(r, "maxPrice"); err != nil {
		return filter, err
	}
	if filter.Available, err = queryBool(r, "available"); err != nil {
		return filter, err
	}
	return filter, nil
}
