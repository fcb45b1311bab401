package router

import (
	"net/http"

	"carrental/internal/config"
	"carrental/internal/handlers"
	"carrental/internal/metrics"
	"carrental/internal/middleware"
	"carrental/internal/models"
	"carrental/internal/services"
	"carrental/internal/storage"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Dependencies struct {
	Config         *config.Config
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
	ImageStore     storage.ImageStore
	DatabasePing   handlers.Pinger
	AuthService    *services.AuthService
	UserService    *services.UserService
	CompanyService *services.CompanyService
	AdminService   *services.AdminService
	CarService     *services.CarService
}

func SetupRouter(deps Dependencies) http.Handler {
	cfg, logger := deps.Config, deps.Logger

	authHandler := handlers.NewAuthHandler(deps.UserService, deps.AuthService, logger)
	userHandler := handlers.NewUserHandler(deps.UserService, logger)
	carHandler := handlers.NewCarHandler(deps.CarService, logger)
	companyHandler := handlers.NewCompanyHandler(deps.CompanyService, logger)
	adminHandler := handlers.NewAdminHandler(deps.AdminService, logger)
	healthHandler := handlers.NewHealthHandler(deps.DatabasePing, logger)

	authenticate := middleware.Authentication(deps.AuthService, deps.UserService, logger)
	optionalAuth := middleware.OptionalAuthentication(deps.AuthService, deps.UserService)
	shopOnly := middleware.RequireRole(models.RoleRentalCompany)
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	uploadImages := middleware.CarImageUpload(deps.ImageStore, middleware.UploadLimits{
		MaxFileSize: cfg.Upload.MaxFileSize,
		MaxFiles:    cfg.Upload.MaxFiles,
	}, deps.Metrics, logger)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)

	rateLimiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)

	r.Use(middleware.ErrorHandling(logger))
	r.Use(middleware.Metrics(deps.Metrics, logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(rateLimiter.Middleware())

	api := r.PathPrefix("/api").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	auth.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)

	protectedAuth := auth.PathPrefix("").Subrouter()
	protectedAuth.Use(authenticate)
	protectedAuth.HandleFunc("/me", authHandler.Me).Methods(http.MethodGet)
	protectedAuth.Handle("/users", adminOnly(http.HandlerFunc(userHandler.GetUsers))).Methods(http.MethodGet)
	protectedAuth.HandleFunc("/users/{id}", userHandler.GetUser).Methods(http.MethodGet)
	protectedAuth.HandleFunc("/users/{id}", userHandler.UpdateUser).Methods(http.MethodPut)

	cars := api.PathPrefix("/cars").Subrouter()
	cars.HandleFunc("", carHandler.GetCars).Methods(http.MethodGet)
	cars.HandleFunc("/{carId}", carHandler.GetCar).Methods(http.MethodGet)

	protectedCars := cars.PathPrefix("").Subrouter()
	protectedCars.Use(authenticate)
	protectedCars.Handle("", shopOnly(uploadImages(http.HandlerFunc(carHandler.CreateCar)))).Methods(http.MethodPost)
	protectedCars.HandleFunc("/shop/{shopId}", carHandler.GetShopCars).Methods(http.MethodGet)
	protectedCars.Handle("/{carId}", shopOnly(http.HandlerFunc(carHandler.UpdateCar))).Methods(http.MethodPut)
	protectedCars.Handle("/{carId}", shopOnly(http.HandlerFunc(carHandler.DeleteCar))).Methods(http.MethodDelete)
	protectedCars.Handle("/{carId}/toggle-availability", shopOnly(http.HandlerFunc(carHandler.ToggleAvailability))).Methods(http.MethodPatch)

	companies := api.PathPrefix("/rental-companies").Subrouter()
	companies.HandleFunc("", companyHandler.GetCompanies).Methods(http.MethodGet)
	companies.Handle("/{id}", optionalAuth(http.HandlerFunc(companyHandler.GetCompany))).Methods(http.MethodGet)

	protectedCompanies := companies.PathPrefix("").Subrouter()
	protectedCompanies.Use(authenticate)
	protectedCompanies.Handle("", shopOnly(http.HandlerFunc(companyHandler.CreateCompany))).Methods(http.MethodPost)
	protectedCompanies.HandleFunc("/{id}", companyHandler.UpdateCompany).Methods(http.MethodPut)

	api.Handle("/my-rental-company", authenticate(
		middleware.RequireRole(models.RoleRentalCompany, models.RoleAdmin)(http.HandlerFunc(companyHandler.GetMyCompany)),
	)).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authenticate)
	admin.Use(adminOnly)
	admin.HandleFunc("/companies", adminHandler.GetCompanies).Methods(http.MethodGet)
	admin.HandleFunc("/companies/{id}", adminHandler.GetCompany).Methods(http.MethodGet)
	admin.HandleFunc("/companies/{id}/status", adminHandler.UpdateCompanyStatus).Methods(http.MethodPatch)

	if disk, ok := deps.ImageStore.(*storage.DiskStore); ok {
		r.PathPrefix(storage.PublicPrefix + "/").Handler(disk.Handler()).Methods(http.MethodGet, http.MethodHead)
	}

	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)

	// CORS wraps the router so preflight requests are answered before route matching.
	return middleware.CORS(cfg.CORSOrigins)(r)
}
