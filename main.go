package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carrental/internal/cache"
	"carrental/internal/config"
	"carrental/internal/db"
	"carrental/internal/events"
	"carrental/internal/jobs"
	"carrental/internal/logger"
	"carrental/internal/metrics"
	"carrental/internal/repository"
	"carrental/internal/router"
	"carrental/internal/services"
	"carrental/internal/storage"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.InitLogger(cfg.Log.Level, cfg.Log.Pretty)
	log.Info().Str("port", cfg.Port).Msg("Application starting")

	ctx := context.Background()

	client, database, err := db.InitDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			log.Error().Err(err).Msg("Error disconnecting from MongoDB")
		}
	}()

	if err := db.EnsureIndexes(ctx, database, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to create indexes")
	}

	userRepo := repository.NewUserRepository(database, log)
	companyRepo := repository.NewCompanyRepository(database, log)
	carRepo := repository.NewCarRepository(database, log)

	store, err := newImageStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise image storage")
	}

	carCache := newCarCache(ctx, cfg, log)
	publisher := newPublisher(cfg, log)
	defer publisher.Close()

	m := metrics.New()

	authService := services.NewAuthService(cfg.JWT.Secret, cfg.JWT.Expiry, log)
	userService := services.NewUserService(userRepo, companyRepo, publisher, m, log)
	companyService := services.NewCompanyService(companyRepo, publisher, m, log)
	adminService := services.NewAdminService(companyRepo, userRepo, publisher, m, log)
	carService := services.NewCarService(carRepo, companyRepo, store, carCache, publisher, m, log)

	handler := router.SetupRouter(router.Dependencies{
		Config:     cfg,
		Logger:     log,
		Metrics:    m,
		ImageStore: store,
		DatabasePing: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
		AuthService:    authService,
		UserService:    userService,
		CompanyService: companyService,
		AdminService:   adminService,
		CarService:     carService,
	})

	scheduler, err := jobs.NewScheduler(log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	janitor := jobs.NewUploadJanitor(store, carRepo, cfg.Janitor.GracePeriod, m, log)
	if err := scheduler.ScheduleJanitor(janitor, cfg.Janitor.Interval); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule upload janitor")
	}
	scheduler.Start()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Msgf("Server listening on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	if err := scheduler.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping scheduler")
	}

	log.Info().Msg("Server stopped")
}

func newImageStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.ImageStore, error) {
	if cfg.Upload.Backend == config.StorageMinIO {
		return storage.NewMinIOStore(ctx, cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.Bucket, cfg.MinIO.UseSSL, log)
	}
	return storage.NewDiskStore(cfg.Upload.Dir)
}

// newCarCache falls back to no caching when Redis is not configured or
// unreachable at startup.
func newCarCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) cache.CarCache {
	if cfg.Redis.Addr == "" {
		return cache.NewNoopCarCache()
	}
	client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, car cache disabled")
		return cache.NewNoopCarCache()
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Car cache enabled")
	return cache.NewRedisCarCache(client, cfg.Redis.CarTTL, log)
}

func newPublisher(cfg *config.Config, log zerolog.Logger) events.Publisher {
	if cfg.NATS.URL == "" {
		return events.NewNoopPublisher()
	}
	publisher, err := events.NewNATSPublisher(cfg.NATS.URL, log)
	if err != nil {
		log.Warn().Err(err).Msg("NATS unavailable, domain events disabled")
		return events.NewNoopPublisher()
	}
	return publisher
}
