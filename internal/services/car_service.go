package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carrental/internal/cache"
	"carrental/internal/events"
	"carrental/internal/metrics"
	"carrental/internal/models"
	"carrental/internal/repository"
	"carrental/internal/storage"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CarService struct {
	cars      repository.CarRepository
	companies repository.CompanyRepository
	store     storage.ImageStore
	cache     cache.CarCache
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewCarService(
	cars repository.CarRepository,
	companies repository.CompanyRepository,
	store storage.ImageStore,
	carCache cache.CarCache,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *CarService {
	return &CarService{
		cars:      cars,
		companies: companies,
		store:     store,
		cache:     carCache,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("service", "cars").Logger(),
		now:       time.Now,
	}
}

// Create lists a new car for the calling shop. images are the stored paths
// of this request's uploads; they are removed again if the car is not saved.
func (s *CarService) Create(ctx context.Context, actor *models.User, fields map[string]any, images []string) (*models.Car, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	car, err := s.create(ctx, actor, fields, images)
	if err != nil {
		s.Discard(ctx, images)
		return nil, err
	}

	s.metrics.CarsCreatedTotal.Inc()
	publishEvent(ctx, s.publisher, s.logger, events.SubjectCarCreated, events.CarCreated{
		CarID:      car.ID.Hex(),
		ShopID:     car.ShopID.Hex(),
		Brand:      car.Brand,
		Model:      car.Model,
		OccurredAt: car.CreatedAt,
	})
	s.logger.Info().Str("car_id", car.ID.Hex()).Str("shop_id", actor.ID.Hex()).Int("images", len(images)).Msg("Car created")
	return car, nil
}

func (s *CarService) create(ctx context.Context, actor *models.User, fields map[string]any, images []string) (*models.Car, error) {
	car := &models.Car{
		ShopID:      actor.ID,
		Images:      images,
		IsAvailable: true,
	}
	if err := models.ApplyCarFields(car, fields); err != nil {
		return nil, err
	}
	if err := car.Validate(s.now()); err != nil {
		return nil, err
	}

	company, err := s.companies.FindByOwner(ctx, actor.ID)
	switch {
	case err == nil:
		car.CompanyID = &company.ID
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if err := s.cars.Create(ctx, car); err != nil {
		return nil, err
	}
	return car, nil
}

// Discard deletes stored images best-effort; failures are logged and left to the
// upload janitor.
func (s *CarService) Discard(ctx context.Context, images []string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	for _, err := range storage.DeleteAll(cleanupCtx, s.store, images) {
		s.logger.Error().Err(err).Msg("Failed to delete car image")
	}
}

func (s *CarService) List(ctx context.Context, filter models.CarFilter) ([]*models.Car, models.Pagination, error) {
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return nil, models.Pagination{}, models.NewValidationError("minPrice cannot exceed maxPrice")
	}
	filter.Page, filter.Limit = models.NormalizePage(filter.Page, filter.Limit)
	filter.SortBy = models.CarSortField(filter.SortBy)

	cars, total, err := s.cars.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return cars, models.NewPagination(filter.Page, filter.Limit, total), nil
}

// GetByID reads through the car cache.
func (s *CarService) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Car, error) {
	if car, ok, err := s.cache.Get(ctx, id.Hex()); err != nil {
		s.logger.Warn().Err(err).Str("car_id", id.Hex()).Msg("Car cache read failed")
	} else if ok {
		return car, nil
	}

	car, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, car); err != nil {
		s.logger.Warn().Err(err).Str("car_id", id.Hex()).Msg("Car cache write failed")
	}
	return car, nil
}

// ListByShop lists a shop's inventory. Shops see only their own; admins
// see any shop.
func (s *CarService) ListByShop(ctx context.Context, actor *models.User, shopID primitive.ObjectID, filter models.CarFilter) ([]*models.Car, models.Pagination, error) {
	if actor.ID != shopID && !actor.HasRole(models.RoleAdmin) {
		return nil, models.Pagination{}, ErrForbidden
	}
	filter.ShopID = &shopID
	return s.List(ctx, filter)
}

func (s *CarService) Update(ctx context.Context, actor *models.User, id primitive.ObjectID, fields map[string]any) (*models.Car, error) {
	car, err := s.findOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if err := models.ApplyCarFields(car, fields); err != nil {
		return nil, err
	}
	if err := car.Validate(s.now()); err != nil {
		return nil, err
	}
	available := car.IsAvailable
	if err := s.cars.Update(ctx, car); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("car %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, err
	}
	// Availability has its own write so a concurrent toggle is not undone.
	if _, ok := fields["isAvailable"]; ok {
		if err := s.cars.SetAvailability(ctx, id, available); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("car %s: %w", id.Hex(), ErrNotFound)
			}
			return nil, err
		}
		car.IsAvailable = available
	}
	s.invalidate(ctx, id)

	s.logger.Info().Str("car_id", id.Hex()).Str("shop_id", actor.ID.Hex()).Msg("Car updated")
	return car, nil
}

func (s *CarService) Delete(ctx context.Context, actor *models.User, id primitive.ObjectID) error {
	car, err := s.findOwned(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.cars.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("car %s: %w", id.Hex(), ErrNotFound)
		}
		return err
	}
	s.invalidate(ctx, id)
	s.Discard(ctx, car.Images)

	s.metrics.CarsDeletedTotal.Inc()
	publishEvent(ctx, s.publisher, s.logger, events.SubjectCarDeleted, events.CarDeleted{
		CarID:      id.Hex(),
		ShopID:     car.ShopID.Hex(),
		OccurredAt: s.now().UTC(),
	})
	s.logger.Info().Str("car_id", id.Hex()).Str("shop_id", actor.ID.Hex()).Msg("Car deleted")
	return nil
}

func (s *CarService) ToggleAvailability(ctx context.Context, actor *models.User, id primitive.ObjectID) (*models.Car, error) {
	car, err := s.findOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	available := !car.IsAvailable
	if err := s.cars.SetAvailability(ctx, id, available); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("car %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, err
	}
	car.IsAvailable = available
	s.invalidate(ctx, id)

	s.logger.Info().Str("car_id", id.Hex()).Bool("available", available).Msg("Car availability toggled")
	return car, nil
}

func (s *CarService) find(ctx context.Context, id primitive.ObjectID) (*models.Car, error) {
	car, err := s.cars.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("car %s: %w", id.Hex(), ErrNotFound)
	}
	return car, err
}

func (s *CarService) findOwned(ctx context.Context, actor *models.User, id primitive.ObjectID) (*models.Car, error) {
	car, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !car.IsOwnedBy(actor.ID) {
		s.logger.Warn().Str("car_id", id.Hex()).Str("actor_id", actor.ID.Hex()).Msg("Rejected change to another shop's car")
		return nil, ErrForbidden
	}
	return car, nil
}

func (s *CarService) invalidate(ctx context.Context, id primitive.ObjectID) {
	if err := s.cache.Delete(ctx, id.Hex()); err != nil {
		s.logger.Warn().Err(err).Str("car_id", id.Hex()).Msg("Car cache invalidation failed")
	}
}
