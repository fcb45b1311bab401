package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"carrental/internal/models"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type carRepository struct {
	collection *mongo.Collection
	logger     zerolog.Logger
}

func NewCarRepository(db *mongo.Database, logger zerolog.Logger) CarRepository {
	return &carRepository{
		collection: db.Collection(carsCollection),
		logger:     logger.With().Str("repository", "cars").Logger(),
	}
}

func (r *carRepository) Create(ctx context.Context, car *models.Car) error {
	now := time.Now().UTC()
	if car.ID.IsZero() {
		car.ID = primitive.NewObjectID()
	}
	car.CreatedAt = now
	car.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, car); err != nil {
		if duplicateKeyIndex(err) != "" {
			return ErrDuplicateLicensePlate
		}
		r.logger.Error().Err(err).Str("license_plate", car.LicensePlate).Msg("Error inserting car")
		return fmt.Errorf("insert car: %w", err)
	}
	return nil
}

func (r *carRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Car, error) {
	var car models.Car
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&car)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error().Err(err).Str("car_id", id.Hex()).Msg("Error fetching car")
		return nil, fmt.Errorf("find car: %w", err)
	}
	return &car, nil
}

// Update writes the listing fields of car and reloads it. Availability,
// ownership and creation time are left as stored.
func (r *carRepository) Update(ctx context.Context, car *models.Car) error {
	update := bson.M{"$set": bson.M{
		"brand":           car.Brand,
		"model":           car.Model,
		"year":            car.Year,
		"color":           car.Color,
		"fuelType":        car.FuelType,
		"transmission":    car.Transmission,
		"seatingCapacity": car.SeatingCapacity,
		"engineSize":      car.EngineSize,
		"pricePerDay":     car.PricePerDay,
		"pricePerWeek":    car.PricePerWeek,
		"pricePerMonth":   car.PricePerMonth,
		"pricing":         car.Pricing,
		"features":        car.Features,
		"description":     car.Description,
		"location":        car.Location,
		"images":          car.Images,
		"licensePlate":    car.LicensePlate,
		"updatedAt":       time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": car.ID}, update, opts).Decode(car)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case duplicateKeyIndex(err) != "":
		return ErrDuplicateLicensePlate
	case err != nil:
		r.logger.Error().Err(err).Str("car_id", car.ID.Hex()).Msg("Error updating car")
		return fmt.Errorf("update car: %w", err)
	}
	return nil
}

func (r *carRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		r.logger.Error().Err(err).Str("car_id", id.Hex()).Msg("Error deleting car")
		return fmt.Errorf("delete car: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *carRepository) SetAvailability(ctx context.Context, id primitive.ObjectID, available bool) error {
	update := bson.M{"$set": bson.M{"isAvailable": available, "updatedAt": time.Now().UTC()}}
	res, err := r.collection.UpdateByID(ctx, id, update)
	if err != nil {
		r.logger.Error().Err(err).Str("car_id", id.Hex()).Msg("Error toggling availability")
		return fmt.Errorf("set availability: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *carRepository) List(ctx context.Context, filter models.CarFilter) ([]*models.Car, int64, error) {
	query := carQuery(filter)
	page, limit := models.NormalizePage(filter.Page, filter.Limit)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count cars: %w", err)
	}

	order := 1
	if filter.SortDesc {
		order = -1
	}
	sort := bson.D{{Key: models.CarSortField(filter.SortBy), Value: order}, {Key: "_id", Value: order}}
	opts := options.Find().SetSort(sort).SetSkip(models.Skip(page, limit)).SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		r.logger.Error().Err(err).Msg("Error listing cars")
		return nil, 0, fmt.Errorf("list cars: %w", err)
	}
	defer cursor.Close(ctx)

	cars := make([]*models.Car, 0, limit)
	if err := cursor.All(ctx, &cars); err != nil {
		return nil, 0, fmt.Errorf("decode cars: %w", err)
	}
	return cars, total, nil
}

func (r *carRepository) ImageInUse(ctx context.Context, image string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"images": image}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count image references: %w", err)
	}
	return n > 0, nil
}

func carQuery(filter models.CarFilter) bson.M {
	query := bson.M{}
	if filter.ShopID != nil {
		query["shopId"] = *filter.ShopID
	}
	if b := strings.TrimSpace(filter.Brand); b != "" {
		query["brand"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(b) + "$", Options: "i"}
	}
	if filter.FuelType != "" {
		query["fuelType"] = strings.ToLower(filter.FuelType)
	}
	if filter.Transmission != "" {
		query["transmission"] = strings.ToLower(filter.Transmission)
	}
	if filter.SeatingCapacity > 0 {
		query["seatingCapacity"] = bson.M{"$gte": filter.SeatingCapacity}
	}
	price := bson.M{}
	if filter.MinPrice != nil {
		price["$gte"] = *filter.MinPrice
	}
	if filter.MaxPrice != nil {
		price["$lte"] = *filter.MaxPrice
	}
	if len(price) > 0 {
		query["pricePerDay"] = price
	}
	if filter.Available != nil {
		query["isAvailable"] = *filter.Available
	}
	return query
}
