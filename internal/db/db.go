package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const connectTimeout = 10 * time.Second

func InitDB(ctx context.Context, uri, database string, logger zerolog.Logger) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}

	logger.Info().Str("database", database).Msg("Connected to MongoDB")
	return client, client.Database(database), nil
}

// EnsureIndexes creates the indexes that enforce uniqueness and back the
// listing queries. Creating an existing index is a no-op.
func EnsureIndexes(ctx context.Context, db *mongo.Database, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		"users": {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName("username_1")},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_1")},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		"rentalcompanies": {
			{Keys: bson.D{{Key: "ownerId", Value: 1}}, Options: options.Index().SetUnique(true).SetName("ownerId_1")},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "featured", Value: -1}, {Key: "rating", Value: -1}}},
		},
		"cars": {
			{Keys: bson.D{{Key: "licensePlate", Value: 1}}, Options: options.Index().SetUnique(true).SetName("licensePlate_1")},
			{Keys: bson.D{{Key: "shopId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "pricePerDay", Value: 1}}},
			{Keys: bson.D{{Key: "images", Value: 1}}},
		},
	}

	for collection, models := range indexes {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", collection, err)
		}
	}
	logger.Info().Msg("Indexes ensured")
	return nil
}
