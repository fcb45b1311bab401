package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"carrental/internal/models"
)

// CarCache holds single-car lookups keyed by car id.
type CarCache interface {
	Get(ctx context.Context, id string) (*models.Car, bool, error)
	Set(ctx context.Context, car *models.Car) error
	Delete(ctx context.Context, id string) error
}

func carKey(id string) string {
	return "car:" + id
}

type redisCarCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func NewRedisCarCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) CarCache {
	return &redisCarCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "car_cache").Logger(),
	}
}

func (c *redisCarCache) Get(ctx context.Context, id string) (*models.Car, bool, error) {
	data, err := c.client.Get(ctx, carKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get car %s from cache: %w", id, err)
	}

	var car models.Car
	if err := json.Unmarshal(data, &car); err != nil {
		c.logger.Warn().Err(err).Str("car_id", id).Msg("Dropping undecodable cache entry")
		c.client.Del(ctx, carKey(id))
		return nil, false, nil
	}
	return &car, true, nil
}

func (c *redisCarCache) Set(ctx context.Context, car *models.Car) error {
	data, err := json.Marshal(car)
	if err != nil {
		return fmt.Errorf("encode car for cache: %w", err)
	}
	if err := c.client.Set(ctx, carKey(car.ID.Hex()), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set car %s in cache: %w", car.ID.Hex(), err)
	}
	return nil
}

func (c *redisCarCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, carKey(id)).Err(); err != nil {
		return fmt.Errorf("delete car %s from cache: %w", id, err)
	}
	return nil
}

type noopCarCache struct{}

// NewNoopCarCache is used when no Redis address is configured.
func NewNoopCarCache() CarCache {
	return noopCarCache{}
}

func (noopCarCache) Get(context.Context, string) (*models.Car, bool, error) { return nil, false, nil }
func (noopCarCache) Set(context.Context, *models.Car) error                 { return nil }
func (noopCarCache) Delete(context.Context, string) error                   { return nil }
