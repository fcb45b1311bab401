package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carrental/internal/models"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userRepository struct {
	collection *mongo.Collection
	logger     zerolog.Logger
}

func NewUserRepository(db *mongo.Database, logger zerolog.Logger) UserRepository {
	return &userRepository{
		collection: db.Collection(usersCollection),
		logger:     logger.With().Str("repository", "users").Logger(),
	}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		if mapped := mapUserDuplicate(err); mapped != nil {
			r.logger.Warn().Str("username", user.Username).Err(err).Msg("Duplicate user on insert")
			return mapped
		}
		r.logger.Error().Err(err).Str("username", user.Username).Msg("Error inserting user")
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByLogin matches the login against the username first, then the email.
func (r *userRepository) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	login = strings.TrimSpace(login)
	user, err := r.findOne(ctx, bson.M{"username": login})
	if !errors.Is(err, ErrNotFound) {
		return user, err
	}
	return r.findOne(ctx, bson.M{"email": strings.ToLower(login)})
}

func (r *userRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error().Err(err).Msg("Error fetching user")
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		if mapped := mapUserDuplicate(err); mapped != nil {
			return mapped
		}
		r.logger.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("Error updating user")
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", id.Hex()).Msg("Error deleting user")
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) List(ctx context.Context, filter models.UserFilter) ([]*models.User, int64, error) {
	query := bson.M{}
	if filter.Role != "" {
		query["role"] = filter.Role
	}
	page, limit := models.NormalizePage(filter.Page, filter.Limit)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(models.Skip(page, limit)).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		r.logger.Error().Err(err).Msg("Error listing users")
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	users := make([]*models.User, 0, limit)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}
	return users, total, nil
}

func mapUserDuplicate(err error) error {
	switch index := duplicateKeyIndex(err); {
	case index == "":
		return nil
	case strings.Contains(index, "username"):
		return ErrDuplicateUsername
	case strings.Contains(index, "email"):
		return ErrDuplicateEmail
	default:
		return ErrDuplicateKey
	}
}
