package repository

import (
	"context"
	"errors"
	"strings"

	"carrental/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	usersCollection     = "users"
	companiesCollection = "rentalcompanies"
	carsCollection      = "cars"
)

var (
	ErrNotFound              = errors.New("document not found")
	ErrDuplicateUsername     = errors.New("username already exists")
	ErrDuplicateEmail        = errors.New("email already exists")
	ErrDuplicateLicensePlate = errors.New("license plate already exists")
	ErrCompanyExists         = errors.New("user already owns a rental company")
	ErrDuplicateKey          = errors.New("duplicate key")
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByLogin(ctx context.Context, login string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, filter models.UserFilter) ([]*models.User, int64, error)
}

type CompanyRepository interface {
	Create(ctx context.Context, company *models.RentalCompany) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.RentalCompany, error)
	FindByOwner(ctx context.Context, ownerID primitive.ObjectID) (*models.RentalCompany, error)
	Update(ctx context.Context, company *models.RentalCompany) error
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) (*models.RentalCompany, error)
	List(ctx context.Context, filter models.CompanyFilter, publicOrder bool) ([]*models.RentalCompany, int64, error)
}

type CarRepository interface {
	Create(ctx context.Context, car *models.Car) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Car, error)
	Update(ctx context.Context, car *models.Car) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	SetAvailability(ctx context.Context, id primitive.ObjectID, available bool) error
	List(ctx context.Context, filter models.CarFilter) ([]*models.Car, int64, error)
	ImageInUse(ctx context.Context, image string) (bool, error)
}

// duplicateKeyIndex returns the name of the unique index a write collided
// with, or "" when err is not a duplicate-key error.
func duplicateKeyIndex(err error) string {
	if !mongo.IsDuplicateKeyError(err) {
		return ""
	}
	var writeException mongo.WriteException
	if errors.As(err, &writeException) {
		for _, writeError := range writeException.WriteErrors {
			if writeError.Code == 11000 {
				return indexFromMessage(writeError.Message)
			}
		}
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return indexFromMessage(cmdErr.Message)
	}
	return indexFromMessage(err.Error())
}

func indexFromMessage(msg string) string {
	const marker = "index: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return "unknown"
	}
	rest := msg[i+len(marker):]
	if j := strings.IndexByte(rest, ' '); j >= 0 {
		rest = rest[:j]
	}
	return rest
}
