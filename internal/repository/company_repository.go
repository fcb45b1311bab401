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

type companyRepository struct {
	collection *mongo.Collection
	logger     zerolog.Logger
}

func NewCompanyRepository(db *mongo.Database, logger zerolog.Logger) CompanyRepository {
	return &companyRepository{
		collection: db.Collection(companiesCollection),
		logger:     logger.With().Str("repository", "rental_companies").Logger(),
	}
}

func (r *companyRepository) Create(ctx context.Context, company *models.RentalCompany) error {
	now := time.Now().UTC()
	if company.ID.IsZero() {
		company.ID = primitive.NewObjectID()
	}
	if company.Locations == nil {
		company.Locations = []string{}
	}
	if company.Features == nil {
		company.Features = []string{}
	}
	company.CreatedAt = now
	company.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, company); err != nil {
		if duplicateKeyIndex(err) != "" {
			r.logger.Warn().Str("owner_id", company.OwnerID.Hex()).Msg("Owner already has a company")
			return ErrCompanyExists
		}
		r.logger.Error().Err(err).Str("owner_id", company.OwnerID.Hex()).Msg("Error inserting company")
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

func (r *companyRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.RentalCompany, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *companyRepository) FindByOwner(ctx context.Context, ownerID primitive.ObjectID) (*models.RentalCompany, error) {
	return r.findOne(ctx, bson.M{"ownerId": ownerID})
}

func (r *companyRepository) findOne(ctx context.Context, filter bson.M) (*models.RentalCompany, error) {
	var company models.RentalCompany
	err := r.collection.FindOne(ctx, filter).Decode(&company)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error().Err(err).Msg("Error fetching company")
		return nil, fmt.Errorf("find company: %w", err)
	}
	return &company, nil
}

// Update writes the self-service and admin-flag fields of company and
// reloads it. Status, owner and rating are left as stored.
func (r *companyRepository) Update(ctx context.Context, company *models.RentalCompany) error {
	update := bson.M{"$set": bson.M{
		"name":        company.Name,
		"category":    company.Category,
		"description": company.Description,
		"locations":   company.Locations,
		"features":    company.Features,
		"phone":       company.Phone,
		"email":       company.Email,
		"website":     company.Website,
		"address":     company.Address,
		"verified":    company.Verified,
		"featured":    company.Featured,
		"updatedAt":   time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": company.ID}, update, opts).Decode(company)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		r.logger.Error().Err(err).Str("company_id", company.ID.Hex()).Msg("Error updating company")
		return fmt.Errorf("update company: %w", err)
	}
	return nil
}

// UpdateStatus overwrites the status in a single atomic write and returns
// the updated document.
func (r *companyRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) (*models.RentalCompany, error) {
	update := bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var company models.RentalCompany
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&company)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error().Err(err).Str("company_id", id.Hex()).Str("status", status).Msg("Error updating company status")
		return nil, fmt.Errorf("update company status: %w", err)
	}
	return &company, nil
}

// List returns one page of companies. publicOrder sorts featured companies
// first and then by rating; otherwise newest first.
func (r *companyRepository) List(ctx context.Context, filter models.CompanyFilter, publicOrder bool) ([]*models.RentalCompany, int64, error) {
	query := companyQuery(filter)
	page, limit := models.NormalizePage(filter.Page, filter.Limit)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count companies: %w", err)
	}

	sort := bson.D{{Key: "createdAt", Value: -1}}
	if publicOrder {
		sort = bson.D{{Key: "featured", Value: -1}, {Key: "rating", Value: -1}, {Key: "createdAt", Value: -1}}
	}
	opts := options.Find().SetSort(sort).SetSkip(models.Skip(page, limit)).SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		r.logger.Error().Err(err).Msg("Error listing companies")
		return nil, 0, fmt.Errorf("list companies: %w", err)
	}
	defer cursor.Close(ctx)

	companies := make([]*models.RentalCompany, 0, limit)
	if err := cursor.All(ctx, &companies); err != nil {
		return nil, 0, fmt.Errorf("decode companies: %w", err)
	}
	return companies, total, nil
}

func companyQuery(filter models.CompanyFilter) bson.M {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Location != "" {
		query["locations"] = bson.M{"$regex": regexp.QuoteMeta(filter.Location), "$options": "i"}
	}
	if filter.MinRating > 0 {
		query["rating"] = bson.M{"$gte": filter.MinRating}
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
		}
	}
	return query
}
