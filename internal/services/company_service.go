package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"carrental/internal/events"
	"carrental/internal/metrics"
	"carrental/internal/models"
	"carrental/internal/repository"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CompanyService struct {
	companies repository.CompanyRepository
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewCompanyService(companies repository.CompanyRepository, publisher events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *CompanyService {
	return &CompanyService{
		companies: companies,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("service", "companies").Logger(),
	}
}

// ListActive is the public catalog: active companies only, featured first.
func (s *CompanyService) ListActive(ctx context.Context, filter models.CompanyFilter) ([]*models.RentalCompany, models.Pagination, error) {
	if filter.Category != "" && !models.IsValidCompanyCategory(filter.Category) {
		return nil, models.Pagination{}, models.NewValidationError("invalid category filter")
	}
	filter.Status = string(models.CompanyStatusActive)
	filter.Page, filter.Limit = models.NormalizePage(filter.Page, filter.Limit)

	companies, total, err := s.companies.List(ctx, filter, true)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return companies, models.NewPagination(filter.Page, filter.Limit, total), nil
}

// GetByID returns an active company to anyone. Owners and admins may also
// see their pending or inactive company; for everyone else it does not exist.
func (s *CompanyService) GetByID(ctx context.Context, actor *models.User, id primitive.ObjectID) (*models.RentalCompany, error) {
	company, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !company.IsActive() && !canManageCompany(actor, company) {
		return nil, fmt.Errorf("company %s: %w", id.Hex(), ErrNotFound)
	}
	return company, nil
}

func (s *CompanyService) Create(ctx context.Context, actor *models.User, req *models.CompanyRequest) (*models.RentalCompany, error) {
	company := &models.RentalCompany{
		OwnerID:   actor.ID,
		Category:  string(defaultCompanyCategory),
		Locations: []string{},
		Features:  []string{},
		Status:    string(models.CompanyStatusPending),
	}
	applyCompanyRequest(company, req, false)
	if err := company.Validate(); err != nil {
		return nil, err
	}

	if err := s.companies.Create(ctx, company); err != nil {
		return nil, err
	}

	s.metrics.CompaniesRegistered.Inc()
	publishEvent(ctx, s.publisher, s.logger, events.SubjectCompanyRegistered, events.CompanyRegistered{
		CompanyID:  company.ID.Hex(),
		OwnerID:    actor.ID.Hex(),
		Name:       company.Name,
		Status:     company.Status,
		OccurredAt: company.CreatedAt,
	})
	s.logger.Info().Str("company_id", company.ID.Hex()).Str("owner_id", actor.ID.Hex()).Msg("Rental company created")
	return company, nil
}

// GetMine returns the caller's company. Admins may look up any owner's
// company by passing ownerID.
func (s *CompanyService) GetMine(ctx context.Context, actor *models.User, ownerID string) (*models.RentalCompany, error) {
	owner := actor.ID
	if ownerID != "" && actor.HasRole(models.RoleAdmin) {
		id, err := primitive.ObjectIDFromHex(ownerID)
		if err != nil {
			return nil, fmt.Errorf("owner %s: %w", ownerID, ErrNotFound)
		}
		owner = id
	}

	company, err := s.companies.FindByOwner(ctx, owner)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("company of %s: %w", owner.Hex(), ErrNotFound)
	}
	return company, err
}

// Update applies self-service fields. Verified and featured flags are only
// honoured for admins and status is never touched here.
func (s *CompanyService) Update(ctx context.Context, actor *models.User, id primitive.ObjectID, req *models.CompanyRequest) (*models.RentalCompany, error) {
	company, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManageCompany(actor, company) {
		return nil, ErrForbidden
	}

	applyCompanyRequest(company, req, actor.HasRole(models.RoleAdmin))
	if err := company.Validate(); err != nil {
		return nil, err
	}
	if err := s.companies.Update(ctx, company); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("company %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, err
	}

	s.logger.Info().Str("company_id", id.Hex()).Str("actor_id", actor.ID.Hex()).Msg("Rental company updated")
	return company, nil
}

func (s *CompanyService) find(ctx context.Context, id primitive.ObjectID) (*models.RentalCompany, error) {
	company, err := s.companies.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("company %s: %w", id.Hex(), ErrNotFound)
	}
	return company, err
}

func canManageCompany(actor *models.User, company *models.RentalCompany) bool {
	if actor == nil {
		return false
	}
	return actor.HasRole(models.RoleAdmin) || company.OwnerID == actor.ID
}

func applyCompanyRequest(company *models.RentalCompany, req *models.CompanyRequest, admin bool) {
	if req.Name != nil {
		company.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		company.Category = strings.ToLower(strings.TrimSpace(*req.Category))
	}
	if req.Description != nil {
		company.Description = strings.TrimSpace(*req.Description)
	}
	if req.Locations != nil {
		company.Locations = cleanList(*req.Locations)
	}
	if req.Features != nil {
		company.Features = cleanList(*req.Features)
	}
	if req.Phone != nil {
		company.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		company.Email = normalizeEmail(*req.Email)
	}
	if req.Website != nil {
		company.Website = strings.TrimSpace(*req.Website)
	}
	if req.Address != nil {
		company.Address = strings.TrimSpace(*req.Address)
	}
	if !admin {
		return
	}
	if req.Verified != nil {
		company.Verified = *req.Verified
	}
	if req.Featured != nil {
		company.Featured = *req.Featured
	}
}
