package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carrental/internal/events"
	"carrental/internal/metrics"
	"carrental/internal/models"
	"carrental/internal/repository"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AdminService struct {
	companies repository.CompanyRepository
	users     repository.UserRepository
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewAdminService(companies repository.CompanyRepository, users repository.UserRepository, publisher events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *AdminService {
	return &AdminService{
		companies: companies,
		users:     users,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("service", "admin").Logger(),
	}
}

func (s *AdminService) ListCompanies(ctx context.Context, filter models.CompanyFilter) ([]*models.RentalCompany, models.Pagination, error) {
	if filter.Status != "" && !models.IsValidCompanyStatus(filter.Status) {
		return nil, models.Pagination{}, ErrInvalidStatus
	}
	filter.Page, filter.Limit = models.NormalizePage(filter.Page, filter.Limit)

	companies, total, err := s.companies.List(ctx, filter, false)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return companies, models.NewPagination(filter.Page, filter.Limit, total), nil
}

func (s *AdminService) GetCompany(ctx context.Context, id primitive.ObjectID) (*models.CompanyDetail, error) {
	company, err := s.companies.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("company %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	detail := &models.CompanyDetail{RentalCompany: company}
	owner, err := s.users.FindByID(ctx, company.OwnerID)
	switch {
	case err == nil:
		detail.Owner = owner
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Warn().Str("company_id", id.Hex()).Str("owner_id", company.OwnerID.Hex()).Msg("Company owner no longer exists")
	default:
		return nil, err
	}
	return detail, nil
}

// UpdateCompanyStatus overwrites the status. Any state may move to any
// other state; an unknown status is rejected before anything is written.
func (s *AdminService) UpdateCompanyStatus(ctx context.Context, actor *models.User, id primitive.ObjectID, status string) (*models.RentalCompany, error) {
	if !models.IsValidCompanyStatus(status) {
		return nil, ErrInvalidStatus
	}

	company, err := s.companies.UpdateStatus(ctx, id, status)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("company %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.CompanyStatusChanges.WithLabelValues(status).Inc()
	publishEvent(ctx, s.publisher, s.logger, events.SubjectCompanyStatusChanged, events.CompanyStatusChanged{
		CompanyID:  id.Hex(),
		Status:     status,
		ChangedBy:  actor.ID.Hex(),
		OccurredAt: time.Now().UTC(),
	})
	s.logger.Info().
		Str("company_id", id.Hex()).
		Str("status", status).
		Str("admin_id", actor.ID.Hex()).
		Msg("Company status updated")
	return company, nil
}
