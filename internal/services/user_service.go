package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carrental/internal/events"
	"carrental/internal/metrics"
	"carrental/internal/models"
	"carrental/internal/repository"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength      = 6
	MaxPasswordLength      = 72 // bcrypt input limit, in bytes
	defaultCompanyCategory = models.CategoryStandard
)

type UserService struct {
	users     repository.UserRepository
	companies repository.CompanyRepository
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewUserService(users repository.UserRepository, companies repository.CompanyRepository, publisher events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *UserService {
	return &UserService{
		users:     users,
		companies: companies,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("service", "users").Logger(),
	}
}

// Register creates the user and, for rental-company accounts, its pending
// company. A failed company write deletes the user again.
func (s *UserService) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, *models.RentalCompany, error) {
	if req.Role == "" {
		req.Role = string(models.RoleCustomer)
	}
	if err := validateRegistration(req); err != nil {
		return nil, nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error hashing password")
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        normalizeEmail(req.Email),
		PasswordHash: string(hashedPassword),
		Phone:        strings.TrimSpace(req.Phone),
		Role:         req.Role,
	}
	if req.Role == string(models.RoleCustomer) {
		user.FirstName = strings.TrimSpace(req.FirstName)
		user.LastName = strings.TrimSpace(req.LastName)
		user.LicenseNumber = strings.TrimSpace(req.LicenseNumber)
		user.Address = strings.TrimSpace(req.Address)
		if user.DateOfBirth, err = parseDate(req.DateOfBirth); err != nil {
			return nil, nil, err
		}
	}
	if err := user.Validate(); err != nil {
		return nil, nil, err
	}

	if req.Role != string(models.RoleRentalCompany) {
		if err := s.users.Create(ctx, user); err != nil {
			return nil, nil, err
		}
		s.logger.Info().Str("user_id", user.ID.Hex()).Str("role", user.Role).Msg("User registered successfully")
		return user, nil, nil
	}

	category := strings.ToLower(strings.TrimSpace(req.CompanyCategory))
	if category == "" {
		category = string(defaultCompanyCategory)
	}
	company := &models.RentalCompany{
		Name:        strings.TrimSpace(req.CompanyName),
		Category:    category,
		Description: strings.TrimSpace(req.CompanyDescription),
		Locations:   cleanList(req.CompanyLocations),
		Features:    []string{},
		Phone:       strings.TrimSpace(req.CompanyPhone),
		Email:       normalizeEmail(req.CompanyEmail),
		Website:     strings.TrimSpace(req.CompanyWebsite),
		Address:     strings.TrimSpace(req.CompanyAddress),
		Status:      string(models.CompanyStatusPending),
	}
	if err := company.Validate(); err != nil {
		return nil, nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}
	company.OwnerID = user.ID
	if err := s.companies.Create(ctx, company); err != nil {
		s.compensateUser(ctx, user.ID, err)
		return nil, nil, err
	}

	s.metrics.CompaniesRegistered.Inc()
	publishEvent(ctx, s.publisher, s.logger, events.SubjectCompanyRegistered, events.CompanyRegistered{
		CompanyID:  company.ID.Hex(),
		OwnerID:    user.ID.Hex(),
		Name:       company.Name,
		Status:     company.Status,
		OccurredAt: company.CreatedAt,
	})
	s.logger.Info().
		Str("user_id", user.ID.Hex()).
		Str("company_id", company.ID.Hex()).
		Msg("Rental company registered successfully")
	return user, company, nil
}

func (s *UserService) compensateUser(ctx context.Context, userID primitive.ObjectID, cause error) {
	// Runs even when the request context is already cancelled.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.users.Delete(cleanupCtx, userID); err != nil {
		s.logger.Error().Err(err).AnErr("cause", cause).Str("user_id", userID.Hex()).Msg("Failed to roll back user after company creation failed")
		return
	}
	s.logger.Warn().Err(cause).Str("user_id", userID.Hex()).Msg("Rolled back user after company creation failed")
}

func validateRegistration(req *models.RegisterRequest) error {
	var missing []string
	if strings.TrimSpace(req.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(req.Email) == "" {
		missing = append(missing, "email")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	switch models.UserRole(req.Role) {
	case models.RoleCustomer:
		if strings.TrimSpace(req.FirstName) == "" {
			missing = append(missing, "firstName")
		}
		if strings.TrimSpace(req.LastName) == "" {
			missing = append(missing, "lastName")
		}
	case models.RoleRentalCompany:
		if strings.TrimSpace(req.CompanyName) == "" {
			missing = append(missing, "companyName")
		}
	case models.RoleAdmin:
		return models.NewValidationError("admin accounts cannot be self-registered")
	default:
		return models.NewValidationError("invalid role")
	}
	if len(missing) > 0 {
		return models.NewValidationError("missing required fields: " + strings.Join(missing, ", "))
	}
	if strings.Contains(req.Username, "@") {
		return models.NewValidationError("username cannot contain @")
	}
	if err := validatePassword(req.Password); err != nil {
		return err
	}
	if !strings.Contains(req.Email, "@") {
		return models.NewValidationError("invalid email address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return models.NewValidationError(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordLength {
		return models.NewValidationError(fmt.Sprintf("password must be at most %d bytes", MaxPasswordLength))
	}
	return nil
}

func (s *UserService) Authenticate(ctx context.Context, req *models.LoginRequest) (*models.User, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, models.NewValidationError("username and password are required")
	}

	user, err := s.users.FindByLogin(ctx, req.Username)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn().Str("login", req.Username).Msg("Login for unknown user")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn().Str("user_id", user.ID.Hex()).Msg("Failed authentication attempt")
		return nil, ErrInvalidCredentials
	}

	s.logger.Info().Str("user_id", user.ID.Hex()).Msg("User authenticated successfully")
	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", id.Hex(), ErrNotFound)
	}
	return user, err
}

// CompanyIDFor returns the hex id of the user's company, or "" when the
// user is not a rental company or has none yet.
func (s *UserService) CompanyIDFor(ctx context.Context, user *models.User) string {
	if !user.HasRole(models.RoleRentalCompany) {
		return ""
	}
	company, err := s.companies.FindByOwner(ctx, user.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("Error looking up user's company")
		}
		return ""
	}
	return company.ID.Hex()
}

// UpdateProfile applies the allow-listed fields of req to the target user.
// Only the user themself or an admin may do so; the role never changes here.
func (s *UserService) UpdateProfile(ctx context.Context, actor *models.User, targetID primitive.ObjectID, req *models.UpdateUserRequest) (*models.User, error) {
	if actor.ID != targetID && !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}

	user, err := s.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if username == "" {
			return nil, models.NewValidationError("username cannot be empty")
		}
		if strings.Contains(username, "@") {
			return nil, models.NewValidationError("username cannot contain @")
		}
		user.Username = username
	}
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if !strings.Contains(email, "@") {
			return nil, models.NewValidationError("invalid email address")
		}
		user.Email = email
	}
	if req.Password != nil {
		if err := validatePassword(*req.Password); err != nil {
			return nil, err
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hashed)
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.LicenseNumber != nil {
		user.LicenseNumber = strings.TrimSpace(*req.LicenseNumber)
	}
	if req.Address != nil {
		user.Address = strings.TrimSpace(*req.Address)
	}
	if req.DateOfBirth != nil {
		if user.DateOfBirth, err = parseDate(*req.DateOfBirth); err != nil {
			return nil, err
		}
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", targetID.Hex(), ErrNotFound)
		}
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID.Hex()).Str("actor_id", actor.ID.Hex()).Msg("User profile updated")
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, models.Pagination, error) {
	if filter.Role != "" && !models.IsValidRole(filter.Role) {
		return nil, models.Pagination{}, models.NewValidationError("invalid role filter")
	}
	filter.Page, filter.Limit = models.NormalizePage(filter.Page, filter.Limit)

	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return users, models.NewPagination(filter.Page, filter.Limit, total), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, models.NewValidationError("invalid dateOfBirth")
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func publishEvent(ctx context.Context, publisher events.Publisher, logger zerolog.Logger, subject string, payload any) {
	if err := publisher.Publish(ctx, subject, payload); err != nil {
		logger.Error().Err(err).Str("subject", subject).Msg("Failed to publish event")
	}
}
