package testhelpers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"carrental/internal/models"
	"carrental/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore backs in-memory user, company and car repositories that
// enforce the same unique keys as the MongoDB indexes.
type MemoryStore struct {
	mu        sync.Mutex
	users     map[primitive.ObjectID]models.User
	companies map[primitive.ObjectID]models.RentalCompany
	cars      map[primitive.ObjectID]models.Car
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     map[primitive.ObjectID]models.User{},
		companies: map[primitive.ObjectID]models.RentalCompany{},
		cars:      map[primitive.ObjectID]models.Car{},
	}
}

func (s *MemoryStore) Users() repository.UserRepository        { return memoryUsers{s} }
func (s *MemoryStore) Companies() repository.CompanyRepository { return memoryCompanies{s} }
func (s *MemoryStore) Cars() repository.CarRepository          { return memoryCars{s} }

func (s *MemoryStore) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *MemoryStore) CompanyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.companies)
}

func (s *MemoryStore) Company(id primitive.ObjectID) (models.RentalCompany, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	return c, ok
}

// PutUser stores u as is, for seeding accounts that cannot self-register.
func (s *MemoryStore) PutUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = u
	return u
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Create(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == user.Username {
			return repository.ErrDuplicateUsername
		}
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = *user
	return nil
}

func (r memoryUsers) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r memoryUsers) FindByLogin(_ context.Context, login string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	login = strings.TrimSpace(login)
	for _, u := range r.s.users {
		if u.Username == login {
			return &u, nil
		}
	}
	for _, u := range r.s.users {
		if u.Email == strings.ToLower(login) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memoryUsers) Update(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, u := range r.s.users {
		if id == user.ID {
			continue
		}
		if u.Username == user.Username {
			return repository.ErrDuplicateUsername
		}
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	user.UpdatedAt = time.Now().UTC()
	r.s.users[user.ID] = *user
	return nil
}

func (r memoryUsers) Delete(_ context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.users, id)
	return nil
}

func (r memoryUsers) List(_ context.Context, filter models.UserFilter) ([]*models.User, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.User
	for _, u := range r.s.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		u := u
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Page, filter.Limit), int64(len(out)), nil
}

type memoryCompanies struct{ s *MemoryStore }

func (r memoryCompanies) Create(_ context.Context, company *models.RentalCompany) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.companies {
		if c.OwnerID == company.OwnerID {
			return repository.ErrCompanyExists
		}
	}
	if company.ID.IsZero() {
		company.ID = primitive.NewObjectID()
	}
	company.CreatedAt = time.Now().UTC()
	company.UpdatedAt = company.CreatedAt
	r.s.companies[company.ID] = *company
	return nil
}

func (r memoryCompanies) FindByID(_ context.Context, id primitive.ObjectID) (*models.RentalCompany, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.companies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r memoryCompanies) FindByOwner(_ context.Context, ownerID primitive.ObjectID) (*models.RentalCompany, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.companies {
		if c.OwnerID == ownerID {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memoryCompanies) Update(_ context.Context, company *models.RentalCompany) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.companies[company.ID]
	if !ok {
		return repository.ErrNotFound
	}
	company.OwnerID = stored.OwnerID
	company.Status = stored.Status
	company.Rating = stored.Rating
	company.ReviewCount = stored.ReviewCount
	company.CreatedAt = stored.CreatedAt
	company.UpdatedAt = time.Now().UTC()
	r.s.companies[company.ID] = *company
	return nil
}

func (r memoryCompanies) UpdateStatus(_ context.Context, id primitive.ObjectID, status string) (*models.RentalCompany, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.companies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	r.s.companies[id] = c
	return &c, nil
}

func (r memoryCompanies) List(_ context.Context, filter models.CompanyFilter, _ bool) ([]*models.RentalCompany, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.RentalCompany
	for _, c := range r.s.companies {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Category != "" && c.Category != filter.Category {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Page, filter.Limit), int64(len(out)), nil
}

type memoryCars struct{ s *MemoryStore }

func (r memoryCars) Create(_ context.Context, car *models.Car) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.cars {
		if c.LicensePlate == car.LicensePlate {
			return repository.ErrDuplicateLicensePlate
		}
	}
	if car.ID.IsZero() {
		car.ID = primitive.NewObjectID()
	}
	car.CreatedAt = time.Now().UTC()
	car.UpdatedAt = car.CreatedAt
	r.s.cars[car.ID] = *car
	return nil
}

func (r memoryCars) FindByID(_ context.Context, id primitive.ObjectID) (*models.Car, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.cars[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r memoryCars) Update(_ context.Context, car *models.Car) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.cars[car.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, c := range r.s.cars {
		if id != car.ID && c.LicensePlate == car.LicensePlate {
			return repository.ErrDuplicateLicensePlate
		}
	}
	car.ShopID = stored.ShopID
	car.CompanyID = stored.CompanyID
	car.IsAvailable = stored.IsAvailable
	car.CreatedAt = stored.CreatedAt
	car.UpdatedAt = time.Now().UTC()
	r.s.cars[car.ID] = *car
	return nil
}

func (r memoryCars) Delete(_ context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.cars[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.cars, id)
	return nil
}

func (r memoryCars) SetAvailability(_ context.Context, id primitive.ObjectID, available bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.cars[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.IsAvailable = available
	r.s.cars[id] = c
	return nil
}

func (r memoryCars) List(_ context.Context, filter models.CarFilter) ([]*models.Car, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Car
	for _, c := range r.s.cars {
		if !carMatches(c, filter) {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Page, filter.Limit), int64(len(out)), nil
}

func (r memoryCars) ImageInUse(_ context.Context, image string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.cars {
		for _, img := range c.Images {
			if img == image {
				return true, nil
			}
		}
	}
	return false, nil
}

func carMatches(c models.Car, f models.CarFilter) bool {
	switch {
	case f.ShopID != nil && c.ShopID != *f.ShopID:
		return false
	case f.Brand != "" && !strings.EqualFold(c.Brand, f.Brand):
		return false
	case f.FuelType != "" && c.FuelType != f.FuelType:
		return false
	case f.Transmission != "" && c.Transmission != f.Transmission:
		return false
	case f.SeatingCapacity > 0 && c.SeatingCapacity < f.SeatingCapacity:
		return false
	case f.MinPrice != nil && c.PricePerDay < *f.MinPrice:
		return false
	case f.MaxPrice != nil && c.PricePerDay > *f.MaxPrice:
		return false
	case f.Available != nil && c.IsAvailable != *f.Available:
		return false
	}
	return true
}

func paginate[T any](items []T, page, limit int) []T {
	page, limit = models.NormalizePage(page, limit)
	start := int(models.Skip(page, limit))
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
