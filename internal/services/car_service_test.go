package services

import (
	"context"
	"testing"
	"time"

	"carrental/internal/events"
	"carrental/internal/metrics"
	"carrental/internal/models"
	"carrental/internal/repository"
	"carrental/internal/testhelpers"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type carServiceFixture struct {
	cars      *testhelpers.MockCarRepository
	companies *testhelpers.MockCompanyRepository
	store     *testhelpers.MockImageStore
	cache     *testhelpers.MockCarCache
	publisher *testhelpers.MockPublisher
	service   *CarService
}

func newCarServiceFixture() *carServiceFixture {
	f := &carServiceFixture{
		cars:      new(testhelpers.MockCarRepository),
		companies: new(testhelpers.MockCompanyRepository),
		store:     new(testhelpers.MockImageStore),
		cache:     new(testhelpers.MockCarCache),
		publisher: new(testhelpers.MockPublisher),
	}
	f.service = NewCarService(f.cars, f.companies, f.store, f.cache, f.publisher, metrics.New(), zerolog.Nop())
	f.service.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func carFields() map[string]any {
	return map[string]any{
		"brand":           "Toyota",
		"model":           "Yaris",
		"year":            "2021",
		"color":           "red",
		"fuelType":        "hybrid",
		"transmission":    "automatic",
		"seatingCapacity": "5",
		"pricePerDay":     "40",
		"licensePlate":    "b-ab 123",
	}
}

func shopUser() *models.User {
	return &models.User{ID: primitive.NewObjectID(), Role: string(models.RoleRentalCompany)}
}

func TestCreateCarRequiresImages(t *testing.T) {
	f := newCarServiceFixture()

	_, err := f.service.Create(context.Background(), shopUser(), carFields(), nil)

	assert.ErrorIs(t, err, ErrNoImages)
	f.cars.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateCar(t *testing.T) {
	f := newCarServiceFixture()
	shop := shopUser()
	company := &models.RentalCompany{ID: primitive.NewObjectID(), OwnerID: shop.ID}
	images := []string{"/uploads/cars/a.jpg", "/uploads/cars/b.jpg"}
	f.companies.On("FindByOwner", mock.Anything, shop.ID).Return(company, nil)
	f.cars.On("Create", mock.Anything, mock.AnythingOfType("*models.Car")).Return(nil)
	f.publisher.On("Publish", mock.Anything, events.SubjectCarCreated, mock.AnythingOfType("events.CarCreated")).Return(nil)

	car, err := f.service.Create(context.Background(), shop, carFields(), images)

	require.NoError(t, err)
	assert.Equal(t, shop.ID, car.ShopID)
	require.NotNil(t, car.CompanyID)
	assert.Equal(t, company.ID, *car.CompanyID)
	assert.Equal(t, images, car.Images)
	assert.Equal(t, "B-AB 123", car.LicensePlate)
	assert.True(t, car.IsAvailable)
	f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.publisher.AssertExpectations(t)
}

func TestCreateCarWithoutCompanyStillSaves(t *testing.T) {
	f := newCarServiceFixture()
	shop := shopUser()
	f.companies.On("FindByOwner", mock.Anything, shop.ID).Return(nil, repository.ErrNotFound)
	f.cars.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	car, err := f.service.Create(context.Background(), shop, carFields(), []string{"/uploads/cars/a.jpg"})

	require.NoError(t, err)
	assert.Nil(t, car.CompanyID)
}

func TestCreateCarDiscardsImagesOnFailure(t *testing.T) {
	images := []string{"/uploads/cars/a.jpg", "/uploads/cars/b.jpg"}

	t.Run("duplicate plate", func(t *testing.T) {
		f := newCarServiceFixture()
		shop := shopUser()
		f.companies.On("FindByOwner", mock.Anything, shop.ID).Return(nil, repository.ErrNotFound)
		f.cars.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateLicensePlate)
		f.store.On("Delete", mock.Anything, mock.AnythingOfType("string")).Return(nil)

		_, err := f.service.Create(context.Background(), shop, carFields(), images)

		assert.ErrorIs(t, err, repository.ErrDuplicateLicensePlate)
		f.store.AssertCalled(t, "Delete", mock.Anything, images[0])
		f.store.AssertCalled(t, "Delete", mock.Anything, images[1])
		f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("validation failure", func(t *testing.T) {
		f := newCarServiceFixture()
		f.store.On("Delete", mock.Anything, mock.AnythingOfType("string")).Return(nil)
		fields := carFields()
		fields["year"] = "1950"

		_, err := f.service.Create(context.Background(), shopUser(), fields, images)

		var vErr *models.ValidationError
		require.ErrorAs(t, err, &vErr)
		f.store.AssertNumberOfCalls(t, "Delete", 2)
		f.cars.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestListCarsRejectsInvertedPriceRange(t *testing.T) {
	f := newCarServiceFixture()
	minPrice, maxPrice := 100.0, 50.0

	_, _, err := f.service.List(context.Background(), models.CarFilter{MinPrice: &minPrice, MaxPrice: &maxPrice})

	var vErr *models.ValidationError
	assert.ErrorAs(t, err, &vErr)
	f.cars.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestListCarsNormalisesPaging(t *testing.T) {
	f := newCarServiceFixture()
	f.cars.On("List", mock.Anything, mock.MatchedBy(func(filter models.CarFilter) bool {
		return filter.Page == 1 && filter.Limit == models.MaxLimit && filter.SortBy == "createdAt"
	})).Return([]*models.Car{}, int64(0), nil)

	_, page, err := f.service.List(context.Background(), models.CarFilter{Limit: 1000, SortBy: "licensePlate"})

	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, models.MaxLimit, page.Limit)
}

func TestGetCarReadsThroughCache(t *testing.T) {
	id := primitive.NewObjectID()
	stored := &models.Car{ID: id, Brand: "Kia"}

	t.Run("hit", func(t *testing.T) {
		f := newCarServiceFixture()
		f.cache.On("Get", mock.Anything, id.Hex()).Return(stored, true, nil)

		car, err := f.service.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "Kia", car.Brand)
		f.cars.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("miss fills cache", func(t *testing.T) {
		f := newCarServiceFixture()
		f.cache.On("Get", mock.Anything, id.Hex()).Return(nil, false, nil)
		f.cars.On("FindByID", mock.Anything, id).Return(stored, nil)
		f.cache.On("Set", mock.Anything, stored).Return(nil)

		_, err := f.service.GetByID(context.Background(), id)
		require.NoError(t, err)
		f.cache.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		f := newCarServiceFixture()
		f.cache.On("Get", mock.Anything, id.Hex()).Return(nil, false, nil)
		f.cars.On("FindByID", mock.Anything, id).Return(nil, repository.ErrNotFound)

		_, err := f.service.GetByID(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound)
		f.cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything)
	})
}

func TestListByShopForbidsOtherShops(t *testing.T) {
	f := newCarServiceFixture()

	_, _, err := f.service.ListByShop(context.Background(), shopUser(), primitive.NewObjectID(), models.CarFilter{})

	assert.ErrorIs(t, err, ErrForbidden)
}

func TestOwnerOnlyOperations(t *testing.T) {
	owner := shopUser()
	intruder := shopUser()
	id := primitive.NewObjectID()
	stored := func() *models.Car {
		return &models.Car{
			ID: id, ShopID: owner.ID, Brand: "Toyota", Model: "Yaris", Year: 2021, Color: "red",
			FuelType: "hybrid", Transmission: "automatic", SeatingCapacity: 5, PricePerDay: 40,
			LicensePlate: "B-AB 123", Images: []string{"/uploads/cars/a.jpg"}, IsAvailable: true,
		}
	}

	t.Run("intruder cannot update", func(t *testing.T) {
		f := newCarServiceFixture()
		f.cars.On("FindByID", mock.Anything, id).Return(stored(), nil)

		_, err := f.service.Update(context.Background(), intruder, id, map[string]any{"color": "blue"})
		assert.ErrorIs(t, err, ErrForbidden)
		f.cars.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("intruder cannot delete", func(t *testing.T) {
		f := newCarServiceFixture()
		f.cars.On("FindByID", mock.Anything, id).Return(stored(), nil)

		err := f.service.Delete(context.Background(), intruder, id)
		assert.ErrorIs(t, err, ErrForbidden)
		f.cars.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("owner updates and invalidates cache", func(t *testing.T) {
		f := newCarServiceFixture()
		f.cars.On("FindByID", mock.Anything, id).Return(stored(), nil)
		f.cars.On("Update", mock.Anything, mock.AnythingOfType("*models.Car")).Return(nil)
		f.cache.On("Delete", mock.Anything, id.Hex()).Return(nil)

		car, err := f.service.Update(context.Background(), owner, id, map[string]any{"color": "blue", "shopId": intruder.ID.Hex()})
		require.NoError(t, err)
		assert.Equal(t, "blue", car.Color)
		assert.Equal(t, owner.ID, car.ShopID)
		f.cache.AssertExpectations(t)
		f.cars.AssertNotCalled(t, "SetAvailability", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("owner update with availability uses its own write", func(t *testing.T) {
		f := newCarServiceFixture()
		f.cars.On("FindByID", mock.Anything, id).Return(stored(), nil)
		f.cars.On("Update", mock.Anything, mock.AnythingOfType("*models.Car")).Return(nil)
		f.cars.On("SetAvailability", mock.Anything, id, false).Return(nil)
		f.cache.On("Delete", mock.Anything, id.Hex()).Return(nil)

		car, err := f.service.Update(context.Background(), owner, id, map[string]any{"isAvailable": "false"})
		require.NoError(t, err)
		assert.False(t, car.IsAvailable)
		f.cars.AssertExpectations(t)
	})

	t.Run("non-finite price is rejected before any write", func(t *testing.T) {
		f := newCarServiceFixture()
		f.cars.On("FindByID", mock.Anything, id).Return(stored(), nil)

		_, err := f.service.Update(context.Background(), owner, id, map[string]any{"pricePerDay": "NaN"})
		var vErr *models.ValidationError
		require.ErrorAs(t, err, &vErr)
		f.cars.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("owner deletes car and images", func(t *testing.T) {
		f := newCarServiceFixture()
		f.cars.On("FindByID", mock.Anything, id).Return(stored(), nil)
		f.cars.On("Delete", mock.Anything, id).Return(nil)
		f.cache.On("Delete", mock.Anything, id.Hex()).Return(nil)
		f.store.On("Delete", mock.Anything, "/uploads/cars/a.jpg").Return(nil)
		f.publisher.On("Publish", mock.Anything, events.SubjectCarDeleted, mock.AnythingOfType("events.CarDeleted")).Return(nil)

		require.NoError(t, f.service.Delete(context.Background(), owner, id))
		f.store.AssertExpectations(t)
		f.publisher.AssertExpectations(t)
	})

	t.Run("owner toggles availability", func(t *testing.T) {
		f := newCarServiceFixture()
		f.cars.On("FindByID", mock.Anything, id).Return(stored(), nil)
		f.cars.On("SetAvailability", mock.Anything, id, false).Return(nil)
		f.cache.On("Delete", mock.Anything, id.Hex()).Return(nil)

		car, err := f.service.ToggleAvailability(context.Background(), owner, id)
		require.NoError(t, err)
		assert.False(t, car.IsAvailable)
		f.cars.AssertExpectations(t)
	})

	t.Run("missing car", func(t *testing.T) {
		f := newCarServiceFixture()
		f.cars.On("FindByID", mock.Anything, id).Return(nil, repository.ErrNotFound)

		_, err := f.service.ToggleAvailability(context.Background(), owner, id)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
