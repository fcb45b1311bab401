package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"carrental/internal/cache"
	"carrental/internal/config"
	"carrental/internal/events"
	"carrental/internal/metrics"
	"carrental/internal/models"
	"carrental/internal/services"
	"carrental/internal/storage"
	"carrental/internal/testhelpers"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type RouterSuite struct {
	suite.Suite

	store   *testhelpers.MemoryStore
	auth    *services.AuthService
	handler http.Handler
	root    string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.root = s.T().TempDir()
	images, err := storage.NewDiskStore(s.root)
	s.Require().NoError(err)

	cfg := &config.Config{
		CORSOrigins: []string{"http://localhost:3000"},
		Upload:      config.UploadConfig{Backend: config.StorageDisk, Dir: s.root, MaxFileSize: 1 << 20, MaxFiles: 5},
		RateLimit:   config.RateLimitConfig{RPS: 10000, Burst: 10000},
	}
	log := zerolog.Nop()
	m := metrics.New()
	publisher := events.NewNoopPublisher()

	s.store = testhelpers.NewMemoryStore()
	s.auth = services.NewAuthService("router-test-secret", time.Hour, log)
	s.handler = SetupRouter(Dependencies{
		Config:         cfg,
		Logger:         log,
		Metrics:        m,
		ImageStore:     images,
		AuthService:    s.auth,
		UserService:    services.NewUserService(s.store.Users(), s.store.Companies(), publisher, m, log),
		CompanyService: services.NewCompanyService(s.store.Companies(), publisher, m, log),
		AdminService:   services.NewAdminService(s.store.Companies(), s.store.Users(), publisher, m, log),
		CarService:     services.NewCarService(s.store.Cars(), s.store.Companies(), images, cache.NewNoopCarCache(), publisher, m, log),
	})
}

type response struct {
	Code int
	Body map[string]any
}

func (r response) errorCode() string {
	code, _ := r.Body["error"].(string)
	return code
}

func (s *RouterSuite) do(method, path, token string, body io.Reader, contentType string) response {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	out := response{Code: rec.Code, Body: map[string]any{}}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out.Body), rec.Body.String())
	}
	return out
}

func (s *RouterSuite) doJSON(method, path, token string, payload any) response {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		s.Require().NoError(err)
		body = bytes.NewReader(raw)
	}
	return s.do(method, path, token, body, "application/json")
}

func (s *RouterSuite) registerShop(username string) (token, userID, companyID string) {
	res := s.doJSON(http.MethodPost, "/api/auth/register", "", map[string]any{
		"username":    username,
		"email":       username + "@shops.io",
		"password":    "secret123",
		"role":        "rental-company",
		"companyName": username + " Rentals",
	})
	s.Require().Equal(http.StatusCreated, res.Code, res.Body)
	user := res.Body["user"].(map[string]any)
	return res.Body["token"].(string), user["_id"].(string), res.Body["companyId"].(string)
}

func (s *RouterSuite) registerCustomer(username string) string {
	res := s.doJSON(http.MethodPost, "/api/auth/register", "", map[string]any{
		"username":  username,
		"email":     username + "@mail.io",
		"password":  "secret123",
		"firstName": "Test",
		"lastName":  "Customer",
	})
	s.Require().Equal(http.StatusCreated, res.Code, res.Body)
	return res.Body["token"].(string)
}

func (s *RouterSuite) adminToken() string {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-pass"), bcrypt.MinCost)
	s.Require().NoError(err)
	admin := s.store.PutUser(models.User{Username: "admin", Email: "admin@site.io", PasswordHash: string(hash), Role: "admin"})
	token, err := s.auth.GenerateToken(admin.ID)
	s.Require().NoError(err)
	return token
}

func mustObjectID(t *testing.T, hex string) primitive.ObjectID {
	t.Helper()
	id, err := primitive.ObjectIDFromHex(hex)
	require.NoError(t, err)
	return id
}

type imagePart struct {
	name        string
	contentType string
}

func (s *RouterSuite) createCar(token string, fields map[string]string, images ...imagePart) response {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		s.Require().NoError(writer.WriteField(k, v))
	}
	for _, img := range images {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename="%s"`, img.name))
		header.Set("Content-Type", img.contentType)
		part, err := writer.CreatePart(header)
		s.Require().NoError(err)
		_, err = part.Write([]byte("fake image bytes"))
		s.Require().NoError(err)
	}
	s.Require().NoError(writer.Close())
	return s.do(http.MethodPost, "/api/cars", token, &body, writer.FormDataContentType())
}

func carForm(plate string, price int) map[string]string {
	return map[string]string{
		"brand":           "Toyota",
		"model":           "Corolla",
		"year":            "2022",
		"color":           "white",
		"fuelType":        "petrol",
		"transmission":    "automatic",
		"seatingCapacity": "5",
		"pricePerDay":     fmt.Sprint(price),
		"licensePlate":    plate,
	}
}

func (s *RouterSuite) storedImages() []string {
	entries, err := os.ReadDir(filepath.Join(s.root, "cars"))
	s.Require().NoError(err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (s *RouterSuite) TestRegisterRentalCompanyAndFetchIt() {
	token, userID, companyID := s.registerShop("acme")

	res := s.doJSON(http.MethodGet, "/api/my-rental-company", token, nil)
	s.Equal(http.StatusOK, res.Code)
	company := res.Body["company"].(map[string]any)
	s.Equal(companyID, company["_id"])
	s.Equal(userID, company["ownerId"])
	s.Equal("pending", company["status"])

	login := s.doJSON(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "acme@shops.io", "password": "secret123"})
	s.Equal(http.StatusOK, login.Code)
	s.Equal(companyID, login.Body["companyId"])

	me := s.doJSON(http.MethodGet, "/api/auth/me", token, nil)
	s.Equal(http.StatusOK, me.Code)
	s.NotContains(me.Body["user"], "password")
}

func (s *RouterSuite) TestPendingCompanyHiddenFromPublic() {
	token, _, companyID := s.registerShop("hidden")

	s.Equal(http.StatusNotFound, s.doJSON(http.MethodGet, "/api/rental-companies/"+companyID, "", nil).Code)
	s.Equal(http.StatusOK, s.doJSON(http.MethodGet, "/api/rental-companies/"+companyID, token, nil).Code)

	list := s.doJSON(http.MethodGet, "/api/rental-companies", "", nil)
	s.Equal(http.StatusOK, list.Code)
	s.Empty(list.Body["companies"])
}

func (s *RouterSuite) TestDuplicateRegistrationWritesNothing() {
	s.registerShop("taken")
	users, companies := s.store.UserCount(), s.store.CompanyCount()

	res := s.doJSON(http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "taken", "email": "fresh@shops.io", "password": "secret123",
		"role": "rental-company", "companyName": "Other",
	})
	s.Equal(http.StatusBadRequest, res.Code)
	s.Equal("DUPLICATE_USERNAME", res.errorCode())

	res = s.doJSON(http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "fresh", "email": "taken@shops.io", "password": "secret123",
		"role": "rental-company", "companyName": "Other",
	})
	s.Equal(http.StatusBadRequest, res.Code)
	s.Equal("DUPLICATE_EMAIL", res.errorCode())

	s.Equal(users, s.store.UserCount())
	s.Equal(companies, s.store.CompanyCount())
}

func (s *RouterSuite) TestRegisterRejectsOverlongPassword() {
	res := s.doJSON(http.MethodPost, "/api/auth/register", "", map[string]any{
		"username":  "longpass",
		"email":     "longpass@mail.io",
		"password":  strings.Repeat("p", 73),
		"firstName": "Long",
		"lastName":  "Pass",
	})
	s.Equal(http.StatusBadRequest, res.Code)
	s.Equal("VALIDATION_ERROR", res.errorCode())
	s.Zero(s.store.UserCount())
}

func (s *RouterSuite) TestEmailLoginCannotBeShadowed() {
	s.registerCustomer("victim")

	res := s.doJSON(http.MethodPost, "/api/auth/register", "", map[string]any{
		"username":  "victim@mail.io",
		"email":     "squatter@mail.io",
		"password":  "other123",
		"firstName": "Sq",
		"lastName":  "Uatter",
	})
	s.Equal(http.StatusBadRequest, res.Code)
	s.Equal("VALIDATION_ERROR", res.errorCode())

	res = s.doJSON(http.MethodPost, "/api/auth/login", "", map[string]any{"username": "victim@mail.io", "password": "secret123"})
	s.Equal(http.StatusOK, res.Code)
	s.Equal("victim", res.Body["user"].(map[string]any)["username"])
}

func (s *RouterSuite) TestLoginWithWrongPassword() {
	s.registerCustomer("jane")

	res := s.doJSON(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "jane", "password": "wrong"})
	s.Equal(http.StatusUnauthorized, res.Code)
	s.Equal("INVALID_CREDENTIALS", res.errorCode())
}

func (s *RouterSuite) TestCreateCarRequiresImages() {
	token, _, _ := s.registerShop("noimg")

	res := s.createCar(token, carForm("NO-IMG-1", 50))
	s.Equal(http.StatusBadRequest, res.Code)
	s.Equal("NO_IMAGES_UPLOADED", res.errorCode())
}

func (s *RouterSuite) TestCreateCarRejectsNonImage() {
	token, _, _ := s.registerShop("txt")

	res := s.createCar(token, carForm("TXT-1", 50), imagePart{"a.png", "image/png"}, imagePart{"notes.txt", "text/plain"})
	s.Equal(http.StatusBadRequest, res.Code)
	s.Equal("INVALID_FILE_TYPE", res.errorCode())
	s.Empty(s.storedImages())
}

func (s *RouterSuite) TestCreateCarAndDuplicatePlate() {
	token, shopID, companyID := s.registerShop("plates")

	res := s.createCar(token, carForm("ab-123", 50), imagePart{"front.jpg", "image/jpeg"})
	s.Require().Equal(http.StatusCreated, res.Code, res.Body)
	car := res.Body["car"].(map[string]any)
	s.Equal(shopID, car["shopId"])
	s.Equal(companyID, car["companyId"])
	s.Equal("AB-123", car["licensePlate"])
	s.Len(s.storedImages(), 1)

	res = s.createCar(token, carForm("AB-123", 60), imagePart{"a.jpg", "image/jpeg"}, imagePart{"b.jpg", "image/jpeg"})
	s.Equal(http.StatusBadRequest, res.Code)
	s.Equal("DUPLICATE_LICENSE_PLATE", res.errorCode())
	s.Len(s.storedImages(), 1, "images of the rejected car are removed")

	images := car["images"].([]any)
	served := s.do(http.MethodGet, images[0].(string), "", nil, "")
	s.Equal(http.StatusOK, served.Code)
}

func (s *RouterSuite) TestCreateCarRejectsNonFinitePrices() {
	token, _, _ := s.registerShop("nanshop")

	for i, price := range []string{"NaN", "+Inf", "-Inf"} {
		form := carForm(fmt.Sprintf("NAN-%d", i), 50)
		form["pricePerDay"] = price
		res := s.createCar(token, form, imagePart{"a.png", "image/png"})
		s.Equal(http.StatusBadRequest, res.Code, price)
		s.Equal("VALIDATION_ERROR", res.errorCode(), price)
	}
	s.Empty(s.storedImages())

	res := s.doJSON(http.MethodGet, "/api/cars", "", nil)
	s.Equal(http.StatusOK, res.Code)
	s.Equal(true, res.Body["success"])

	res = s.doJSON(http.MethodGet, "/api/cars?maxPrice=NaN", "", nil)
	s.Equal(http.StatusBadRequest, res.Code)
	s.Equal("VALIDATION_ERROR", res.errorCode())
}

func (s *RouterSuite) TestUploadsServeImagesOnly() {
	token, _, _ := s.registerShop("sneaky")

	res := s.createCar(token, carForm("XSS-1", 50), imagePart{"x.html", "image/png"})
	s.Require().Equal(http.StatusCreated, res.Code, res.Body)
	image := res.Body["car"].(map[string]any)["images"].([]any)[0].(string)
	s.True(strings.HasSuffix(image, ".png"), image)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, image, nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("image/png", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/cars/", nil))
	s.Equal(http.StatusNotFound, rec.Code)
	s.NotContains(rec.Body.String(), "car-")
}

func (s *RouterSuite) TestCarWritesAreOwnerOnly() {
	ownerToken, _, _ := s.registerShop("owner")
	otherToken, _, _ := s.registerShop("other")

	res := s.createCar(ownerToken, carForm("OWN-1", 50), imagePart{"a.png", "image/png"})
	s.Require().Equal(http.StatusCreated, res.Code)
	carID := res.Body["car"].(map[string]any)["_id"].(string)

	res = s.doJSON(http.MethodPut, "/api/cars/"+carID, otherToken, map[string]any{"color": "black"})
	s.Equal(http.StatusForbidden, res.Code)
	s.Equal(http.StatusForbidden, s.doJSON(http.MethodDelete, "/api/cars/"+carID, otherToken, nil).Code)
	s.Equal(http.StatusForbidden, s.doJSON(http.MethodPatch, "/api/cars/"+carID+"/toggle-availability", otherToken, nil).Code)

	res = s.doJSON(http.MethodPut, "/api/cars/"+carID, ownerToken, map[string]any{"color": "black", "pricePerDay": 75})
	s.Equal(http.StatusOK, res.Code)
	updated := res.Body["car"].(map[string]any)
	s.Equal("black", updated["color"])
	s.Equal(75.0, updated["pricePerDay"])

	res = s.doJSON(http.MethodPatch, "/api/cars/"+carID+"/toggle-availability", ownerToken, nil)
	s.Equal(http.StatusOK, res.Code)
	s.Equal("Car marked as unavailable", res.Body["message"])

	s.Equal(http.StatusOK, s.doJSON(http.MethodDelete, "/api/cars/"+carID, ownerToken, nil).Code)
	s.Equal(http.StatusNotFound, s.doJSON(http.MethodGet, "/api/cars/"+carID, "", nil).Code)
	s.Empty(s.storedImages())
}

func (s *RouterSuite) TestUpdateCarBodyIsBounded() {
	token, _, _ := s.registerShop("bulky")
	res := s.createCar(token, carForm("BIG-1", 50), imagePart{"a.png", "image/png"})
	s.Require().Equal(http.StatusCreated, res.Code)
	carID := res.Body["car"].(map[string]any)["_id"].(string)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	s.Require().NoError(writer.WriteField("color", "blue"))
	part, err := writer.CreateFormFile("images", "huge.png")
	s.Require().NoError(err)
	_, err = part.Write(bytes.Repeat([]byte{0}, 11<<20))
	s.Require().NoError(err)
	s.Require().NoError(writer.Close())

	res = s.do(http.MethodPut, "/api/cars/"+carID, token, &body, writer.FormDataContentType())
	s.Equal(http.StatusBadRequest, res.Code)
	s.Equal("INVALID_REQUEST", res.errorCode())

	res = s.doJSON(http.MethodGet, "/api/cars/"+carID, "", nil)
	s.Equal("white", res.Body["car"].(map[string]any)["color"])
}

func (s *RouterSuite) TestCustomersCannotListCars() {
	token := s.registerCustomer("buyer")

	res := s.createCar(token, carForm("CUS-1", 50), imagePart{"a.png", "image/png"})
	s.Equal(http.StatusForbidden, res.Code)
	s.Equal("FORBIDDEN", res.errorCode())
	s.Empty(s.storedImages())

	res = s.createCar("", carForm("CUS-1", 50), imagePart{"a.png", "image/png"})
	s.Equal(http.StatusUnauthorized, res.Code)
	s.Equal("NO_TOKEN", res.errorCode())
}

func (s *RouterSuite) TestCarListingFiltersAndPaging() {
	token, shopID, _ := s.registerShop("fleet")
	for i, price := range []int{30, 60, 90} {
		res := s.createCar(token, carForm(fmt.Sprintf("FLT-%d", i), price), imagePart{"a.png", "image/png"})
		s.Require().Equal(http.StatusCreated, res.Code)
	}

	res := s.doJSON(http.MethodGet, "/api/cars", "", nil)
	s.Equal(http.StatusOK, res.Code)
	s.Len(res.Body["cars"], 3)
	pagination := res.Body["pagination"].(map[string]any)
	s.Equal(1.0, pagination["currentPage"])
	s.Equal(float64(models.DefaultLimit), pagination["limit"])
	s.Equal(3.0, pagination["total"])

	res = s.doJSON(http.MethodGet, "/api/cars?minPrice=50&maxPrice=100", "", nil)
	s.Len(res.Body["cars"], 2)

	res = s.doJSON(http.MethodGet, "/api/cars?minPrice=100&maxPrice=50", "", nil)
	s.Equal(http.StatusBadRequest, res.Code)
	s.Equal("VALIDATION_ERROR", res.errorCode())

	res = s.doJSON(http.MethodGet, "/api/cars?limit=2&page=2", "", nil)
	s.Len(res.Body["cars"], 1)

	res = s.doJSON(http.MethodGet, "/api/cars?limit=50&page=9223372036854775807", "", nil)
	s.Equal(http.StatusOK, res.Code)
	s.Empty(res.Body["cars"])

	res = s.doJSON(http.MethodGet, "/api/cars/shop/"+shopID, token, nil)
	s.Equal(http.StatusOK, res.Code)
	s.Len(res.Body["cars"], 3)

	otherToken, _, _ := s.registerShop("snoop")
	s.Equal(http.StatusForbidden, s.doJSON(http.MethodGet, "/api/cars/shop/"+shopID, otherToken, nil).Code)
}

func (s *RouterSuite) TestAdminCompanyStatus() {
	_, _, companyID := s.registerShop("approve")
	admin := s.adminToken()
	path := "/api/admin/companies/" + companyID + "/status"

	res := s.doJSON(http.MethodPatch, path, admin, map[string]string{"status": "approved"})
	s.Equal(http.StatusBadRequest, res.Code)
	s.Equal("INVALID_STATUS", res.errorCode())
	company, ok := s.store.Company(mustObjectID(s.T(), companyID))
	s.Require().True(ok)
	s.Equal("pending", company.Status)

	res = s.doJSON(http.MethodPatch, path, admin, map[string]string{"status": "active"})
	s.Equal(http.StatusOK, res.Code)
	s.Equal("Company status updated to active", res.Body["message"])
	company, _ = s.store.Company(mustObjectID(s.T(), companyID))
	s.Equal("active", company.Status)

	list := s.doJSON(http.MethodGet, "/api/rental-companies", "", nil)
	s.Len(list.Body["companies"], 1)

	detail := s.doJSON(http.MethodGet, "/api/admin/companies/"+companyID, admin, nil)
	s.Equal(http.StatusOK, detail.Code)
	owner := detail.Body["company"].(map[string]any)["owner"].(map[string]any)
	s.Equal("approve", owner["username"])
}

func (s *RouterSuite) TestAdminRoutesRequireAdmin() {
	shopToken, _, _ := s.registerShop("notadmin")

	s.Equal(http.StatusUnauthorized, s.doJSON(http.MethodGet, "/api/admin/companies", "", nil).Code)
	res := s.doJSON(http.MethodGet, "/api/admin/companies", shopToken, nil)
	s.Equal(http.StatusForbidden, res.Code)
	s.Equal("FORBIDDEN", res.errorCode())

	s.Equal(http.StatusForbidden, s.doJSON(http.MethodGet, "/api/auth/users", shopToken, nil).Code)
	s.Equal(http.StatusOK, s.doJSON(http.MethodGet, "/api/auth/users", s.adminToken(), nil).Code)
}

func (s *RouterSuite) TestInvalidTokens() {
	res := s.doJSON(http.MethodGet, "/api/auth/me", "garbage", nil)
	s.Equal(http.StatusUnauthorized, res.Code)
	s.Equal("INVALID_TOKEN", res.errorCode())

	claims := &services.Claims{ID: primitive.NewObjectID().Hex(), RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("router-test-secret"))
	s.Require().NoError(err)

	res = s.doJSON(http.MethodGet, "/api/auth/me", expired, nil)
	s.Equal(http.StatusUnauthorized, res.Code)
	s.Equal("TOKEN_EXPIRED", res.errorCode())

	ghost, err := s.auth.GenerateToken(primitive.NewObjectID())
	s.Require().NoError(err)
	res = s.doJSON(http.MethodGet, "/api/auth/me", ghost, nil)
	s.Equal(http.StatusUnauthorized, res.Code)
	s.Equal("USER_NOT_FOUND", res.errorCode())
}

func (s *RouterSuite) TestUnknownRouteAndMethod() {
	res := s.doJSON(http.MethodGet, "/api/nope", "", nil)
	s.Equal(http.StatusNotFound, res.Code)
	s.Equal("NOT_FOUND", res.errorCode())
	s.Equal("Route not found", res.Body["message"])
}

func (s *RouterSuite) TestHealthAndMetrics() {
	res := s.doJSON(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, res.Code)
	s.Equal("ok", res.Body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "car_rental_http_requests_total")
}

func (s *RouterSuite) TestCORSPreflight() {
	req := httptest.NewRequest(http.MethodOptions, "/api/cars", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	s.handler.ServeHTTP(rec, req)

	s.Equal("http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
