package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const MinCarYear = 1990

type FuelType string

const (
	FuelPetrol   FuelType = "petrol"
	FuelDiesel   FuelType = "diesel"
	FuelElectric FuelType = "electric"
	FuelHybrid   FuelType = "hybrid"
)

type Transmission string

const (
	TransmissionManual    Transmission = "manual"
	TransmissionAutomatic Transmission = "automatic"
)

const (
	MinSeatingCapacity = 2
	MaxSeatingCapacity = 20
)

type CarFeatures struct {
	AirConditioning bool `json:"airConditioning" bson:"airConditioning"`
	Bluetooth       bool `json:"bluetooth" bson:"bluetooth"`
	GPS             bool `json:"gps" bson:"gps"`
	Sunroof         bool `json:"sunroof" bson:"sunroof"`
}

type DriverPrice struct {
	WithDriver    float64 `json:"withDriver" bson:"withDriver"`
	WithoutDriver float64 `json:"withoutDriver" bson:"withoutDriver"`
}

// CarPricing is the per-period price split by driver option.
type CarPricing struct {
	Daily   DriverPrice `json:"daily" bson:"daily"`
	Weekly  DriverPrice `json:"weekly" bson:"weekly"`
	Monthly DriverPrice `json:"monthly" bson:"monthly"`
}

type Car struct {
	ID              primitive.ObjectID  `json:"_id" bson:"_id,omitempty"`
	ShopID          primitive.ObjectID  `json:"shopId" bson:"shopId"`
	CompanyID       *primitive.ObjectID `json:"companyId,omitempty" bson:"companyId,omitempty"`
	Brand           string              `json:"brand" bson:"brand"`
	Model           string              `json:"model" bson:"model"`
	Year            int                 `json:"year" bson:"year"`
	Color           string              `json:"color" bson:"color"`
	FuelType        string              `json:"fuelType" bson:"fuelType"`
	Transmission    string              `json:"transmission" bson:"transmission"`
	SeatingCapacity int                 `json:"seatingCapacity" bson:"seatingCapacity"`
	EngineSize      string              `json:"engineSize,omitempty" bson:"engineSize,omitempty"`
	PricePerDay     float64             `json:"pricePerDay" bson:"pricePerDay"`
	PricePerWeek    float64             `json:"pricePerWeek,omitempty" bson:"pricePerWeek,omitempty"`
	PricePerMonth   float64             `json:"pricePerMonth,omitempty" bson:"pricePerMonth,omitempty"`
	Pricing         *CarPricing         `json:"pricing,omitempty" bson:"pricing,omitempty"`
	Features        CarFeatures         `json:"features" bson:"features"`
	Description     string              `json:"description,omitempty" bson:"description,omitempty"`
	Location        string              `json:"location,omitempty" bson:"location,omitempty"`
	Images          []string            `json:"images" bson:"images"`
	IsAvailable     bool                `json:"isAvailable" bson:"isAvailable"`
	LicensePlate    string              `json:"licensePlate" bson:"licensePlate"`
	CreatedAt       time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt" bson:"updatedAt"`
}

// IsOwnedBy reports whether the shop user owns the car.
func (c *Car) IsOwnedBy(userID primitive.ObjectID) bool {
	return !userID.IsZero() && c.ShopID == userID
}

func (c *Car) Validate(now time.Time) error {
	var missing []string
	if strings.TrimSpace(c.Brand) == "" {
		missing = append(missing, "brand")
	}
	if strings.TrimSpace(c.Model) == "" {
		missing = append(missing, "model")
	}
	if c.Year == 0 {
		missing = append(missing, "year")
	}
	if strings.TrimSpace(c.Color) == "" {
		missing = append(missing, "color")
	}
	if c.FuelType == "" {
		missing = append(missing, "fuelType")
	}
	if c.Transmission == "" {
		missing = append(missing, "transmission")
	}
	if c.SeatingCapacity == 0 {
		missing = append(missing, "seatingCapacity")
	}
	if c.PricePerDay == 0 {
		missing = append(missing, "pricePerDay")
	}
	if strings.TrimSpace(c.LicensePlate) == "" {
		missing = append(missing, "licensePlate")
	}
	if len(missing) > 0 {
		return NewValidationError("missing required fields: " + strings.Join(missing, ", "))
	}

	maxYear := now.Year() + 1
	if c.Year < MinCarYear || c.Year > maxYear {
		return NewValidationError(fmt.Sprintf("year must be between %d and %d", MinCarYear, maxYear))
	}
	switch FuelType(c.FuelType) {
	case FuelPetrol, FuelDiesel, FuelElectric, FuelHybrid:
	default:
		return NewValidationError("invalid fuelType")
	}
	switch Transmission(c.Transmission) {
	case TransmissionManual, TransmissionAutomatic:
	default:
		return NewValidationError("invalid transmission")
	}
	if c.SeatingCapacity < MinSeatingCapacity || c.SeatingCapacity > MaxSeatingCapacity {
		return NewValidationError(fmt.Sprintf("seatingCapacity must be between %d and %d", MinSeatingCapacity, MaxSeatingCapacity))
	}
	prices := []float64{c.PricePerDay, c.PricePerWeek, c.PricePerMonth}
	if c.Pricing != nil {
		for _, p := range []DriverPrice{c.Pricing.Daily, c.Pricing.Weekly, c.Pricing.Monthly} {
			prices = append(prices, p.WithDriver, p.WithoutDriver)
		}
	}
	for _, p := range prices {
		if !isFinite(p) {
			return NewValidationError("prices must be finite numbers")
		}
		if p < 0 {
			return NewValidationError("prices cannot be negative")
		}
	}
	return nil
}

// ApplyCarFields copies allow-listed fields onto car, coercing each value
// to the field's type. Values arrive as JSON scalars or as multipart strings.
// Unknown keys are ignored.
func ApplyCarFields(car *Car, fields map[string]any) error {
	for key, raw := range fields {
		var err error
		switch key {
		case "brand":
			car.Brand, err = toString(raw)
		case "model":
			car.Model, err = toString(raw)
		case "color":
			car.Color, err = toString(raw)
		case "engineSize":
			car.EngineSize, err = toString(raw)
		case "description":
			car.Description, err = toString(raw)
		case "location":
			car.Location, err = toString(raw)
		case "fuelType":
			var s string
			s, err = toString(raw)
			car.FuelType = strings.ToLower(s)
		case "transmission":
			var s string
			s, err = toString(raw)
			car.Transmission = strings.ToLower(s)
		case "licensePlate":
			var s string
			s, err = toString(raw)
			car.LicensePlate = NormalizePlate(s)
		case "year":
			car.Year, err = toInt(raw)
		case "seatingCapacity":
			car.SeatingCapacity, err = toInt(raw)
		case "pricePerDay":
			car.PricePerDay, err = toFloat(raw)
		case "pricePerWeek":
			car.PricePerWeek, err = toFloat(raw)
		case "pricePerMonth":
			car.PricePerMonth, err = toFloat(raw)
		case "isAvailable":
			car.IsAvailable, err = toBool(raw)
		case "airConditioning":
			car.Features.AirConditioning, err = toBool(raw)
		case "bluetooth":
			car.Features.Bluetooth, err = toBool(raw)
		case "gps":
			car.Features.GPS, err = toBool(raw)
		case "sunroof":
			car.Features.Sunroof, err = toBool(raw)
		case "features":
			err = applyFeatures(&car.Features, raw)
		case "pricing":
			err = applyPricing(car, raw)
		default:
			continue
		}
		if err != nil {
			return NewValidationError(fmt.Sprintf("invalid value for %s", key))
		}
	}
	return nil
}

func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

func applyFeatures(features *CarFeatures, raw any) error {
	m, err := toObject(raw)
	if err != nil {
		return err
	}
	for key, value := range m {
		var target *bool
		switch key {
		case "airConditioning":
			target = &features.AirConditioning
		case "bluetooth":
			target = &features.Bluetooth
		case "gps":
			target = &features.GPS
		case "sunroof":
			target = &features.Sunroof
		default:
			continue
		}
		b, err := toBool(value)
		if err != nil {
			return err
		}
		*target = b
	}
	return nil
}

func applyPricing(car *Car, raw any) error {
	m, err := toObject(raw)
	if err != nil {
		return err
	}
	pricing := CarPricing{}
	if car.Pricing != nil {
		pricing = *car.Pricing
	}
	for key, value := range m {
		var target *DriverPrice
		switch key {
		case "daily":
			target = &pricing.Daily
		case "weekly":
			target = &pricing.Weekly
		case "monthly":
			target = &pricing.Monthly
		default:
			continue
		}
		period, err := toObject(value)
		if err != nil {
			return err
		}
		if v, ok := period["withDriver"]; ok {
			if target.WithDriver, err = toFloat(v); err != nil {
				return err
			}
		}
		if v, ok := period["withoutDriver"]; ok {
			if target.WithoutDriver, err = toFloat(v); err != nil {
				return err
			}
		}
	}
	car.Pricing = &pricing

	if car.PricePerDay == 0 {
		car.PricePerDay = pricing.Daily.Price()
	}
	if car.PricePerWeek == 0 {
		car.PricePerWeek = pricing.Weekly.Price()
	}
	if car.PricePerMonth == 0 {
		car.PricePerMonth = pricing.Monthly.Price()
	}
	return nil
}

// Price is the self-drive price, or the chauffeured one when that is all there is.
func (p DriverPrice) Price() float64 {
	if p.WithoutDriver > 0 {
		return p.WithoutDriver
	}
	return p.WithDriver
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("unexpected type %T", v)
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("not an integer: %v", t)
		}
		return int(t), nil
	case int:
		return t, nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}

func toFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	if !isFinite(f) {
		return 0, fmt.Errorf("not a finite number: %v", v)
	}
	return f, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "on", "yes":
			return true, nil
		case "false", "0", "off", "no", "":
			return false, nil
		}
	case float64:
		return t != 0, nil
	}
	return false, fmt.Errorf("unexpected value %v", v)
}

// toObject accepts a decoded JSON object or a JSON-encoded string, which is
// how nested values travel inside multipart forms.
func toObject(v any) (map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(t), &m); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("unexpected type %T", v)
}

type CarFilter struct {
	ShopID          *primitive.ObjectID
	Brand           string
	FuelType        string
	Transmission    string
	SeatingCapacity int
	MinPrice        *float64
	MaxPrice        *float64
	Available       *bool
	SortBy          string
	SortDesc        bool
	Page            int
	Limit           int
}

var carSortFields = map[string]bool{
	"createdAt":       true,
	"pricePerDay":     true,
	"year":            true,
	"brand":           true,
	"seatingCapacity": true,
}

// CarSortField returns field when it is sortable, createdAt otherwise.
func CarSortField(field string) string {
	if carSortFields[field] {
		return field
	}
	return "createdAt"
}
