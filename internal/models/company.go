package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CompanyStatus string

const (
	CompanyStatusPending  CompanyStatus = "pending"
	CompanyStatusActive   CompanyStatus = "active"
	CompanyStatusInactive CompanyStatus = "inactive"
)

func IsValidCompanyStatus(status string) bool {
	switch CompanyStatus(status) {
	case CompanyStatusPending, CompanyStatusActive, CompanyStatusInactive:
		return true
	}
	return false
}

type CompanyCategory string

const (
	CategoryEconomy  CompanyCategory = "economy"
	CategoryStandard CompanyCategory = "standard"
	CategoryPremium  CompanyCategory = "premium"
	CategoryLuxury   CompanyCategory = "luxury"
)

func IsValidCompanyCategory(category string) bool {
	switch CompanyCategory(category) {
	case CategoryEconomy, CategoryStandard, CategoryPremium, CategoryLuxury:
		return true
	}
	return false
}

type RentalCompany struct {
	ID          primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	OwnerID     primitive.ObjectID `json:"ownerId" bson:"ownerId"`
	Name        string             `json:"name" bson:"name"`
	Category    string             `json:"category" bson:"category"`
	Description string             `json:"description,omitempty" bson:"description,omitempty"`
	Rating      float64            `json:"rating" bson:"rating"`
	ReviewCount int                `json:"reviewCount" bson:"reviewCount"`
	Locations   []string           `json:"locations" bson:"locations"`
	Features    []string           `json:"features" bson:"features"`
	Phone       string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Email       string             `json:"email,omitempty" bson:"email,omitempty"`
	Website     string             `json:"website,omitempty" bson:"website,omitempty"`
	Address     string             `json:"address,omitempty" bson:"address,omitempty"`
	Status      string             `json:"status" bson:"status"`
	Verified    bool               `json:"verified" bson:"verified"`
	Featured    bool               `json:"featured" bson:"featured"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

func (c *RentalCompany) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("company name is required")
	}
	if !IsValidCompanyCategory(c.Category) {
		return NewValidationError("invalid company category")
	}
	if !IsValidCompanyStatus(c.Status) {
		return NewValidationError("invalid company status")
	}
	if c.Rating < 0 || c.Rating > 5 {
		return NewValidationError("rating must be between 0 and 5")
	}
	return nil
}

func (c *RentalCompany) IsActive() bool {
	return c.Status == string(CompanyStatusActive)
}

// CompanyRequest carries owner-editable company fields. Nil means unchanged.
type CompanyRequest struct {
	Name        *string   `json:"name,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Description *string   `json:"description,omitempty"`
	Locations   *[]string `json:"locations,omitempty"`
	Features    *[]string `json:"features,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Website     *string   `json:"website,omitempty"`
	Address     *string   `json:"address,omitempty"`

	// admin only
	Verified *bool `json:"verified,omitempty"`
	Featured *bool `json:"featured,omitempty"`
}

type CompanyStatusRequest struct {
	Status string `json:"status"`
}

type CompanyFilter struct {
	Status    string
	Category  string
	Location  string
	Search    string
	MinRating float64
	Page      int
	Limit     int
}

// CompanyDetail is the admin view of a company with its owner.
type CompanyDetail struct {
	*RentalCompany
	Owner *User `json:"owner,omitempty"`
}
