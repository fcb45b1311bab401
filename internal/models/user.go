package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID            primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Username      string             `json:"username" bson:"username"`
	Email         string             `json:"email" bson:"email"`
	PasswordHash  string             `json:"-" bson:"password"`
	Phone         string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Role          string             `json:"role" bson:"role"`
	FirstName     string             `json:"firstName,omitempty" bson:"firstName,omitempty"`
	LastName      string             `json:"lastName,omitempty" bson:"lastName,omitempty"`
	LicenseNumber string             `json:"licenseNumber,omitempty" bson:"licenseNumber,omitempty"`
	DateOfBirth   *time.Time         `json:"dateOfBirth,omitempty" bson:"dateOfBirth,omitempty"`
	Address       string             `json:"address,omitempty" bson:"address,omitempty"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`
}

type UserRole string

const (
	RoleAdmin         UserRole = "admin"
	RoleCustomer      UserRole = "customer"
	RoleRentalCompany UserRole = "rental-company"
)

func IsValidRole(role string) bool {
	switch UserRole(role) {
	case RoleAdmin, RoleCustomer, RoleRentalCompany:
		return true
	}
	return false
}

func (u *User) HasRole(role UserRole) bool {
	return u != nil && u.Role == string(role)
}

// Validate checks the save-time invariants of a user document.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" || strings.TrimSpace(u.Email) == "" {
		return NewValidationError("username and email are required")
	}
	if !IsValidRole(u.Role) {
		return NewValidationError("invalid role")
	}
	if u.Role == string(RoleCustomer) && (strings.TrimSpace(u.FirstName) == "" || strings.TrimSpace(u.LastName) == "") {
		return NewValidationError("firstName and lastName are required for customers")
	}
	return nil
}

type RegisterRequest struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Phone         string `json:"phone"`
	Role          string `json:"role"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	LicenseNumber string `json:"licenseNumber"`
	DateOfBirth   string `json:"dateOfBirth"`
	Address       string `json:"address"`

	CompanyName        string   `json:"companyName"`
	CompanyCategory    string   `json:"companyCategory"`
	CompanyDescription string   `json:"companyDescription"`
	CompanyLocations   []string `json:"companyLocations"`
	CompanyPhone       string   `json:"companyPhone"`
	CompanyEmail       string   `json:"companyEmail"`
	CompanyWebsite     string   `json:"companyWebsite"`
	CompanyAddress     string   `json:"companyAddress"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UpdateUserRequest struct {
	Username      *string `json:"username,omitempty"`
	Email         *string `json:"email,omitempty"`
	Password      *string `json:"password,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	FirstName     *string `json:"firstName,omitempty"`
	LastName      *string `json:"lastName,omitempty"`
	LicenseNumber *string `json:"licenseNumber,omitempty"`
	DateOfBirth   *string `json:"dateOfBirth,omitempty"`
	Address       *string `json:"address,omitempty"`
}

type UserFilter struct {
	Role  string
	Page  int
	Limit int
}
