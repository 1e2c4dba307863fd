package models

import (
	"time"

	"github.com/google/uuid"
)

// Company is a customer organization tracked by the CRM.
type Company struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	AddressLine string    `json:"address_line,omitempty"`
	City        string    `json:"city,omitempty"`
	Country     string    `json:"country,omitempty"`
	PostalCode  string    `json:"postal_code,omitempty"`
	Domains     []string  `json:"domains"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Roles a user can hold inside a company.
const (
	CompanyRoleOwner   = "owner"
	CompanyRoleManager = "manager"
	CompanyRoleMember  = "member"
)

// ValidCompanyRole reports whether role is one of the company roles.
func ValidCompanyRole(role string) bool {
	return role == CompanyRoleOwner || role == CompanyRoleManager || role == CompanyRoleMember
}

// CompanyUser links a user to a company. At most one row per user has IsPrimary set.
type CompanyUser struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompanyMember is a company association joined with user details.
type CompanyMember struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	UserRole  Role      `json:"user_role"`
	Role      string    `json:"role"`
	IsPrimary bool      `json:"is_primary"`
	AddedAt   time.Time `json:"added_at"`
}
