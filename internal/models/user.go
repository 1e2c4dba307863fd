package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aura-crm/backend/pkg/apperr"
)

// Role represents user role in the platform.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleCustomer Role = "customer"
)

// ParseRole maps a stored or submitted role string to a Role.
// "employee" is accepted as a legacy alias for customer.
func ParseRole(s string) (Role, error) {
	switch s {
	case string(RoleAdmin):
		return RoleAdmin, nil
	case string(RoleManager):
		return RoleManager, nil
	case string(RoleCustomer), "employee":
		return RoleCustomer, nil
	default:
		return "", apperr.Invalid("role", "unknown role "+quote(s))
	}
}

// User represents a platform user.
type User struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	Password  string     `json:"-"`
	FullName  string     `json:"full_name"`
	Role      Role       `json:"role"`
	CompanyID *uuid.UUID `json:"company_id,omitempty"` // primary company, nil for orphans
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Role      Role       `json:"role"`
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		CompanyID: u.CompanyID,
		CreatedAt: u.CreatedAt,
	}
}

// Actor identifies who is calling an operation. It is built from the verified
// token by the JWT middleware and passed explicitly into operations.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}

// IsStaff reports whether the actor may see and manage all companies.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleManager
}

func quote(s string) string { return "\"" + s + "\"" }
