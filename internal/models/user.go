package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles a user can hold within a tenant.
const (
	RoleAdmin    = "admin"
	RoleSalesRep = "sales_rep"
)

// User is a member of a tenant. A user takes part in leaderboards once their
// OwnerID matches an owner returned by the CRM.
type User struct {
	UserID    uuid.UUID // UUIDv7
	TenantID  uuid.UUID // FK to tenants
	OwnerID   string    // CRM owner id, empty until matched
	CRMUserID string    // CRM login user id, set on OAuth login
	Email     string
	Name      string
	Active    bool
	Role      string // "admin" or "sales_rep"

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// IsAdmin returns true if the user administers the tenant.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName falls back to the email address when no name is known.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
