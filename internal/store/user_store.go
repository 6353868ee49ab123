package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/salesboard/internal/models"
)

// UserStore defines the interface for user storage operations.
// Every lookup is scoped to a tenant.
type UserStore interface {
	// Create creates a new user.
	// Returns ErrUserAlreadyExists if the email is already registered in the tenant.
	Create(ctx context.Context, user *models.User) error

	// Get retrieves a user by tenant and user ID.
	// Returns ErrUserNotFound if the user doesn't exist in that tenant.
	Get(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by email (case-insensitive) within a tenant.
	// Returns ErrUserNotFound if no user matches.
	GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error)

	// Update updates an existing user. The role is written as given; callers
	// are responsible for preserving it.
	// Returns ErrUserNotFound if the user doesn't exist.
	Update(ctx context.Context, user *models.User) error

	// ListByTenant returns all users of a tenant ordered by creation time.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error)

	// CountByTenant returns the number of users in a tenant.
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
}
