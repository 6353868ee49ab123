package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/salesboard/internal/models"
)

// TeamStore defines the interface for team and team membership storage.
type TeamStore interface {
	// Create creates a new team along with its initial members.
	Create(ctx context.Context, team *models.Team) error

	// Get retrieves a team and its member ids.
	// Returns ErrTeamNotFound if the team doesn't exist in the tenant.
	Get(ctx context.Context, tenantID, teamID uuid.UUID) (*models.Team, error)

	// ListByTenant returns all teams of a tenant with their member ids.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Team, error)

	// AddMember adds a user to a team. Adding an existing member is a no-op.
	// Returns ErrTeamNotFound if the team doesn't exist in the tenant.
	AddMember(ctx context.Context, tenantID, teamID, userID uuid.UUID) error

	// RemoveMember removes a user from a team. Removing a non-member is a no-op.
	RemoveMember(ctx context.Context, tenantID, teamID, userID uuid.UUID) error
}
