package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/salesboard/internal/models"
)

// TenantStore defines the interface for tenant storage operations.
// A tenant is created on the first OAuth callback for a new portal id.
type TenantStore interface {
	// Create creates a new tenant.
	// Returns ErrTenantAlreadyExists if a tenant with the same portal id already exists.
	Create(ctx context.Context, tenant *models.Tenant) error

	// Get retrieves a tenant by ID.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)

	// GetByPortalID retrieves a tenant by its CRM portal id.
	// Returns ErrTenantNotFound if no tenant is linked to the portal.
	GetByPortalID(ctx context.Context, portalID int64) (*models.Tenant, error)

	// Update updates the name and domain of an existing tenant.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	Update(ctx context.Context, tenant *models.Tenant) error
}
