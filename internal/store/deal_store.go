package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/salesboard/internal/models"
)

// DealStore defines the interface for the local mirror of CRM deals.
type DealStore interface {
	// Upsert inserts or updates a deal keyed by tenant and CRM deal id.
	// Returns true if the deal was newly created.
	Upsert(ctx context.Context, deal *models.Deal) (bool, error)

	// ListByTenant returns all mirrored deals of a tenant.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Deal, error)

	// DeleteExcept removes the tenant's deals whose CRM deal id is not in
	// keep and returns how many were removed. An empty keep removes all.
	DeleteExcept(ctx context.Context, tenantID uuid.UUID, keep []string) (int, error)
}
