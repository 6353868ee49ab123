package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/salesboard/internal/models"
)

// TokenStore defines the interface for the per-tenant CRM token pair.
type TokenStore interface {
	// Get retrieves the token pair of a tenant.
	// Returns ErrTokenNotFound if the tenant has never completed OAuth.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.OAuthToken, error)

	// Put stores the token pair of a tenant, replacing any previous pair.
	Put(ctx context.Context, token *models.OAuthToken) error
}
