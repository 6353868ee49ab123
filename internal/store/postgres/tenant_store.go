package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
)

// TenantStore implements store.TenantStore using PostgreSQL.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a new PostgreSQL-backed tenant store.
// It shares the connection pool with other stores.
func NewTenantStore(pool *pgxpool.Pool) *TenantStore {
	return &TenantStore{
		pool: pool,
	}
}

const tenantColumns = `tenant_id, portal_id, name, domain, created_at, updated_at`

// Create creates a new tenant in the database.
func (s *TenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		tenant.TenantID,
		tenant.PortalID,
		tenant.Name,
		tenant.Domain,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrTenantAlreadyExists
		}
		return fmt.Errorf("failed to create tenant: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("tenant_id", tenant.TenantID.String()).
		Int64("portal_id", tenant.PortalID).
		Msg("Created tenant")

	return nil
}

// Get retrieves a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE tenant_id = $1`
	return s.getOne(ctx, query, tenantID)
}

// GetByPortalID retrieves a tenant by CRM portal id.
func (s *TenantStore) GetByPortalID(ctx context.Context, portalID int64) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE portal_id = $1`
	return s.getOne(ctx, query, portalID)
}

func (s *TenantStore) getOne(ctx context.Context, query string, arg any) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&tenant.TenantID,
		&tenant.PortalID,
		&tenant.Name,
		&tenant.Domain,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", mapPostgresError(err))
	}

	return &tenant, nil
}

// Update updates the name and domain of an existing tenant.
func (s *TenantStore) Update(ctx context.Context, tenant *models.Tenant) error {
	tenant.UpdatedAt = time.Now()

	query := `
		UPDATE tenants SET
			name = $2,
			domain = $3,
			updated_at = $4
		WHERE tenant_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		tenant.TenantID,
		tenant.Name,
		tenant.Domain,
		tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrTenantNotFound
	}

	return nil
}
