package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/salesboard/internal/models"
)

// DealStore implements store.DealStore using PostgreSQL.
type DealStore struct {
	pool *pgxpool.Pool
}

// NewDealStore creates a new PostgreSQL-backed deal store.
func NewDealStore(pool *pgxpool.Pool) *DealStore {
	return &DealStore{
		pool: pool,
	}
}

// Upsert inserts or updates a deal keyed by tenant and CRM deal id.
// xmax = 0 identifies a freshly inserted row.
func (s *DealStore) Upsert(ctx context.Context, deal *models.Deal) (bool, error) {
	now := time.Now()
	if deal.DealID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return false, fmt.Errorf("failed to generate deal id: %w", err)
		}
		deal.DealID = id
	}

	query := `
		INSERT INTO deals (
			deal_id, tenant_id, user_id, crm_deal_id, owner_id, name,
			amount, stage, close_date, last_modified_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11
		)
		ON CONFLICT ON CONSTRAINT deals_tenant_crm_deal_key DO UPDATE SET
			user_id = EXCLUDED.user_id,
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			amount = EXCLUDED.amount,
			stage = EXCLUDED.stage,
			close_date = EXCLUDED.close_date,
			last_modified_at = EXCLUDED.last_modified_at,
			updated_at = EXCLUDED.updated_at
		RETURNING deal_id, (xmax = 0) AS inserted
	`

	var inserted bool
	err := s.pool.QueryRow(ctx, query,
		deal.DealID,
		deal.TenantID,
		deal.UserID,
		deal.CRMDealID,
		deal.OwnerID,
		deal.Name,
		deal.Amount,
		deal.Stage,
		deal.CloseDate,
		deal.LastModifiedAt,
		now,
	).Scan(&deal.DealID, &inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert deal: %w", mapPostgresError(err))
	}

	return inserted, nil
}

// ListByTenant returns all mirrored deals of a tenant.
func (s *DealStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Deal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			deal_id, tenant_id, user_id, crm_deal_id, owner_id, name,
			amount, stage, close_date, last_modified_at, created_at, updated_at
		FROM deals
		WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var deals []*models.Deal
	for rows.Next() {
		var deal models.Deal
		err := rows.Scan(
			&deal.DealID,
			&deal.TenantID,
			&deal.UserID,
			&deal.CRMDealID,
			&deal.OwnerID,
			&deal.Name,
			&deal.Amount,
			&deal.Stage,
			&deal.CloseDate,
			&deal.LastModifiedAt,
			&deal.CreatedAt,
			&deal.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		deals = append(deals, &deal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deals: %w", err)
	}

	return deals, nil
}

// DeleteExcept removes the tenant's deals whose CRM deal id is not in keep.
func (s *DealStore) DeleteExcept(ctx context.Context, tenantID uuid.UUID, keep []string) (int, error) {
	if keep == nil {
		keep = []string{}
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM deals
		WHERE tenant_id = $1 AND NOT (crm_deal_id = ANY($2::text[]))
	`, tenantID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune deals: %w", mapPostgresError(err))
	}

	return int(tag.RowsAffected()), nil
}
