package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/salesboard/internal/models"
)

type dealKey struct {
	tenantID  uuid.UUID
	crmDealID string
}

// DealStore implements store.DealStore using in-memory storage.
type DealStore struct {
	mu    sync.RWMutex
	deals map[dealKey]*models.Deal
}

// NewDealStore creates a new in-memory deal store.
func NewDealStore() *DealStore {
	return &DealStore{
		deals: make(map[dealKey]*models.Deal),
	}
}

// Upsert inserts or replaces a deal keyed by tenant and CRM deal id.
func (s *DealStore) Upsert(ctx context.Context, deal *models.Deal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dealKey{tenantID: deal.TenantID, crmDealID: deal.CRMDealID}
	now := time.Now()

	existing, exists := s.deals[key]
	clone := *deal
	switch {
	case exists:
		clone.DealID = existing.DealID
		clone.CreatedAt = existing.CreatedAt
	case clone.DealID == uuid.Nil:
		id, err := uuid.NewV7()
		if err != nil {
			return false, err
		}
		clone.DealID = id
		clone.CreatedAt = now
	default:
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	s.deals[key] = &clone

	deal.DealID = clone.DealID
	return !exists, nil
}

// ListByTenant returns all deals of a tenant.
func (s *DealStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var deals []*models.Deal
	for key, deal := range s.deals {
		if key.tenantID == tenantID {
			clone := *deal
			deals = append(deals, &clone)
		}
	}

	return deals, nil
}

// DeleteExcept removes the tenant's deals whose CRM deal id is not in keep.
func (s *DealStore) DeleteExcept(ctx context.Context, tenantID uuid.UUID, keep []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}

	removed := 0
	for key := range s.deals {
		if key.tenantID != tenantID {
			continue
		}
		if _, ok := kept[key.crmDealID]; !ok {
			delete(s.deals, key)
			removed++
		}
	}

	return removed, nil
}
