package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
)

// TenantStore implements store.TenantStore using in-memory storage.
// This implementation is for testing and development only - data is lost on restart.
type TenantStore struct {
	mu sync.RWMutex

	tenants  map[uuid.UUID]*models.Tenant // tenant_id -> Tenant
	byPortal map[int64]uuid.UUID          // portal_id -> tenant_id
}

// NewTenantStore creates a new in-memory tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		tenants:  make(map[uuid.UUID]*models.Tenant),
		byPortal: make(map[int64]uuid.UUID),
	}
}

// Create creates a new tenant in memory.
func (s *TenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[tenant.TenantID]; exists {
		return store.ErrTenantAlreadyExists
	}
	if _, exists := s.byPortal[tenant.PortalID]; exists {
		return store.ErrTenantAlreadyExists
	}

	clone := *tenant
	s.tenants[tenant.TenantID] = &clone
	s.byPortal[tenant.PortalID] = tenant.TenantID

	return nil
}

// Get retrieves a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, exists := s.tenants[tenantID]
	if !exists {
		return nil, store.ErrTenantNotFound
	}

	clone := *tenant
	return &clone, nil
}

// GetByPortalID retrieves a tenant by CRM portal id.
func (s *TenantStore) GetByPortalID(ctx context.Context, portalID int64) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID, exists := s.byPortal[portalID]
	if !exists {
		return nil, store.ErrTenantNotFound
	}

	clone := *s.tenants[tenantID]
	return &clone, nil
}

// Update updates the name and domain of a tenant.
func (s *TenantStore) Update(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.tenants[tenant.TenantID]
	if !exists {
		return store.ErrTenantNotFound
	}

	tenant.UpdatedAt = time.Now()
	existing.Name = tenant.Name
	existing.Domain = tenant.Domain
	existing.UpdatedAt = tenant.UpdatedAt

	return nil
}
