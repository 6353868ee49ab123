package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
)

// UserStore implements store.UserStore using in-memory storage.
// This implementation is for testing and development only - data is lost on restart.
type UserStore struct {
	mu sync.RWMutex

	users    map[uuid.UUID]*models.User // user_id -> User
	byTenant map[uuid.UUID][]uuid.UUID  // tenant_id -> []user_id, in creation order
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:    make(map[uuid.UUID]*models.User),
		byTenant: make(map[uuid.UUID][]uuid.UUID),
	}
}

// Create creates a new user in memory.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.UserID]; exists {
		return store.ErrUserAlreadyExists
	}
	if s.findByEmail(user.TenantID, user.Email) != nil {
		return store.ErrUserAlreadyExists
	}

	clone := *user
	s.users[user.UserID] = &clone
	s.byTenant[user.TenantID] = append(s.byTenant[user.TenantID], user.UserID)

	return nil
}

// Get retrieves a user by tenant and user ID.
func (s *UserStore) Get(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists || user.TenantID != tenantID {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// GetByEmail retrieves a user by email within a tenant.
func (s *UserStore) GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user := s.findByEmail(tenantID, email)
	if user == nil {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// Update updates an existing user.
func (s *UserStore) Update(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.users[user.UserID]
	if !exists || existing.TenantID != user.TenantID {
		return store.ErrUserNotFound
	}

	user.UpdatedAt = time.Now()
	clone := *user
	clone.CreatedAt = existing.CreatedAt
	s.users[user.UserID] = &clone

	return nil
}

// ListByTenant returns all users of a tenant in creation order.
func (s *UserStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byTenant[tenantID]
	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		clone := *s.users[id]
		users = append(users, &clone)
	}

	return users, nil
}

// CountByTenant returns the number of users in a tenant.
func (s *UserStore) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byTenant[tenantID]), nil
}

// findByEmail must be called with the lock held.
func (s *UserStore) findByEmail(tenantID uuid.UUID, email string) *models.User {
	if email == "" {
		return nil
	}
	idx := slices.IndexFunc(s.byTenant[tenantID], func(id uuid.UUID) bool {
		return strings.EqualFold(s.users[id].Email, email)
	})
	if idx < 0 {
		return nil
	}
	return s.users[s.byTenant[tenantID][idx]]
}
