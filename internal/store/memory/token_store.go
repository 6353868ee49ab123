package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
)

// TokenStore implements store.TokenStore using in-memory storage.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[uuid.UUID]*models.OAuthToken // tenant_id -> token pair
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[uuid.UUID]*models.OAuthToken),
	}
}

// Get retrieves the token pair of a tenant.
func (s *TokenStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.OAuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, exists := s.tokens[tenantID]
	if !exists {
		return nil, store.ErrTokenNotFound
	}

	clone := *token
	return &clone, nil
}

// Put replaces the token pair of a tenant.
func (s *TokenStore) Put(ctx context.Context, token *models.OAuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *token
	s.tokens[token.TenantID] = &clone
	return nil
}
