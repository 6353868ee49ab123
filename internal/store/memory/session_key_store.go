package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
)

// SessionKeyStore implements store.SessionKeyStore using in-memory storage.
// The mutex makes Take a single check-and-delete step.
type SessionKeyStore struct {
	mu   sync.Mutex
	keys map[string]*models.SessionKey
}

// NewSessionKeyStore creates a new in-memory session key store.
func NewSessionKeyStore() *SessionKeyStore {
	return &SessionKeyStore{
		keys: make(map[string]*models.SessionKey),
	}
}

// Create stores a new session key.
func (s *SessionKeyStore) Create(ctx context.Context, key *models.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *key
	s.keys[key.Key] = &clone
	return nil
}

// Take deletes the key and returns it.
func (s *SessionKeyStore) Take(ctx context.Context, key string, now time.Time) (*models.SessionKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk, exists := s.keys[key]
	if !exists {
		return nil, store.ErrSessionKeyNotFound
	}
	delete(s.keys, key)

	if sk.IsExpired(now) {
		return nil, store.ErrSessionKeyExpired
	}

	return sk, nil
}

// DeleteExpired deletes all keys that expired before now.
func (s *SessionKeyStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key, sk := range s.keys {
		if sk.IsExpired(now) {
			delete(s.keys, key)
			count++
		}
	}

	return count, nil
}
