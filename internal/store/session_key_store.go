package store

import (
	"context"
	"time"

	"github.com/wolfeidau/salesboard/internal/models"
)

// SessionKeyStore defines the interface for one-time session keys.
type SessionKeyStore interface {
	// Create stores a new session key.
	Create(ctx context.Context, key *models.SessionKey) error

	// Take atomically deletes the key and returns it. Exactly one concurrent
	// caller can take a given key.
	// Returns ErrSessionKeyNotFound if the key doesn't exist (or was already taken)
	// and ErrSessionKeyExpired if it existed but expired before now; an expired
	// key is deleted all the same.
	Take(ctx context.Context, key string, now time.Time) (*models.SessionKey, error)

	// DeleteExpired deletes all keys that expired before now (cleanup).
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
