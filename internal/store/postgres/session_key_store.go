package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
)

// SessionKeyStore implements store.SessionKeyStore using PostgreSQL.
type SessionKeyStore struct {
	pool *pgxpool.Pool
}

// NewSessionKeyStore creates a new PostgreSQL-backed session key store.
func NewSessionKeyStore(pool *pgxpool.Pool) *SessionKeyStore {
	return &SessionKeyStore{
		pool: pool,
	}
}

// Create stores a new session key.
func (s *SessionKeyStore) Create(ctx context.Context, key *models.SessionKey) error {
	// Convert empty IP address to nil for proper INET handling
	var ipAddress any
	if key.IPAddress != "" {
		ipAddress = key.IPAddress
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_keys (key, credential, created_at, expires_at, ip_address)
		VALUES ($1, $2, $3, $4, $5::inet)
	`, key.Key, key.Credential, key.CreatedAt, key.ExpiresAt, ipAddress)
	if err != nil {
		return fmt.Errorf("failed to create session key: %w", mapPostgresError(err))
	}

	return nil
}

// Take deletes the key and returns it in a single statement. Row locking on
// DELETE guarantees only one concurrent caller sees the row.
func (s *SessionKeyStore) Take(ctx context.Context, key string, now time.Time) (*models.SessionKey, error) {
	var sk models.SessionKey
	err := s.pool.QueryRow(ctx, `
		DELETE FROM session_keys
		WHERE key = $1
		RETURNING key, credential, created_at, expires_at
	`, key).Scan(&sk.Key, &sk.Credential, &sk.CreatedAt, &sk.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionKeyNotFound
		}
		return nil, fmt.Errorf("failed to take session key: %w", mapPostgresError(err))
	}

	if sk.IsExpired(now) {
		return nil, store.ErrSessionKeyExpired
	}

	return &sk, nil
}

// DeleteExpired deletes all keys that expired before now.
func (s *SessionKeyStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM session_keys WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired session keys: %w", mapPostgresError(err))
	}

	count := int(result.RowsAffected())
	if count > 0 {
		log.Debug().Int("count", count).Msg("Deleted expired session keys")
	}

	return count, nil
}
