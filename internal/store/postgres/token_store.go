package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
)

// TokenStore implements store.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a new PostgreSQL-backed token store.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{
		pool: pool,
	}
}

// Get retrieves the token pair of a tenant.
func (s *TokenStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.OAuthToken, error) {
	var token models.OAuthToken
	err := s.pool.QueryRow(ctx, `
		SELECT tenant_id, access_token, refresh_token, token_type, expires_at, updated_at
		FROM oauth_tokens
		WHERE tenant_id = $1
	`, tenantID).Scan(
		&token.TenantID,
		&token.AccessToken,
		&token.RefreshToken,
		&token.TokenType,
		&token.ExpiresAt,
		&token.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get oauth token: %w", mapPostgresError(err))
	}

	return &token, nil
}

// Put stores the token pair of a tenant, replacing any previous pair.
func (s *TokenStore) Put(ctx context.Context, token *models.OAuthToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth_tokens (tenant_id, access_token, refresh_token, token_type, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`,
		token.TenantID,
		token.AccessToken,
		token.RefreshToken,
		token.TokenType,
		token.ExpiresAt,
		token.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store oauth token: %w", mapPostgresError(err))
	}

	return nil
}
