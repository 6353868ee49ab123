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

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{
		pool: pool,
	}
}

const userColumns = `
	user_id, tenant_id, owner_id, crm_user_id, email, name,
	active, role, created_at, updated_at, last_login_at`

// Create creates a new user in the database.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		user.UserID,
		user.TenantID,
		user.OwnerID,
		user.CRMUserID,
		user.Email,
		user.Name,
		user.Active,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
		user.LastLoginAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", user.UserID.String()).
		Str("tenant_id", user.TenantID.String()).
		Str("role", user.Role).
		Msg("Created user")

	return nil
}

// Get retrieves a user by tenant and user ID.
func (s *UserStore) Get(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND user_id = $2`
	return scanUser(s.pool.QueryRow(ctx, query, tenantID, userID))
}

// GetByEmail retrieves a user by email within a tenant.
func (s *UserStore) GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND lower(email) = lower($2)`
	return scanUser(s.pool.QueryRow(ctx, query, tenantID, email))
}

// Update updates an existing user.
func (s *UserStore) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users SET
			owner_id = $3,
			crm_user_id = $4,
			email = $5,
			name = $6,
			active = $7,
			role = $8,
			updated_at = $9,
			last_login_at = $10
		WHERE tenant_id = $1 AND user_id = $2
	`

	result, err := s.pool.Exec(ctx, query,
		user.TenantID,
		user.UserID,
		user.OwnerID,
		user.CRMUserID,
		user.Email,
		user.Name,
		user.Active,
		user.Role,
		user.UpdatedAt,
		user.LastLoginAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	return nil
}

// ListByTenant returns all users of a tenant ordered by creation time.
func (s *UserStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 ORDER BY created_at, user_id`

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// CountByTenant returns the number of users in a tenant.
func (s *UserStore) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE tenant_id = $1`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", mapPostgresError(err))
	}
	return count, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.UserID,
		&user.TenantID,
		&user.OwnerID,
		&user.CRMUserID,
		&user.Email,
		&user.Name,
		&user.Active,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", mapPostgresError(err))
	}
	return &user, nil
}
