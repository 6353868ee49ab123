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

// TeamStore implements store.TeamStore using PostgreSQL.
type TeamStore struct {
	pool *pgxpool.Pool
}

// NewTeamStore creates a new PostgreSQL-backed team store.
func NewTeamStore(pool *pgxpool.Pool) *TeamStore {
	return &TeamStore{
		pool: pool,
	}
}

// Create creates a team and its initial memberships in one transaction.
func (s *TeamStore) Create(ctx context.Context, team *models.Team) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO teams (team_id, tenant_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, team.TeamID, team.TenantID, team.Name, team.CreatedAt, team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", mapPostgresError(err))
	}

	for _, userID := range team.MemberIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO team_members (team_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, team.TeamID, userID)
		if err != nil {
			return fmt.Errorf("failed to add team member: %w", mapPostgresError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit team: %w", err)
	}

	log.Debug().
		Str("team_id", team.TeamID.String()).
		Int("members", len(team.MemberIDs)).
		Msg("Created team")

	return nil
}

// Get retrieves a team and its member ids.
func (s *TeamStore) Get(ctx context.Context, tenantID, teamID uuid.UUID) (*models.Team, error) {
	var team models.Team
	err := s.pool.QueryRow(ctx, `
		SELECT team_id, tenant_id, name, created_at, updated_at
		FROM teams
		WHERE tenant_id = $1 AND team_id = $2
	`, tenantID, teamID).Scan(
		&team.TeamID,
		&team.TenantID,
		&team.Name,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", mapPostgresError(err))
	}

	members, err := s.members(ctx, `
		SELECT team_id, user_id FROM team_members WHERE team_id = $1 ORDER BY user_id
	`, teamID)
	if err != nil {
		return nil, err
	}
	team.MemberIDs = members[teamID]

	return &team, nil
}

// ListByTenant returns all teams of a tenant ordered by name.
func (s *TeamStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Team, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT team_id, tenant_id, name, created_at, updated_at
		FROM teams
		WHERE tenant_id = $1
		ORDER BY name, team_id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		var team models.Team
		if err := rows.Scan(&team.TeamID, &team.TenantID, &team.Name, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, &team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teams: %w", err)
	}

	members, err := s.members(ctx, `
		SELECT tm.team_id, tm.user_id
		FROM team_members tm
		JOIN teams t ON t.team_id = tm.team_id
		WHERE t.tenant_id = $1
		ORDER BY tm.user_id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	for _, team := range teams {
		team.MemberIDs = members[team.TeamID]
	}

	return teams, nil
}

// AddMember adds a user to a team.
func (s *TeamStore) AddMember(ctx context.Context, tenantID, teamID, userID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id)
		SELECT team_id, $3 FROM teams WHERE tenant_id = $1 AND team_id = $2
		ON CONFLICT DO NOTHING
	`, tenantID, teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to add team member: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		// Either the team is missing or the user is already a member.
		if _, err := s.Get(ctx, tenantID, teamID); err != nil {
			return err
		}
	}

	return s.touch(ctx, teamID)
}

// RemoveMember removes a user from a team.
func (s *TeamStore) RemoveMember(ctx context.Context, tenantID, teamID, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM team_members tm
		USING teams t
		WHERE t.team_id = tm.team_id AND t.tenant_id = $1 AND tm.team_id = $2 AND tm.user_id = $3
	`, tenantID, teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", mapPostgresError(err))
	}

	return s.touch(ctx, teamID)
}

func (s *TeamStore) touch(ctx context.Context, teamID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE teams SET updated_at = $2 WHERE team_id = $1`, teamID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update team: %w", mapPostgresError(err))
	}
	return nil
}

func (s *TeamStore) members(ctx context.Context, query string, arg any) (map[uuid.UUID][]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", mapPostgresError(err))
	}
	defer rows.Close()

	members := make(map[uuid.UUID][]uuid.UUID)
	for rows.Next() {
		var teamID, userID uuid.UUID
		if err := rows.Scan(&teamID, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		members[teamID] = append(members[teamID], userID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team members: %w", err)
	}

	return members, nil
}
