package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
)

// TeamStore implements store.TeamStore using in-memory storage.
type TeamStore struct {
	mu    sync.RWMutex
	teams map[uuid.UUID]*models.Team // team_id -> Team
}

// NewTeamStore creates a new in-memory team store.
func NewTeamStore() *TeamStore {
	return &TeamStore{
		teams: make(map[uuid.UUID]*models.Team),
	}
}

// Create creates a new team in memory.
func (s *TeamStore) Create(ctx context.Context, team *models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teams[team.TeamID] = cloneTeam(team)
	return nil
}

// Get retrieves a team by tenant and team ID.
func (s *TeamStore) Get(ctx context.Context, tenantID, teamID uuid.UUID) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	team, exists := s.teams[teamID]
	if !exists || team.TenantID != tenantID {
		return nil, store.ErrTeamNotFound
	}

	return cloneTeam(team), nil
}

// ListByTenant returns all teams of a tenant ordered by name.
func (s *TeamStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var teams []*models.Team
	for _, team := range s.teams {
		if team.TenantID == tenantID {
			teams = append(teams, cloneTeam(team))
		}
	}

	slices.SortFunc(teams, func(a, b *models.Team) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})

	return teams, nil
}

// AddMember adds a user to a team.
func (s *TeamStore) AddMember(ctx context.Context, tenantID, teamID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, exists := s.teams[teamID]
	if !exists || team.TenantID != tenantID {
		return store.ErrTeamNotFound
	}

	if !team.HasMember(userID) {
		team.MemberIDs = append(team.MemberIDs, userID)
		team.UpdatedAt = time.Now()
	}

	return nil
}

// RemoveMember removes a user from a team.
func (s *TeamStore) RemoveMember(ctx context.Context, tenantID, teamID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, exists := s.teams[teamID]
	if !exists || team.TenantID != tenantID {
		return store.ErrTeamNotFound
	}

	team.MemberIDs = slices.DeleteFunc(team.MemberIDs, func(id uuid.UUID) bool { return id == userID })
	team.UpdatedAt = time.Now()

	return nil
}

func cloneTeam(team *models.Team) *models.Team {
	clone := *team
	clone.MemberIDs = slices.Clone(team.MemberIDs)
	return &clone
}
