package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/salesboard/internal/crm"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
	"github.com/wolfeidau/salesboard/internal/store/memory"
)

type mockCRM struct {
	mock.Mock
}

func (m *mockCRM) ListOwners(ctx context.Context, accessToken string) ([]crm.Owner, error) {
	args := m.Called(ctx, accessToken)
	owners, _ := args.Get(0).([]crm.Owner)
	return owners, args.Error(1)
}

func (m *mockCRM) ListActivities(ctx context.Context, accessToken string, kind models.ActivityKind, window crm.Window) ([]models.Activity, error) {
	args := m.Called(ctx, accessToken, kind, window)
	activities, _ := args.Get(0).([]models.Activity)
	return activities, args.Error(1)
}

type staticToken string

func (s staticToken) GetValidAccessToken(ctx context.Context, tenantID uuid.UUID) (string, error) {
	return string(s), nil
}

// Wednesday
var fixedNow = time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)

type fixture struct {
	stores   store.Stores
	crm      *mockCRM
	builder  *Builder
	tenantID uuid.UUID
	users    map[string]*models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		stores:   memory.NewStores(),
		crm:      &mockCRM{},
		tenantID: uuid.New(),
		users:    make(map[string]*models.User),
	}

	for _, u := range []struct {
		name    string
		ownerID string
		active  bool
	}{
		{name: "alice", ownerID: "101", active: true},
		{name: "bob", ownerID: "102", active: true},
		{name: "carol", ownerID: "103", active: false},
		{name: "dave", ownerID: "104", active: true}, // no longer a CRM owner
		{name: "erin", ownerID: "", active: true},    // never matched
	} {
		user := &models.User{
			UserID:   uuid.New(),
			TenantID: f.tenantID,
			OwnerID:  u.ownerID,
			Email:    u.name + "@example.com",
			Name:     u.name,
			Active:   u.active,
			Role:     models.RoleSalesRep,
		}
		require.NoError(t, f.stores.Users.Create(ctx, user))
		f.users[u.name] = user
	}

	for _, d := range []models.Deal{
		{CRMDealID: "a1", OwnerID: "101", Amount: 500, Stage: models.DealStageClosedWon, CloseDate: date(2024, 5, 1)},
		{CRMDealID: "a2", OwnerID: "101", Amount: 700, Stage: "contractsent"},
		{CRMDealID: "b1", OwnerID: "102", Amount: 500, Stage: models.DealStageClosedWon, CloseDate: date(2024, 5, 2)},
		{CRMDealID: "d1", OwnerID: "104", Amount: 900, Stage: models.DealStageClosedWon},
		{CRMDealID: "x1", OwnerID: "999", Amount: 5000, Stage: models.DealStageClosedWon},
	} {
		d.TenantID = f.tenantID
		_, err := f.stores.Deals.Upsert(ctx, &d)
		require.NoError(t, err)
	}

	f.builder = NewBuilder(f.stores, staticToken("token"), f.crm)
	f.builder.now = func() time.Time { return fixedNow }

	return f
}

func (f *fixture) expectOwners() {
	f.crm.On("ListOwners", mock.Anything, "token").Return([]crm.Owner{
		{ID: "101"}, {ID: "102"}, {ID: "103"},
	}, nil)
}

func (f *fixture) expectActivities(window crm.Window, byKind map[models.ActivityKind][]models.Activity) {
	for _, kind := range models.ActivityKinds {
		f.crm.On("ListActivities", mock.Anything, "token", kind, window).Return(byKind[kind], nil)
	}
}

func activities(kind models.ActivityKind, owners ...string) []models.Activity {
	var out []models.Activity
	for i, owner := range owners {
		out = append(out, models.Activity{ID: fmt.Sprintf("%s-%d", kind, i), Kind: kind, OwnerID: owner, Timestamp: fixedNow})
	}
	return out
}

func names(b *Board) []string {
	var out []string
	for _, e := range b.FullList {
		out = append(out, e.Name)
	}
	return out
}

func ranks(b *Board) []int {
	var out []int
	for _, e := range b.FullList {
		out = append(out, e.Rank)
	}
	return out
}

func TestDealLeaderboard(t *testing.T) {
	ctx := context.Background()

	t.Run("largest deal per active user", func(t *testing.T) {
		f := newFixture(t)
		f.expectOwners()

		board, err := f.builder.DealLeaderboard(ctx, Query{TenantID: f.tenantID})
		require.NoError(t, err)

		require.Equal(t, KindDeals, board.Kind)
		require.Equal(t, []string{"alice", "bob"}, names(board))
		require.Equal(t, []int{1, 2}, ranks(board))
		require.Equal(t, 2, board.TotalEntries)
		require.Equal(t, "a2", board.FullList[0].Deal.CRMDealID)
		require.InDelta(t, 1200, board.Summary.TotalScore, 0.001)
		require.Equal(t, "alice", board.Summary.Leader.Name)
		require.False(t, board.Partial)
	})

	t.Run("won only", func(t *testing.T) {
		f := newFixture(t)
		f.expectOwners()

		board, err := f.builder.DealLeaderboard(ctx, Query{TenantID: f.tenantID, WonOnly: true})
		require.NoError(t, err)

		require.Equal(t, []string{"alice", "bob"}, names(board))
		require.Equal(t, []int{1, 1}, ranks(board))
		require.Equal(t, 2, board.Summary.TiedForFirst)
	})

	t.Run("viewer entry", func(t *testing.T) {
		f := newFixture(t)
		f.expectOwners()

		board, err := f.builder.DealLeaderboard(ctx, Query{TenantID: f.tenantID})
		require.NoError(t, err)

		board.WithViewer(f.users["bob"].UserID)
		require.NotNil(t, board.Summary.Me)
		require.Equal(t, 2, board.Summary.Me.Rank)

		board.WithViewer(f.users["dave"].UserID)
		require.Nil(t, board.Summary.Me)
	})
}

func TestActivityLeaderboard(t *testing.T) {
	ctx := context.Background()
	current := crm.WeekOf(fixedNow)

	t.Run("counts and ratio", func(t *testing.T) {
		f := newFixture(t)
		f.expectOwners()
		f.expectActivities(current, map[models.ActivityKind][]models.Activity{
			models.ActivityMeeting: activities(models.ActivityMeeting, "101", "101", "102", "999"),
			models.ActivityCall:    activities(models.ActivityCall, "102", "102"),
			models.ActivityEmail:   activities(models.ActivityEmail, "101", "104"),
		})

		board, err := f.builder.ActivityLeaderboard(ctx, Query{TenantID: f.tenantID})
		require.NoError(t, err)

		require.Equal(t, []string{"alice", "bob"}, names(board))
		require.Equal(t, []int{1, 1}, ranks(board))
		require.Equal(t, current.Start, board.WindowStart)

		alice := board.FullList[0].Activity
		require.Equal(t, ActivityCounts{Meetings: 2, Emails: 1, Total: 3}, alice.ActivityCounts)
		require.Equal(t, 1, alice.OpenDeals)
		require.Equal(t, 300, alice.Ratio)

		bob := board.FullList[1].Activity
		require.Equal(t, 3, bob.Total)
		require.Zero(t, bob.OpenDeals)
		require.Zero(t, bob.Ratio)

		require.Nil(t, board.FullList[0].Delta)
		f.crm.AssertExpectations(t)
	})

	t.Run("include inactive keeps zero rows", func(t *testing.T) {
		f := newFixture(t)
		f.expectOwners()
		f.expectActivities(current, map[models.ActivityKind][]models.Activity{
			models.ActivityCall: activities(models.ActivityCall, "101"),
		})

		board, err := f.builder.ActivityLeaderboard(ctx, Query{TenantID: f.tenantID, IncludeInactive: true})
		require.NoError(t, err)

		require.Equal(t, []string{"alice", "bob", "carol"}, names(board))
		require.Equal(t, []int{1, 2, 2}, ranks(board))
	})

	t.Run("compare last week", func(t *testing.T) {
		f := newFixture(t)
		f.expectOwners()
		f.expectActivities(current, map[models.ActivityKind][]models.Activity{
			models.ActivityMeeting: activities(models.ActivityMeeting, "101", "101"),
		})
		f.expectActivities(crm.PreviousWeek(fixedNow), map[models.ActivityKind][]models.Activity{
			models.ActivityCall: activities(models.ActivityCall, "101", "102", "102", "102"),
		})

		board, err := f.builder.ActivityLeaderboard(ctx, Query{TenantID: f.tenantID, CompareLastWeek: true})
		require.NoError(t, err)

		alice := board.FullList[0]
		require.Equal(t, "alice", alice.Name)
		require.Equal(t, 1, alice.LastWeek.Total)
		require.Equal(t, 1, *alice.Delta)

		bob := board.FullList[1]
		require.Equal(t, 3, bob.LastWeek.Calls)
		require.Equal(t, -3, *bob.Delta)
		f.crm.AssertExpectations(t)
	})

	t.Run("partial fetch is flagged", func(t *testing.T) {
		f := newFixture(t)
		f.expectOwners()
		f.crm.On("ListActivities", mock.Anything, "token", models.ActivityMeeting, current).
			Return(activities(models.ActivityMeeting, "101"), nil)
		f.crm.On("ListActivities", mock.Anything, "token", models.ActivityCall, current).
			Return(activities(models.ActivityCall, "102"), fmt.Errorf("failed to list calls: %w: %w", crm.ErrPartialResult, crm.ErrUpstreamRateLimited))
		f.crm.On("ListActivities", mock.Anything, "token", models.ActivityEmail, current).
			Return(nil, nil)

		board, err := f.builder.ActivityLeaderboard(ctx, Query{TenantID: f.tenantID})
		require.NoError(t, err)
		require.True(t, board.Partial)
		require.Equal(t, []int{1, 1}, ranks(board))
	})

	t.Run("rate limit exhaustion fails", func(t *testing.T) {
		f := newFixture(t)
		f.expectOwners()
		f.crm.On("ListActivities", mock.Anything, "token", mock.Anything, current).
			Return(nil, fmt.Errorf("failed to list: %w", crm.ErrUpstreamRateLimited))

		_, err := f.builder.ActivityLeaderboard(ctx, Query{TenantID: f.tenantID})
		require.ErrorIs(t, err, crm.ErrUpstreamRateLimited)
	})
}

func TestTeamScope(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("team without members is an empty board", func(t *testing.T) {
		f := newFixture(t)
		team := &models.Team{TeamID: uuid.New(), TenantID: f.tenantID, Name: "empty", CreatedAt: now, UpdatedAt: now}
		require.NoError(t, f.stores.Teams.Create(ctx, team))

		for _, build := range []func(context.Context, Query) (*Board, error){
			f.builder.DealLeaderboard,
			f.builder.ActivityLeaderboard,
		} {
			board, err := build(ctx, Query{TenantID: f.tenantID, TeamID: &team.TeamID})
			require.NoError(t, err)
			require.Equal(t, 0, board.TotalEntries)

			raw, err := json.Marshal(board)
			require.NoError(t, err)
			require.Contains(t, string(raw), `"full_list":[]`)
			require.Contains(t, string(raw), `"total_entries":0`)
		}

		f.crm.AssertNotCalled(t, "ListOwners", mock.Anything, mock.Anything)
	})

	t.Run("team restricts participants", func(t *testing.T) {
		f := newFixture(t)
		f.expectOwners()
		team := &models.Team{
			TeamID:    uuid.New(),
			TenantID:  f.tenantID,
			Name:      "west",
			MemberIDs: []uuid.UUID{f.users["bob"].UserID},
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, f.stores.Teams.Create(ctx, team))

		board, err := f.builder.DealLeaderboard(ctx, Query{TenantID: f.tenantID, TeamID: &team.TeamID})
		require.NoError(t, err)
		require.Equal(t, []string{"bob"}, names(board))
		require.Equal(t, []int{1}, ranks(board))
	})

	t.Run("unknown team", func(t *testing.T) {
		f := newFixture(t)
		teamID := uuid.New()

		_, err := f.builder.DealLeaderboard(ctx, Query{TenantID: f.tenantID, TeamID: &teamID})
		require.ErrorIs(t, err, store.ErrTeamNotFound)
	})
}
