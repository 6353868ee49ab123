// Package leaderboard turns CRM records into ranked leaderboards for the
// active users of a tenant.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/wolfeidau/salesboard/internal/crm"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
	"github.com/wolfeidau/salesboard/internal/telemetry"
)

// CRM is the subset of the CRM client a leaderboard needs.
type CRM interface {
	ListOwners(ctx context.Context, accessToken string) ([]crm.Owner, error)
	ListActivities(ctx context.Context, accessToken string, kind models.ActivityKind, window crm.Window) ([]models.Activity, error)
}

// TokenSource returns a usable CRM access token for a tenant.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// Query selects the participants and options of one leaderboard.
type Query struct {
	TenantID        uuid.UUID
	TeamID          *uuid.UUID
	WonOnly         bool
	CompareLastWeek bool
	IncludeInactive bool
}

// Builder assembles leaderboards from the stores and the CRM.
type Builder struct {
	users  store.UserStore
	teams  store.TeamStore
	deals  store.DealStore
	tokens TokenSource
	crm    CRM
	now    func() time.Time
}

// NewBuilder creates a leaderboard builder.
func NewBuilder(stores store.Stores, tokens TokenSource, client CRM) *Builder {
	return &Builder{
		users:  stores.Users,
		teams:  stores.Teams,
		deals:  stores.Deals,
		tokens: tokens,
		crm:    client,
		now:    time.Now,
	}
}

// DealLeaderboard ranks participants by their largest mirrored deal.
// Participants without a deal are left off the board.
func (b *Builder) DealLeaderboard(ctx context.Context, q Query) (*Board, error) {
	defer b.record(ctx, KindDeals, time.Now())
	now := b.now()

	participants, _, partial, err := b.participants(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return newBoard(KindDeals, nil, now), nil
	}

	stored, err := b.deals.ListByTenant(ctx, q.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}

	deals := make([]models.Deal, 0, len(stored))
	for _, d := range stored {
		if q.WonOnly && !d.IsWon() {
			continue
		}
		deals = append(deals, *d)
	}

	aggregated := Aggregate(participants, deals, LargestDeal())

	entries := make([]Entry, 0, len(aggregated))
	for _, a := range aggregated {
		e := newEntry(a.Participant)
		e.Score = a.Value.Amount
		e.Deal = summarizeDeal(a.Value)
		entries = append(entries, e)
	}

	board := newBoard(KindDeals, entries, now)
	board.Partial = partial
	return board, nil
}

// ActivityLeaderboard ranks participants by meetings, calls and emails logged
// this week. Every participant appears, including those with no activity.
func (b *Builder) ActivityLeaderboard(ctx context.Context, q Query) (*Board, error) {
	defer b.record(ctx, KindActivity, time.Now())
	now := b.now()

	current := crm.WeekOf(now)

	participants, token, partial, err := b.participants(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		board := newBoard(KindActivity, nil, now)
		board.WindowStart, board.WindowEnd = current.Start, current.End
		return board, nil
	}

	windows := []crm.Window{current}
	if q.CompareLastWeek {
		windows = append(windows, crm.PreviousWeek(now))
	}

	activities, fetchPartial, err := b.fetchActivities(ctx, token, windows)
	if err != nil {
		return nil, err
	}
	partial = partial || fetchPartial

	openDeals, err := b.openDealsByOwner(ctx, q.TenantID)
	if err != nil {
		return nil, err
	}

	thisWeek := Aggregate(participants, activities[0], ActivityTotals())

	var lastWeek map[uuid.UUID]ActivityCounts
	if q.CompareLastWeek {
		lastWeek = make(map[uuid.UUID]ActivityCounts, len(participants))
		for _, a := range Aggregate(participants, activities[1], ActivityTotals()) {
			lastWeek[a.Participant.UserID] = a.Value
		}
	}

	entries := make([]Entry, 0, len(thisWeek))
	for _, a := range thisWeek {
		e := newEntry(a.Participant)
		open := openDeals[a.Participant.OwnerID]
		e.Score = float64(a.Value.Total)
		e.Activity = &ActivityStats{
			ActivityCounts: a.Value,
			OpenDeals:      open,
			Ratio:          ratio(a.Value.Total, open),
		}
		if lastWeek != nil {
			prev := lastWeek[a.Participant.UserID]
			delta := a.Value.Total - prev.Total
			e.LastWeek = &prev
			e.Delta = &delta
		}
		entries = append(entries, e)
	}

	board := newBoard(KindActivity, entries, now)
	board.Partial = partial
	board.WindowStart, board.WindowEnd = current.Start, current.End
	return board, nil
}

// participants resolves the active users for a query. A user is active when
// their owner id is in the CRM's current owner list and, unless
// IncludeInactive is set, their local active flag is on. A team scope
// narrows the set before any record is looked at.
func (b *Builder) participants(ctx context.Context, q Query) ([]Participant, string, bool, error) {
	users, err := b.users.ListByTenant(ctx, q.TenantID)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to list users: %w", err)
	}

	if q.TeamID != nil {
		team, err := b.teams.Get(ctx, q.TenantID, *q.TeamID)
		if err != nil {
			return nil, "", false, err
		}
		users = filterUsers(users, func(u *models.User) bool { return team.HasMember(u.UserID) })
	}

	users = filterUsers(users, func(u *models.User) bool {
		return u.OwnerID != "" && (u.Active || q.IncludeInactive)
	})
	if len(users) == 0 {
		return nil, "", false, nil
	}

	token, err := b.tokens.GetValidAccessToken(ctx, q.TenantID)
	if err != nil {
		return nil, "", false, err
	}

	owners, err := b.crm.ListOwners(ctx, token)
	partial := errors.Is(err, crm.ErrPartialResult)
	if err != nil && !partial {
		return nil, "", false, err
	}

	current := make(map[string]struct{}, len(owners))
	for _, o := range owners {
		current[o.ID] = struct{}{}
	}

	participants := make([]Participant, 0, len(users))
	for _, u := range users {
		if _, ok := current[u.OwnerID]; !ok {
			continue
		}
		participants = append(participants, Participant{
			UserID:  u.UserID,
			OwnerID: u.OwnerID,
			Name:    u.DisplayName(),
			Email:   u.Email,
		})
	}

	return participants, token, partial, nil
}

// fetchActivities fetches every activity kind for every window concurrently.
// The result is indexed by window.
func (b *Builder) fetchActivities(ctx context.Context, token string, windows []crm.Window) ([][]models.Activity, bool, error) {
	var (
		mu      sync.Mutex
		partial bool
		results = make([][]models.Activity, len(windows))
	)

	g, gctx := errgroup.WithContext(ctx)
	for wi, window := range windows {
		for _, kind := range models.ActivityKinds {
			g.Go(func() error {
				activities, err := b.crm.ListActivities(gctx, token, kind, window)
				if err != nil && !errors.Is(err, crm.ErrPartialResult) {
					return err
				}

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					partial = true
				}
				results[wi] = append(results[wi], activities...)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	return results, partial, nil
}

func (b *Builder) openDealsByOwner(ctx context.Context, tenantID uuid.UUID) (map[string]int, error) {
	deals, err := b.deals.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}

	open := make(map[string]int)
	for _, d := range deals {
		if d.IsOpen() && d.OwnerID != "" {
			open[d.OwnerID]++
		}
	}
	return open, nil
}

func (b *Builder) record(ctx context.Context, kind Kind, start time.Time) {
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("kind", string(kind)))
	m.LeaderboardBuildsTotal.Add(ctx, 1, attrs)
	m.LeaderboardBuildDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	log.Debug().
		Str("kind", string(kind)).
		Dur("duration", time.Since(start)).
		Msg("Built leaderboard")
}

// ratio is total activities per open deal as a rounded percentage.
func ratio(total, openDeals int) int {
	if openDeals == 0 {
		return 0
	}
	return int(math.Round(float64(total) / float64(openDeals) * 100))
}

func newEntry(p Participant) Entry {
	return Entry{
		UserID:  p.UserID,
		OwnerID: p.OwnerID,
		Name:    p.Name,
		Email:   p.Email,
	}
}

func filterUsers(users []*models.User, keep func(*models.User) bool) []*models.User {
	kept := make([]*models.User, 0, len(users))
	for _, u := range users {
		if keep(u) {
			kept = append(kept, u)
		}
	}
	return kept
}
