// Package crmsync mirrors CRM owners and deals into the local stores.
package crmsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/salesboard/internal/crm"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
	"github.com/wolfeidau/salesboard/internal/telemetry"
)

// CRM is the subset of the CRM client the sync pipeline reads from.
type CRM interface {
	ListOwners(ctx context.Context, accessToken string) ([]crm.Owner, error)
	ListDeals(ctx context.Context, accessToken string, window crm.Window) ([]models.Deal, error)
}

// TokenSource returns a usable CRM access token for a tenant.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// Report summarizes one sync run.
type Report struct {
	TenantID         uuid.UUID `json:"tenant_id"`
	Owners           int       `json:"owners"`
	UsersCreated     int       `json:"users_created"`
	UsersUpdated     int       `json:"users_updated"`
	UsersDeactivated int       `json:"users_deactivated"`
	OwnersSkipped    int       `json:"owners_skipped"`
	DealsFetched     int       `json:"deals_fetched"`
	DealsCreated     int       `json:"deals_created"`
	DealsUpdated     int       `json:"deals_updated"`
	DealsSkipped     int       `json:"deals_skipped"`
	DealsPruned      int       `json:"deals_pruned"`
	Partial          bool      `json:"partial"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Syncer runs the owner and deal sync for a tenant.
type Syncer struct {
	tenants store.TenantStore
	users   store.UserStore
	deals   store.DealStore
	tokens  TokenSource
	crm     CRM
	now     func() time.Time
}

func New(stores store.Stores, tokens TokenSource, client CRM) *Syncer {
	return &Syncer{
		tenants: stores.Tenants,
		users:   stores.Users,
		deals:   stores.Deals,
		tokens:  tokens,
		crm:     client,
		now:     time.Now,
	}
}

// Run syncs owners into users, then mirrors the deals inside window. Deals
// whose owner matches no user are skipped. A user's role is never changed.
// An unbounded, complete run also removes mirrored deals the CRM no longer
// returns.
func (s *Syncer) Run(ctx context.Context, tenantID uuid.UUID, window crm.Window) (*Report, error) {
	report := &Report{TenantID: tenantID, StartedAt: s.now()}

	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}

	token, err := s.tokens.GetValidAccessToken(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	owners, err := s.crm.ListOwners(ctx, token)
	if err != nil {
		if !errors.Is(err, crm.ErrPartialResult) {
			return nil, fmt.Errorf("failed to list owners: %w", err)
		}
		report.Partial = true
	}
	report.Owners = len(owners)

	userByOwner, err := s.syncOwners(ctx, tenantID, owners, report)
	if err != nil {
		return nil, err
	}

	deals, err := s.crm.ListDeals(ctx, token, window)
	if err != nil {
		if !errors.Is(err, crm.ErrPartialResult) {
			return nil, fmt.Errorf("failed to list deals: %w", err)
		}
		report.Partial = true
	}
	report.DealsFetched = len(deals)

	mirrored, err := s.syncDeals(ctx, tenantID, deals, userByOwner, report)
	if err != nil {
		return nil, err
	}

	if window.Unbounded() && !report.Partial {
		pruned, err := s.deals.DeleteExcept(ctx, tenantID, mirrored)
		if err != nil {
			return nil, fmt.Errorf("failed to prune deals: %w", err)
		}
		report.DealsPruned = pruned
	}

	report.FinishedAt = s.now()

	log.Info().
		Str("tenant_id", tenantID.String()).
		Int("owners", report.Owners).
		Int("users_created", report.UsersCreated).
		Int("users_deactivated", report.UsersDeactivated).
		Int("deals_created", report.DealsCreated).
		Int("deals_updated", report.DealsUpdated).
		Int("deals_skipped", report.DealsSkipped).
		Int("deals_pruned", report.DealsPruned).
		Bool("partial", report.Partial).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("CRM sync completed")

	return report, nil
}

// syncOwners upserts one user per owner and returns the owner id to user id
// mapping. Users whose owner left the CRM are deactivated unless the owner
// list is partial.
func (s *Syncer) syncOwners(ctx context.Context, tenantID uuid.UUID, owners []crm.Owner, report *Report) (map[string]uuid.UUID, error) {
	users, err := s.users.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	byOwner := make(map[string]*models.User, len(users))
	byEmail := make(map[string]*models.User, len(users))
	for _, u := range users {
		if u.OwnerID != "" {
			byOwner[u.OwnerID] = u
		}
		byEmail[strings.ToLower(u.Email)] = u
	}

	now := s.now()
	userByOwner := make(map[string]uuid.UUID, len(owners))
	seen := make(map[uuid.UUID]struct{}, len(owners))

	for _, o := range owners {
		user, ok := byOwner[o.ID]
		if !ok && o.Email != "" {
			user, ok = byEmail[strings.ToLower(o.Email)]
		}

		if !ok {
			if o.Email == "" {
				log.Debug().Str("owner_id", o.ID).Msg("Skipping owner without email")
				report.OwnersSkipped++
				continue
			}

			user, err = s.createUser(ctx, tenantID, o, now)
			if err != nil {
				return nil, err
			}
			report.UsersCreated++
		} else if changed := applyOwner(user, o); changed {
			user.UpdatedAt = now
			if err := s.users.Update(ctx, user); err != nil {
				return nil, fmt.Errorf("failed to update user %s: %w", user.UserID, err)
			}
			report.UsersUpdated++
		}

		userByOwner[o.ID] = user.UserID
		seen[user.UserID] = struct{}{}
	}

	if report.Partial {
		return userByOwner, nil
	}

	for _, u := range users {
		if _, ok := seen[u.UserID]; ok || u.OwnerID == "" || !u.Active {
			continue
		}
		u.Active = false
		u.UpdatedAt = now
		if err := s.users.Update(ctx, u); err != nil {
			return nil, fmt.Errorf("failed to deactivate user %s: %w", u.UserID, err)
		}
		report.UsersDeactivated++
	}

	return userByOwner, nil
}

func (s *Syncer) createUser(ctx context.Context, tenantID uuid.UUID, o crm.Owner, now time.Time) (*models.User, error) {
	count, err := s.users.CountByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	role := models.RoleSalesRep
	if count == 0 {
		role = models.RoleAdmin
	}

	userID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	user := &models.User{
		UserID:    userID,
		TenantID:  tenantID,
		OwnerID:   o.ID,
		Email:     o.Email,
		Name:      o.Name(),
		Active:    true,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if o.UserID != 0 {
		user.CRMUserID = fmt.Sprint(o.UserID)
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user for owner %s: %w", o.ID, err)
	}

	return user, nil
}

// applyOwner copies owner fields onto an existing user and reports whether
// anything changed. Role is left alone.
func applyOwner(u *models.User, o crm.Owner) bool {
	changed := false
	if u.OwnerID != o.ID {
		u.OwnerID = o.ID
		changed = true
	}
	if name := o.Name(); name != "" && u.Name != name {
		u.Name = name
		changed = true
	}
	if !u.Active {
		u.Active = true
		changed = true
	}
	return changed
}

// syncDeals upserts the deals with a known owner and returns their CRM ids.
func (s *Syncer) syncDeals(ctx context.Context, tenantID uuid.UUID, deals []models.Deal, userByOwner map[string]uuid.UUID, report *Report) ([]string, error) {
	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("tenant_id", tenantID.String()))

	mirrored := make([]string, 0, len(deals))

	for i := range deals {
		deal := deals[i]

		userID, ok := userByOwner[deal.OwnerID]
		if deal.OwnerID == "" || !ok {
			report.DealsSkipped++
			continue
		}

		deal.TenantID = tenantID
		deal.UserID = &userID

		created, err := s.deals.Upsert(ctx, &deal)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert deal %s: %w", deal.CRMDealID, err)
		}
		mirrored = append(mirrored, deal.CRMDealID)
		if created {
			report.DealsCreated++
		} else {
			report.DealsUpdated++
		}
	}

	metrics.SyncDealsUpsertedTotal.Add(ctx, int64(report.DealsCreated+report.DealsUpdated), attrs)
	metrics.SyncDealsSkippedTotal.Add(ctx, int64(report.DealsSkipped), attrs)

	return mirrored, nil
}
