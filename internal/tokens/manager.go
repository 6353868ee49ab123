// Package tokens keeps each tenant's CRM OAuth token pair usable, refreshing
// it lazily through the refresh-token grant.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
	"github.com/wolfeidau/salesboard/internal/telemetry"
)

const (
	// DefaultExpirySkew refreshes tokens slightly before they expire.
	DefaultExpirySkew = time.Minute

	// DefaultRefreshTimeout bounds a shared refresh, which outlives the
	// request that started it.
	DefaultRefreshTimeout = 30 * time.Second
)

var (
	ErrNoTokenFound  = errors.New("no oauth token found for tenant")
	ErrRefreshFailed = errors.New("oauth token refresh failed")
)

// Manager hands out valid access tokens per tenant.
type Manager struct {
	oauth      *oauth2.Config
	store      store.TokenStore
	httpClient *http.Client
	skew       time.Duration
	timeout    time.Duration
	now        func() time.Time
	refreshes  singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used to talk to the token endpoint.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) { m.httpClient = hc }
}

// WithExpirySkew overrides DefaultExpirySkew.
func WithExpirySkew(d time.Duration) Option {
	return func(m *Manager) { m.skew = d }
}

// WithRefreshTimeout overrides DefaultRefreshTimeout.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithClock overrides time.Now, used in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a token manager.
func NewManager(cfg *oauth2.Config, tokenStore store.TokenStore, opts ...Option) *Manager {
	m := &Manager{
		oauth:   cfg,
		store:   tokenStore,
		skew:    DefaultExpirySkew,
		timeout: DefaultRefreshTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetValidAccessToken returns a bearer token for the tenant, refreshing and
// persisting a new pair when the stored one has expired.
func (m *Manager) GetValidAccessToken(ctx context.Context, tenantID uuid.UUID) (string, error) {
	stored, err := m.store.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return "", ErrNoTokenFound
		}
		return "", fmt.Errorf("failed to load oauth token: %w", err)
	}

	if !stored.ExpiredAt(m.now(), m.skew) {
		return stored.AccessToken, nil
	}

	// Concurrent requests for the same tenant share one refresh. It runs
	// detached from the caller so a cancelled request does not fail the
	// others waiting on it.
	ch := m.refreshes.DoChan(tenantID.String(), func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return m.refresh(refreshCtx, stored)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(*models.OAuthToken).AccessToken, nil
	}
}

func (m *Manager) refresh(ctx context.Context, stored *models.OAuthToken) (*models.OAuthToken, error) {
	log.Debug().
		Str("tenant_id", stored.TenantID.String()).
		Time("expired_at", stored.ExpiresAt).
		Msg("Refreshing oauth token")

	if stored.RefreshToken == "" {
		m.recordRefresh(ctx, "failed")
		return nil, fmt.Errorf("%w: no refresh token stored", ErrRefreshFailed)
	}

	// An expiry in the past forces the token source to use the refresh grant.
	src := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{
		RefreshToken: stored.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})

	token, err := src.Token()
	if err != nil {
		m.recordRefresh(ctx, "failed")
		log.Warn().Err(err).Str("tenant_id", stored.TenantID.String()).Msg("OAuth token refresh rejected")
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	saved, err := m.Save(ctx, stored.TenantID, token)
	if err != nil {
		m.recordRefresh(ctx, "failed")
		return nil, err
	}

	m.recordRefresh(ctx, "ok")
	log.Info().Str("tenant_id", stored.TenantID.String()).Msg("Refreshed oauth token")

	return saved, nil
}

// Save persists a token pair for a tenant. A token without a refresh token
// keeps the previously stored one.
func (m *Manager) Save(ctx context.Context, tenantID uuid.UUID, token *oauth2.Token) (*models.OAuthToken, error) {
	record := &models.OAuthToken{
		TenantID:     tenantID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		ExpiresAt:    token.Expiry,
		UpdatedAt:    m.now(),
	}

	if record.RefreshToken == "" {
		existing, err := m.store.Get(ctx, tenantID)
		if err != nil && !errors.Is(err, store.ErrTokenNotFound) {
			return nil, fmt.Errorf("failed to load oauth token: %w", err)
		}
		if existing != nil {
			record.RefreshToken = existing.RefreshToken
		}
	}

	if err := m.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store oauth token: %w", err)
	}

	return record, nil
}

// Exchange trades an authorization code for a token pair.
func (m *Manager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := m.oauth.Exchange(m.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// AuthCodeURL returns the provider's consent page URL for state.
func (m *Manager) AuthCodeURL(state string) string {
	return m.oauth.AuthCodeURL(state)
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func (m *Manager) recordRefresh(ctx context.Context, result string) {
	telemetry.GetMetrics().TokenRefreshesTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)))
}
