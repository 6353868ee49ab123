package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/wolfeidau/salesboard/internal/client"
	"github.com/wolfeidau/salesboard/internal/crm"
	"github.com/wolfeidau/salesboard/internal/retry"
	"github.com/wolfeidau/salesboard/internal/store"
	memorystore "github.com/wolfeidau/salesboard/internal/store/memory"
	postgresstore "github.com/wolfeidau/salesboard/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	// Create HTTP server
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      2 * time.Minute, // activity boards fan out to the CRM
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// StoreFlags selects and configures the persistence backend.
type StoreFlags struct {
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"SALESBOARD_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"SALESBOARD_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) poolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      s.ConnString,
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		MaxConnLifetime: s.MaxConnLifetime,
		MaxConnIdleTime: s.MaxConnIdleTime,
	}
}

// openStores returns the configured stores, an optional health pinger and a
// close function.
func (s *StoreFlags) openStores(ctx context.Context) (store.Stores, store.Pinger, func(), error) {
	switch s.StoreType {
	case "postgres":
		if err := s.PostgresStore.Validate(); err != nil {
			return store.Stores{}, nil, nil, fmt.Errorf("failed to validate postgres flags: %w", err)
		}

		pool, err := postgresstore.NewPool(ctx, s.PostgresStore.poolConfig())
		if err != nil {
			return store.Stores{}, nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}

		if s.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return store.Stores{}, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		log.Info().Msg("Using PostgreSQL stores")
		return postgresstore.NewStores(pool), postgresstore.NewHealth(pool), pool.Close, nil

	default:
		log.Info().Msg("Using in-memory stores")
		return memorystore.NewStores(), nil, func() {}, nil
	}
}

// HubSpotFlags configures the OAuth app and the CRM client.
type HubSpotFlags struct {
	ClientID     string        `help:"HubSpot app client ID" default:"" env:"SALESBOARD_HUBSPOT_CLIENT_ID"`
	ClientSecret string        `help:"HubSpot app client secret" default:"" env:"SALESBOARD_HUBSPOT_CLIENT_SECRET"`
	RedirectURL  string        `help:"OAuth redirect URL registered with the HubSpot app" default:"" env:"SALESBOARD_HUBSPOT_REDIRECT_URL"`
	Scopes       []string      `help:"OAuth scopes to request" env:"SALESBOARD_HUBSPOT_SCOPES"`
	APIBaseURL   string        `help:"CRM API base URL" default:"https://api.hubapi.com" env:"SALESBOARD_HUBSPOT_API_BASE_URL"`
	PageSize     int           `help:"records requested per CRM page" default:"100" env:"SALESBOARD_HUBSPOT_PAGE_SIZE"`
	Timeout      time.Duration `help:"timeout for each CRM request" default:"30s" env:"SALESBOARD_HUBSPOT_TIMEOUT"`
	CacheDir     string        `help:"directory for the CRM HTTP cache, in memory when empty" default:"" env:"SALESBOARD_HUBSPOT_CACHE_DIR"`
}

func (h *HubSpotFlags) Validate() error {
	if h.ClientID == "" || h.ClientSecret == "" {
		return errors.New("HubSpot client ID and secret are required (--hubspot-client-id, --hubspot-client-secret)")
	}
	return nil
}

func (h *HubSpotFlags) oauthConfig() *oauth2.Config {
	return crm.NewOAuthConfig(h.ClientID, h.ClientSecret, h.RedirectURL, h.Scopes)
}

func (h *HubSpotFlags) httpClient(tracing bool) *http.Client {
	return client.NewCachingHTTPClient(client.Config{
		Timeout:  h.Timeout,
		CacheDir: h.CacheDir,
		Tracing:  tracing,
	})
}

func (h *HubSpotFlags) crmClient(hc *http.Client, policy retry.Policy) *crm.Client {
	return crm.NewClient(
		crm.WithHTTPClient(hc),
		crm.WithBaseURL(h.APIBaseURL),
		crm.WithPageSize(h.PageSize),
		crm.WithPolicy(policy),
	)
}
