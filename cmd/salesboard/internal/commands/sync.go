package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/salesboard/internal/config"
	"github.com/wolfeidau/salesboard/internal/crm"
	"github.com/wolfeidau/salesboard/internal/crmsync"
	"github.com/wolfeidau/salesboard/internal/logger"
	"github.com/wolfeidau/salesboard/internal/tokens"
)

type SyncCmd struct {
	TenantID string        `help:"tenant to sync" required:"" env:"SALESBOARD_SYNC_TENANT_ID"`
	Since    time.Duration `help:"only mirror deals modified within this duration, all deals when zero" default:"0s"`
	Policy   string        `help:"YAML retry policy file" default:"" env:"SALESBOARD_POLICY" type:"path"`

	HubSpot HubSpotFlags `embed:"" prefix:"hubspot-"`
	Store   StoreFlags   `embed:""`
}

func (c *SyncCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant id %q: %w", c.TenantID, err)
	}

	if c.Store.StoreType != "postgres" {
		return errors.New("sync needs a persistent store (--store-type postgres)")
	}

	if err := c.HubSpot.Validate(); err != nil {
		return err
	}

	policies, err := config.LoadPolicies(c.Policy)
	if err != nil {
		return err
	}

	stores, _, closeStores, err := c.Store.openStores(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	tokenManager := tokens.NewManager(c.HubSpot.oauthConfig(), stores.Tokens,
		tokens.WithHTTPClient(&http.Client{Timeout: c.HubSpot.Timeout}))
	client := c.HubSpot.crmClient(c.HubSpot.httpClient(false), policies.Sync)

	window := crm.All
	if c.Since > 0 {
		window.Start = time.Now().Add(-c.Since)
	}

	log.Info().Str("tenant_id", tenantID.String()).Time("since", window.Start).Msg("Starting CRM sync")

	report, err := crmsync.New(stores, tokenManager, client).Run(ctx, tenantID, window)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
