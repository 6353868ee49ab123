package memory

import "github.com/wolfeidau/salesboard/internal/store"

// NewStores returns a full set of in-memory stores.
func NewStores() store.Stores {
	return store.Stores{
		Tenants:     NewTenantStore(),
		Users:       NewUserStore(),
		Teams:       NewTeamStore(),
		Deals:       NewDealStore(),
		Tokens:      NewTokenStore(),
		SessionKeys: NewSessionKeyStore(),
	}
}
