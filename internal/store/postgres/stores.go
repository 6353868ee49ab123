package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/salesboard/internal/store"
)

// NewStores returns a full set of PostgreSQL stores sharing one pool.
func NewStores(pool *pgxpool.Pool) store.Stores {
	return store.Stores{
		Tenants:     NewTenantStore(pool),
		Users:       NewUserStore(pool),
		Teams:       NewTeamStore(pool),
		Deals:       NewDealStore(pool),
		Tokens:      NewTokenStore(pool),
		SessionKeys: NewSessionKeyStore(pool),
	}
}

// Health pings the pool. It satisfies store.Pinger.
type Health struct {
	pool *pgxpool.Pool
}

// NewHealth creates a pool health checker.
func NewHealth(pool *pgxpool.Pool) *Health {
	return &Health{pool: pool}
}

// Ping verifies the database is reachable.
func (h *Health) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}
