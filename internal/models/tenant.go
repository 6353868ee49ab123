package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents one customer organization, backed by exactly one CRM portal.
type Tenant struct {
	TenantID  uuid.UUID // UUIDv7
	PortalID  int64     // CRM portal (hub) id, unique
	Name      string    // Company name
	Domain    string    // Portal domain reported by the CRM
	CreatedAt time.Time
	UpdatedAt time.Time
}
