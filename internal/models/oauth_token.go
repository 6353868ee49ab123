package models

import (
	"time"

	"github.com/google/uuid"
)

// OAuthToken is the CRM token pair held for a tenant. There is at most one per tenant.
type OAuthToken struct {
	TenantID     uuid.UUID
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// ExpiredAt reports whether the access token should be treated as expired at
// now, allowing for skew.
func (t *OAuthToken) ExpiredAt(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(t.ExpiresAt)
}
