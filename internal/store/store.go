package store

import (
	"context"
	"errors"
)

// Sentinel errors shared by every store implementation.
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrTeamNotFound        = errors.New("team not found")
	ErrTokenNotFound       = errors.New("oauth token not found")
	ErrSessionKeyNotFound  = errors.New("session key not found")
	ErrSessionKeyExpired   = errors.New("session key expired")
)

// Stores groups every store the service needs so they can be passed around together.
type Stores struct {
	Tenants     TenantStore
	Users       UserStore
	Teams       TeamStore
	Deals       DealStore
	Tokens      TokenStore
	SessionKeys SessionKeyStore
}

// Validate returns an error if any store is missing.
func (s Stores) Validate() error {
	if s.Tenants == nil || s.Users == nil || s.Teams == nil ||
		s.Deals == nil || s.Tokens == nil || s.SessionKeys == nil {
		return errors.New("all stores (tenants, users, teams, deals, tokens, session keys) are required")
	}
	return nil
}

// Pinger is implemented by stores backed by a remote database.
type Pinger interface {
	Ping(ctx context.Context) error
}
