package models

import "time"

// SessionKey is a short-lived, single-use pointer to a signed session credential.
// It is handed to the login popup and redeemed once by the opener window.
type SessionKey struct {
	Key        string // base58, this is the only value the browser sees
	Credential string // signed session token
	CreatedAt  time.Time
	ExpiresAt  time.Time

	// Optional audit metadata
	IPAddress string
}

// IsExpired returns true if the key can no longer be redeemed at now.
func (k *SessionKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}
