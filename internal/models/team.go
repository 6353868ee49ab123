package models

import (
	"time"

	"github.com/google/uuid"
)

// Team groups users of a tenant. Membership is many-to-many.
type Team struct {
	TeamID    uuid.UUID
	TenantID  uuid.UUID
	Name      string
	MemberIDs []uuid.UUID // user ids
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasMember reports whether userID belongs to the team.
func (t *Team) HasMember(userID uuid.UUID) bool {
	for _, id := range t.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
