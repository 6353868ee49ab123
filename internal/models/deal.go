package models

import (
	"time"

	"github.com/google/uuid"
)

// Deal stages that end a deal's lifecycle in the CRM's default pipeline.
const (
	DealStageClosedWon  = "closedwon"
	DealStageClosedLost = "closedlost"
)

// Deal is a CRM deal mirrored into the local store by the sync pipeline.
type Deal struct {
	DealID         uuid.UUID
	TenantID       uuid.UUID
	UserID         *uuid.UUID // owning user, nil when the owner was unknown at sync time
	CRMDealID      string     // unique per tenant
	OwnerID        string     // CRM owner id at sync time
	Name           string
	Amount         float64
	Stage          string
	CloseDate      *time.Time
	LastModifiedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReferenceDate is the close date if present, else the last-modified date,
// else the zero Unix epoch.
func (d *Deal) ReferenceDate() time.Time {
	if d.CloseDate != nil {
		return *d.CloseDate
	}
	if d.LastModifiedAt != nil {
		return *d.LastModifiedAt
	}
	return time.Unix(0, 0).UTC()
}

// IsOpen returns true while the deal is neither won nor lost.
func (d *Deal) IsOpen() bool {
	return d.Stage != DealStageClosedWon && d.Stage != DealStageClosedLost
}

// IsWon returns true if the deal closed as won.
func (d *Deal) IsWon() bool {
	return d.Stage == DealStageClosedWon
}
