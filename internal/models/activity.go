package models

import "time"

// ActivityKind names the CRM engagement object an activity came from.
type ActivityKind string

const (
	ActivityMeeting ActivityKind = "meetings"
	ActivityCall    ActivityKind = "calls"
	ActivityEmail   ActivityKind = "emails"
)

// ActivityKinds lists every kind counted by the activity leaderboard.
var ActivityKinds = []ActivityKind{ActivityMeeting, ActivityCall, ActivityEmail}

// Activity is a meeting, call or email fetched live from the CRM. Activities
// are never persisted.
type Activity struct {
	ID        string
	Kind      ActivityKind
	OwnerID   string
	Timestamp time.Time
}
