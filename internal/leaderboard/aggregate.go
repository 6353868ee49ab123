package leaderboard

import (
	"github.com/google/uuid"
	"github.com/wolfeidau/salesboard/internal/models"
)

// Participant is an active user eligible to appear on a leaderboard.
type Participant struct {
	UserID  uuid.UUID
	OwnerID string
	Name    string
	Email   string
}

// Rule describes how records of type R fold into a per-user value of type A.
type Rule[R, A any] struct {
	// OwnerOf returns the CRM owner id a record belongs to.
	OwnerOf func(R) string
	// Merge folds one record into the accumulator.
	Merge func(acc *A, rec R)
	// KeepEmpty keeps participants that matched no record.
	KeepEmpty bool
}

// Aggregated is one participant's folded value.
type Aggregated[A any] struct {
	Participant Participant
	Value       A
	Matched     int
}

// Aggregate seeds one entry per participant, resolves each record's owner to
// a participant and merges it. Records with an unknown owner are discarded.
func Aggregate[R, A any](participants []Participant, records []R, rule Rule[R, A]) []Aggregated[A] {
	entries := make([]Aggregated[A], len(participants))
	byOwner := make(map[string]int, len(participants))
	for i, p := range participants {
		entries[i].Participant = p
		if p.OwnerID != "" {
			byOwner[p.OwnerID] = i
		}
	}

	for _, rec := range records {
		i, ok := byOwner[rule.OwnerOf(rec)]
		if !ok {
			continue
		}
		rule.Merge(&entries[i].Value, rec)
		entries[i].Matched++
	}

	if rule.KeepEmpty {
		return entries
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.Matched > 0 {
			kept = append(kept, e)
		}
	}
	return kept
}

// LargestDeal keeps each participant's biggest deal. On an exact amount tie
// the deal with the more recent reference date wins.
func LargestDeal() Rule[models.Deal, *models.Deal] {
	return Rule[models.Deal, *models.Deal]{
		OwnerOf: func(d models.Deal) string { return d.OwnerID },
		Merge: func(best **models.Deal, d models.Deal) {
			switch {
			case *best == nil,
				d.Amount > (*best).Amount,
				d.Amount == (*best).Amount && d.ReferenceDate().After((*best).ReferenceDate()):
				deal := d
				*best = &deal
			}
		},
	}
}

// ActivityCounts holds per-kind activity counters for one participant.
type ActivityCounts struct {
	Meetings int `json:"meetings"`
	Calls    int `json:"calls"`
	Emails   int `json:"emails"`
	Total    int `json:"total"`
}

// Add counts one activity.
func (c *ActivityCounts) Add(kind models.ActivityKind) {
	switch kind {
	case models.ActivityMeeting:
		c.Meetings++
	case models.ActivityCall:
		c.Calls++
	case models.ActivityEmail:
		c.Emails++
	default:
		return
	}
	c.Total++
}

// ActivityTotals counts activities per kind and keeps participants with no activity.
func ActivityTotals() Rule[models.Activity, ActivityCounts] {
	return Rule[models.Activity, ActivityCounts]{
		OwnerOf:   func(a models.Activity) string { return a.OwnerID },
		Merge:     func(c *ActivityCounts, a models.Activity) { c.Add(a.Kind) },
		KeepEmpty: true,
	}
}
