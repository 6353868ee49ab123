package leaderboard

import (
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/salesboard/internal/models"
)

// Kind names a leaderboard.
type Kind string

const (
	KindDeals    Kind = "deals"
	KindActivity Kind = "activity"
)

// Entry is one ranked row.
type Entry struct {
	Rank    int       `json:"rank"`
	UserID  uuid.UUID `json:"user_id"`
	OwnerID string    `json:"owner_id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Score   float64   `json:"score"`

	Deal     *DealSummary    `json:"deal,omitempty"`
	Activity *ActivityStats  `json:"activity,omitempty"`
	LastWeek *ActivityCounts `json:"last_week,omitempty"`
	Delta    *int            `json:"delta,omitempty"`
}

// DealSummary describes the deal behind a deal leaderboard entry.
type DealSummary struct {
	CRMDealID     string    `json:"crm_deal_id"`
	Name          string    `json:"name"`
	Amount        float64   `json:"amount"`
	Stage         string    `json:"stage"`
	ReferenceDate time.Time `json:"reference_date"`
}

func summarizeDeal(d *models.Deal) *DealSummary {
	return &DealSummary{
		CRMDealID:     d.CRMDealID,
		Name:          d.Name,
		Amount:        d.Amount,
		Stage:         d.Stage,
		ReferenceDate: d.ReferenceDate(),
	}
}

// ActivityStats extends the counters with the open deal ratio.
type ActivityStats struct {
	ActivityCounts
	OpenDeals int `json:"open_deals"`
	// Ratio is activities per open deal as a rounded percentage, 0 without open deals.
	Ratio int `json:"ratio"`
}

// Summary backs the cards shown above a leaderboard.
type Summary struct {
	Leader       *Entry  `json:"leader,omitempty"`
	TiedForFirst int     `json:"tied_for_first"`
	Participants int     `json:"participants"`
	TotalScore   float64 `json:"total_score"`
	Me           *Entry  `json:"me,omitempty"`
}

// Board is a ranked leaderboard.
type Board struct {
	Kind         Kind      `json:"kind"`
	FullList     []Entry   `json:"full_list"`
	TotalEntries int       `json:"total_entries"`
	Summary      Summary   `json:"summary"`
	Partial      bool      `json:"partial"`
	WindowStart  time.Time `json:"window_start,omitzero"`
	WindowEnd    time.Time `json:"window_end,omitzero"`
	GeneratedAt  time.Time `json:"generated_at"`
}

func newBoard(kind Kind, entries []Entry, now time.Time) *Board {
	if entries == nil {
		entries = []Entry{}
	}
	Rank(entries)

	b := &Board{
		Kind:         kind,
		FullList:     entries,
		TotalEntries: len(entries),
		GeneratedAt:  now,
	}
	b.Summary = summarize(entries)
	return b
}

func summarize(entries []Entry) Summary {
	s := Summary{Participants: len(entries)}
	for i := range entries {
		s.TotalScore += entries[i].Score
		if entries[i].Rank == 1 {
			s.TiedForFirst++
		}
	}
	if len(entries) > 0 {
		leader := entries[0]
		s.Leader = &leader
	}
	return s
}

// EntryFor returns the entry of a user, if present.
func (b *Board) EntryFor(userID uuid.UUID) *Entry {
	for i := range b.FullList {
		if b.FullList[i].UserID == userID {
			entry := b.FullList[i]
			return &entry
		}
	}
	return nil
}

// WithViewer fills Summary.Me for the given user.
func (b *Board) WithViewer(userID uuid.UUID) *Board {
	b.Summary.Me = b.EntryFor(userID)
	return b
}
