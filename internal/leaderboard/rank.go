package leaderboard

import (
	"cmp"
	"slices"
	"strings"
)

// Rank sorts entries by score descending, then name and user id, and assigns
// competition ranks: equal scores share a rank and the next distinct score
// takes its 1-based position, so [500 500 300 100] ranks [1 1 3 4].
func Rank(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.UserID.String(), b.UserID.String())
	})

	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
