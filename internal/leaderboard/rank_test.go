package leaderboard

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRank(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   []int
	}{
		{name: "ties share rank", scores: []float64{500, 500, 300, 100}, want: []int{1, 1, 3, 4}},
		{name: "unsorted input", scores: []float64{100, 500, 300, 500}, want: []int{1, 1, 3, 4}},
		{name: "all tied", scores: []float64{7, 7, 7}, want: []int{1, 1, 1}},
		{name: "trailing tie", scores: []float64{9, 5, 5}, want: []int{1, 2, 2}},
		{name: "zeros", scores: []float64{0, 3, 0}, want: []int{1, 2, 2}},
		{name: "single", scores: []float64{1}, want: []int{1}},
		{name: "empty", scores: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entries []Entry
			for _, s := range tt.scores {
				entries = append(entries, Entry{UserID: uuid.New(), Score: s})
			}

			Rank(entries)

			var ranks []int
			for i, e := range entries {
				ranks = append(ranks, e.Rank)
				if i > 0 {
					require.GreaterOrEqual(t, entries[i-1].Score, e.Score)
				}
			}
			require.Equal(t, tt.want, ranks)
		})
	}
}

func TestRankOrdersTiesByName(t *testing.T) {
	entries := []Entry{
		{UserID: uuid.New(), Name: "zoe", Score: 10},
		{UserID: uuid.New(), Name: "Amy", Score: 10},
		{UserID: uuid.New(), Name: "bob", Score: 20},
	}

	Rank(entries)

	require.Equal(t, []string{"bob", "Amy", "zoe"}, []string{entries[0].Name, entries[1].Name, entries[2].Name})
	require.Equal(t, []int{1, 2, 2}, []int{entries[0].Rank, entries[1].Rank, entries[2].Rank})
}
