package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type staticRanking struct {
	records []Record
	err     error
	limit   int
}

func (s *staticRanking) TopRecords(_ context.Context, limit int) ([]Record, error) {
	s.limit = limit
	return append([]Record(nil), s.records...), s.err
}

func TestLeaderboardOrdering(t *testing.T) {
	source := &staticRanking{records: []Record{
		{UserID: "c", Level: 3, XP: 50},
		{UserID: "a", Level: 5, XP: 10},
		{UserID: "b", Level: 3, XP: 80},
	}}

	top, err := NewLeaderboard(source).TopN(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, userIDs(top))
}

func TestLeaderboardTieBreaksOnUserID(t *testing.T) {
	source := &staticRanking{records: []Record{
		{UserID: "zed", Level: 2, XP: 40},
		{UserID: "amy", Level: 2, XP: 40},
		{UserID: "max", Level: 2, XP: 40},
	}}

	top, err := NewLeaderboard(source).TopN(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, []string{"amy", "max"}, userIDs(top))
}

func TestLeaderboardLimits(t *testing.T) {
	source := &staticRanking{}
	board := NewLeaderboard(source)

	_, err := board.TopN(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidLimit)

	_, err = board.TopN(context.Background(), 1000)
	require.NoError(t, err)
	require.Equal(t, MaxLeaderboardSize, source.limit)
}

func TestLeaderboardPropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewLeaderboard(&staticRanking{err: boom}).TopN(context.Background(), 5)
	require.ErrorIs(t, err, boom)
}

func userIDs(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.UserID)
	}
	return out
}
