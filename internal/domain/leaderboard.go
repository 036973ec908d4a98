package domain

import (
	"cmp"
	"context"
	"slices"
)

// MaxLeaderboardSize caps TopN requests.
const MaxLeaderboardSize = 100

// RankingSource returns committed records in ranking order. Implementations
// may return more than limit entries when ties straddle the cut.
type RankingSource interface {
	TopRecords(ctx context.Context, limit int) ([]Record, error)
}

// Leaderboard is the read-only ranked projection over all records.
type Leaderboard struct {
	source RankingSource
}

// NewLeaderboard constructs a Leaderboard over source.
func NewLeaderboard(source RankingSource) *Leaderboard {
	return &Leaderboard{source: source}
}

// TopN returns up to n records ordered by level desc, xp desc, user id asc.
// n above MaxLeaderboardSize is clamped.
func (l *Leaderboard) TopN(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return nil, ErrInvalidLimit
	}
	if n > MaxLeaderboardSize {
		n = MaxLeaderboardSize
	}

	records, err := l.source.TopRecords(ctx, n)
	if err != nil {
		return nil, err
	}
	SortRanking(records)
	if len(records) > n {
		records = records[:n]
	}
	return records, nil
}

// CompareRank orders a before b when a ranks higher.
func CompareRank(a, b Record) int {
	if c := cmp.Compare(b.Level, a.Level); c != 0 {
		return c
	}
	if c := cmp.Compare(b.XP, a.XP); c != 0 {
		return c
	}
	return cmp.Compare(a.UserID, b.UserID)
}

// SortRanking sorts records in place into leaderboard order.
func SortRanking(records []Record) {
	slices.SortFunc(records, CompareRank)
}
