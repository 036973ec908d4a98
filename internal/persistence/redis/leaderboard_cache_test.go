package redis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/persistence/memory"
)

func TestScoreOrdersLevelBeforeXP(t *testing.T) {
	require.Greater(t, score(3, 0), score(2, 199))
	require.Greater(t, score(2, 41), score(2, 40))
	require.Equal(t, score(5, 10), score(5, 10))
}

func TestEntryRoundTripKeepsRankFields(t *testing.T) {
	rec := domain.Record{UserID: "u", Level: 4, XP: 12, TotalWorkouts: 9, CurrentStreak: 2, LongestStreak: 5, Version: 11}
	got := entryFromRecord(rec).record()
	require.Equal(t, rec.UserID, got.UserID)
	require.Equal(t, rec.Level, got.Level)
	require.Equal(t, rec.XP, got.XP)
	require.Equal(t, rec.Version, got.Version)
	require.Equal(t, 0, domain.CompareRank(rec, got))
}

func TestTopRecordsFallsBackWhenRedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	repo := memory.NewRepository()
	repo.Put(domain.Record{UserID: "b", Level: 2})
	repo.Put(domain.Record{UserID: "a", Level: 3})

	cache := NewLeaderboardCache(client, repo)
	top, err := domain.NewLeaderboard(cache).TopN(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "a", top[0].UserID)

	require.Error(t, cache.RecordCommitted(context.Background(), domain.Record{UserID: "a", Level: 3, Version: 2}))
}
