package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/progression/internal/domain"
)

func TestRepositoryVersionChecks(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	rec := domain.NewRecord("user-1", time.Now())
	rec.Version = 1

	_, err := repo.Get(ctx, "user-1")
	require.ErrorIs(t, err, domain.ErrRecordNotFound)

	require.NoError(t, repo.Insert(ctx, rec, nil, ""))
	require.ErrorIs(t, repo.Insert(ctx, rec, nil, ""), domain.ErrVersionConflict)

	next := rec.Clone()
	next.XP = 40
	next.Version = 2
	require.ErrorIs(t, repo.Update(ctx, next, 0, nil, ""), domain.ErrVersionConflict)
	require.NoError(t, repo.Update(ctx, next, 1, []domain.Event{{ID: "e1"}}, ""))
	require.ErrorIs(t, repo.Update(ctx, next, 1, nil, ""), domain.ErrVersionConflict)

	got, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 40, got.XP)
	require.Len(t, repo.Events(), 1)

	got.Achievements = append(got.Achievements, domain.Achievement{AchievementID: "leak"})
	again, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, again.Achievements)
}

func TestRepositoryIdempotencyKeys(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	rec := domain.NewRecord("user-1", time.Now())
	rec.Version = 1
	require.NoError(t, repo.Insert(ctx, rec, nil, "a-1"))

	next := rec.Clone()
	next.Version = 2
	require.ErrorIs(t, repo.Update(ctx, next, 1, nil, "a-1"), domain.ErrAlreadyApplied)
	require.NoError(t, repo.Update(ctx, next, 1, nil, "a-2"))

	next.Version = 3
	require.NoError(t, repo.Update(ctx, next, 2, nil, ""))

	other := domain.NewRecord("user-2", time.Now())
	other.Version = 1
	require.NoError(t, repo.Insert(ctx, other, nil, "a-1"), "keys are scoped per user")
}

func TestRepositoryTopRecords(t *testing.T) {
	repo := NewRepository()
	repo.Put(domain.Record{UserID: "b", Level: 2, XP: 10})
	repo.Put(domain.Record{UserID: "a", Level: 2, XP: 10})
	repo.Put(domain.Record{UserID: "c", Level: 4})

	top, err := repo.TopRecords(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "c", top[0].UserID)
	require.Equal(t, "a", top[1].UserID)
}

func TestCounterResetterIgnoresOlderDays(t *testing.T) {
	ctx := context.Background()
	c := NewCounterResetter()
	day := domain.NewDay(2025, time.March, 10)

	c.Add("u", 3)
	require.NoError(t, c.ResetDaily(ctx, day))
	require.Zero(t, c.Value("u"))

	c.Add("u", 5)
	require.NoError(t, c.ResetDaily(ctx, day))
	require.NoError(t, c.ResetDaily(ctx, day.AddDays(-1)))
	require.Equal(t, 5, c.Value("u"))
	require.Equal(t, 1, c.Resets())

	log := &ResetLog{}
	require.NoError(t, log.MarkReset(ctx, day))
	require.NoError(t, log.MarkReset(ctx, day.AddDays(-3)))
	last, err := log.LastReset(ctx)
	require.NoError(t, err)
	require.True(t, last.Equal(day))
}
