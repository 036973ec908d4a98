//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/progression/internal/domain"
	"example.com/progression/pkg/events"
)

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("progression"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations must be re-runnable")
	return pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}

func TestRepositoryVersionedWrites(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	_, err := repo.Get(ctx, "user-1")
	require.ErrorIs(t, err, domain.ErrRecordNotFound)

	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := domain.NewRecord("user-1", now)
	rec.Version = 1
	require.NoError(t, repo.Insert(ctx, rec, nil, ""))
	require.ErrorIs(t, repo.Insert(ctx, rec, nil, ""), domain.ErrVersionConflict)

	day := domain.NewDay(2025, time.March, 10)
	next := rec.Clone()
	next.XP = 60
	next.TotalWorkouts = 1
	next.CurrentStreak, next.LongestStreak, next.LastActivityDate = 1, 1, &day
	next.Achievements = append(next.Achievements, domain.Achievement{AchievementID: "first-workout", Name: "First Workout", Points: 10, UnlockedAt: now})
	next.Version = 2

	require.ErrorIs(t, repo.Update(ctx, next, 5, nil, ""), domain.ErrVersionConflict)
	require.NoError(t, repo.Update(ctx, next, 1, nil, ""))

	stored, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, stored.Version)
	require.Equal(t, 60, stored.XP)
	require.NotNil(t, stored.LastActivityDate)
	require.True(t, stored.LastActivityDate.Equal(day))
	require.Len(t, stored.Achievements, 1)
	require.Equal(t, "first-workout", stored.Achievements[0].AchievementID)
	require.True(t, stored.Achievements[0].UnlockedAt.Equal(now))
}

func TestRepositoryWritesOutboxInSameTransaction(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	rec := domain.NewRecord("user-1", time.Now().UTC())
	rec.Version = 1
	evt := domain.Event{
		ID:      "evt-1",
		Type:    events.TypeLevelUp,
		UserID:  "user-1",
		Payload: events.LevelUp{EventID: "evt-1", UserID: "user-1", PreviousLevel: 1, NewLevel: 2, LevelsGained: 1},
	}
	require.NoError(t, repo.Insert(ctx, rec, []domain.Event{evt}, ""))

	var topic, key string
	require.NoError(t, pool.QueryRow(ctx, `SELECT topic, partition_key FROM outbox WHERE event_type=$1`, events.TypeLevelUp).Scan(&topic, &key))
	require.Equal(t, "progression_level_ups", topic)
	require.Equal(t, "user-1", key)

	// A rejected conditional write must not leave outbox rows behind.
	require.ErrorIs(t, repo.Update(ctx, rec, 9, []domain.Event{{ID: "evt-2", Type: events.TypeLevelUp, UserID: "user-1", Payload: evt.Payload}}, ""), domain.ErrVersionConflict)
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestServiceConcurrentWorkoutsOnPostgres(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	svc := domain.NewService(NewRepository(pool), domain.WithRetryPolicy(50, 5*time.Millisecond))

	const workers = 6
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.OnWorkoutLogged(ctx, domain.WorkoutLogged{UserID: "user-1", CaloriesBurned: 10})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := svc.Stats(ctx, "user-1")
	require.NoError(t, err)
	// 300 XP: 100 to reach level 2, 200 to reach level 3.
	require.Equal(t, 3, rec.Level)
	require.Equal(t, 0, rec.XP)
	require.EqualValues(t, workers, rec.TotalWorkouts)
	require.EqualValues(t, workers, rec.Version)
}

func TestTopRecordsOrdering(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	for _, r := range []domain.Record{
		{UserID: "bob", Level: 2, XP: 40},
		{UserID: "amy", Level: 2, XP: 40},
		{UserID: "cat", Level: 3, XP: 0},
		{UserID: "dan", Level: 1, XP: 99},
	} {
		rec := domain.NewRecord(r.UserID, time.Now().UTC())
		rec.Level, rec.XP, rec.Version = r.Level, r.XP, 1
		require.NoError(t, repo.Insert(ctx, rec, nil, ""))
	}

	top, err := domain.NewLeaderboard(repo).TopN(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	require.Equal(t, "cat", top[0].UserID)
	require.Equal(t, "amy", top[1].UserID)
	require.Equal(t, "bob", top[2].UserID)
}

func TestTopRecordsTieBreakUsesByteOrder(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	// Linguistic collations sort "amy" before "Bob"; byte order does not.
	records := make([]domain.Record, 0, 3)
	for _, id := range []string{"amy", "Bob", "carl"} {
		rec := domain.NewRecord(id, time.Now().UTC())
		rec.Level, rec.XP, rec.Version = 2, 40, 1
		require.NoError(t, repo.Insert(ctx, rec, nil, ""))
		records = append(records, rec)
	}
	domain.SortRanking(records)

	top, err := repo.TopRecords(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "Bob", top[0].UserID)
	require.Equal(t, records[0].UserID, top[0].UserID)
	require.Equal(t, records[1].UserID, top[1].UserID)
}

func TestServiceReplayedWorkoutOnPostgres(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	svc := domain.NewService(NewRepository(pool), domain.WithRetryPolicy(50, 5*time.Millisecond))

	const deliveries = 4
	var wg sync.WaitGroup
	outs := make([]*domain.Outcome, deliveries)
	errs := make([]error, deliveries)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = svc.OnWorkoutLogged(ctx, domain.WorkoutLogged{UserID: "user-1", CaloriesBurned: 400, IdempotencyKey: "a-1"})
		}(i)
	}
	wg.Wait()

	applied := 0
	for i, err := range errs {
		require.NoError(t, err)
		if !outs[i].Replayed {
			applied++
		}
	}
	require.Equal(t, 1, applied)

	rec, err := svc.Stats(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, rec.TotalWorkouts)
	require.EqualValues(t, 400, rec.TotalCaloriesBurned)
	require.Equal(t, 50, rec.XP)

	var workoutEvents int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type=$1`, events.TypeWorkoutRecorded).Scan(&workoutEvents))
	require.Equal(t, 1, workoutEvents)
}

func TestDailyResetTables(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	log := NewResetLog(pool)
	counters := NewNutritionCounterResetter(pool)
	day := domain.NewDay(2025, time.March, 10)

	last, err := log.LastReset(ctx)
	require.NoError(t, err)
	require.Nil(t, last)

	_, err = counters.AddIntake(ctx, "user-1", day, 500, 30, 250)
	require.NoError(t, err)
	got, err := counters.AddIntake(ctx, "user-1", day, 200, 10, 250)
	require.NoError(t, err)
	require.Equal(t, 700, got.Calories)

	require.NoError(t, counters.ResetDaily(ctx, day))
	same, err := counters.Counters(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 700, same.Calories, "resetting the current day must not clear it")

	require.NoError(t, counters.ResetDaily(ctx, day.AddDays(1)))
	require.NoError(t, counters.ResetDaily(ctx, day))
	cleared, err := counters.Counters(ctx, "user-1")
	require.NoError(t, err)
	require.Zero(t, cleared.Calories)
	require.True(t, cleared.Day.Equal(day.AddDays(1)))

	require.NoError(t, log.MarkReset(ctx, day))
	require.NoError(t, log.MarkReset(ctx, day))
	last, err = log.LastReset(ctx)
	require.NoError(t, err)
	require.True(t, last.Equal(day))
}
