// Package postgres persists progression records, their outbox events and the
// daily reset bookkeeping in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/observability"
	"example.com/progression/pkg/events"
)

const recordColumns = `user_id, level, xp, total_workouts, total_calories_burned, current_streak, longest_streak,
        last_activity_date, achievements, weekly_goal, version, created_at, updated_at`

// Repository provides Postgres-backed persistence for progression records and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get implements domain.Repository.
func (r *Repository) Get(ctx context.Context, userID string) (*domain.Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM progression_records WHERE user_id=$1`, userID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert implements domain.Repository. A concurrent first write for the same
// user surfaces as domain.ErrVersionConflict.
func (r *Repository) Insert(ctx context.Context, record domain.Record, evts []domain.Event, idempotencyKey string) error {
	achievements, err := marshalAchievements(record.Achievements)
	if err != nil {
		return err
	}

	return r.withTx(ctx, record, evts, idempotencyKey, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO progression_records (`+recordColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        ON CONFLICT (user_id) DO NOTHING`,
			record.UserID,
			record.Level,
			record.XP,
			record.TotalWorkouts,
			record.TotalCaloriesBurned,
			record.CurrentStreak,
			record.LongestStreak,
			dateParam(record.LastActivityDate),
			achievements,
			record.WeeklyGoal,
			record.Version,
			record.CreatedAt,
			record.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}
		return nil
	})
}

// Update implements domain.Repository. The row is only written while its
// stored version still equals expectedVersion.
func (r *Repository) Update(ctx context.Context, record domain.Record, expectedVersion int64, evts []domain.Event, idempotencyKey string) error {
	achievements, err := marshalAchievements(record.Achievements)
	if err != nil {
		return err
	}

	return r.withTx(ctx, record, evts, idempotencyKey, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE progression_records
           SET level=$3, xp=$4, total_workouts=$5, total_calories_burned=$6, current_streak=$7, longest_streak=$8,
               last_activity_date=$9, achievements=$10, weekly_goal=$11, version=$12, updated_at=$13
         WHERE user_id=$1 AND version=$2`,
			record.UserID,
			expectedVersion,
			record.Level,
			record.XP,
			record.TotalWorkouts,
			record.TotalCaloriesBurned,
			record.CurrentStreak,
			record.LongestStreak,
			dateParam(record.LastActivityDate),
			achievements,
			record.WeeklyGoal,
			record.Version,
			record.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}
		return nil
	})
}

// TopRecords implements domain.RankingSource.
func (r *Repository) TopRecords(ctx context.Context, limit int) ([]domain.Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM progression_records
        ORDER BY level DESC, xp DESC, user_id COLLATE "C" ASC
        LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// withTx claims the idempotency key, runs write and inserts the events into
// the outbox inside one transaction. The key is released again when the
// transaction rolls back.
func (r *Repository) withTx(ctx context.Context, record domain.Record, evts []domain.Event, idempotencyKey string, write func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if idempotencyKey != "" {
		if err = claimIdempotencyKey(ctx, tx, record.UserID, idempotencyKey); err != nil {
			return err
		}
	}
	if err = write(tx); err != nil {
		return err
	}
	for _, evt := range evts {
		if err = r.insertOutbox(ctx, tx, evt); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordPersisted(record.UpdatedAt)
	return nil
}

// claimIdempotencyKey records key for the user. A concurrent claim of the same
// key waits on the primary key until the first transaction ends.
func claimIdempotencyKey(ctx context.Context, tx pgx.Tx, userID, key string) error {
	tag, err := tx.Exec(ctx, `INSERT INTO progression_applied_events (user_id, idempotency_key)
        VALUES ($1, $2)
        ON CONFLICT (user_id, idempotency_key) DO NOTHING`, userID, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyApplied
	}
	return nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, evt domain.Event) error {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}

	meta, ok := EventCatalog[evt.Type]
	if !ok {
		return fmt.Errorf("unknown event type: %s", evt.Type)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"progression",
		evt.UserID,
		evt.Type,
		meta.Topic,
		meta.SchemaSubject,
		evt.UserID,
		body,
		fmt.Sprintf("%s:%s", evt.ID, evt.Type),
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

// EventCatalog routes each progression event type to its topic and schema subject.
var EventCatalog = map[string]EventMetadata{
	events.TypeWorkoutRecorded: {
		Topic:         "progression_workouts",
		SchemaSubject: "progression_workouts-value",
	},
	events.TypeLevelUp: {
		Topic:         "progression_level_ups",
		SchemaSubject: "progression_level_ups-value",
	},
	events.TypeAchievementUnlocked: {
		Topic:         "progression_achievements",
		SchemaSubject: "progression_achievements-value",
	},
}

type achievementRow struct {
	AchievementID string    `json:"achievement_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Points        int       `json:"points"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

func marshalAchievements(list []domain.Achievement) ([]byte, error) {
	rows := make([]achievementRow, 0, len(list))
	for _, a := range list {
		rows = append(rows, achievementRow(a))
	}
	return json.Marshal(rows)
}

func unmarshalAchievements(raw []byte) ([]domain.Achievement, error) {
	var rows []achievementRow
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("%w: achievements: %v", domain.ErrCorruptState, err)
		}
	}
	out := make([]domain.Achievement, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Achievement(row))
	}
	return out, nil
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var (
		rec          domain.Record
		lastActivity pgtype.Date
		achievements []byte
	)
	if err := row.Scan(
		&rec.UserID,
		&rec.Level,
		&rec.XP,
		&rec.TotalWorkouts,
		&rec.TotalCaloriesBurned,
		&rec.CurrentStreak,
		&rec.LongestStreak,
		&lastActivity,
		&achievements,
		&rec.WeeklyGoal,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return domain.Record{}, err
	}

	if lastActivity.Valid {
		t := lastActivity.Time
		day := domain.NewDay(t.Year(), t.Month(), t.Day())
		rec.LastActivityDate = &day
	}
	list, err := unmarshalAchievements(achievements)
	if err != nil {
		return domain.Record{}, err
	}
	rec.Achievements = list
	return rec, nil
}

func dateParam(day *domain.Day) pgtype.Date {
	if day == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: day.Time(), Valid: true}
}
