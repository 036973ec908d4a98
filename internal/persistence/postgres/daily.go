package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progression/internal/domain"
)

// ResetLog records completed daily sweeps in daily_resets.
type ResetLog struct {
	pool *pgxpool.Pool
}

// NewResetLog constructs a ResetLog.
func NewResetLog(pool *pgxpool.Pool) *ResetLog {
	return &ResetLog{pool: pool}
}

// LastReset implements domain.ResetLog.
func (l *ResetLog) LastReset(ctx context.Context) (*domain.Day, error) {
	var last pgtype.Date
	if err := l.pool.QueryRow(ctx, `SELECT MAX(reset_day) FROM daily_resets`).Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !last.Valid {
		return nil, nil
	}
	day := domain.NewDay(last.Time.Year(), last.Time.Month(), last.Time.Day())
	return &day, nil
}

// MarkReset implements domain.ResetLog.
func (l *ResetLog) MarkReset(ctx context.Context, day domain.Day) error {
	_, err := l.pool.Exec(ctx, `INSERT INTO daily_resets (reset_day) VALUES ($1) ON CONFLICT (reset_day) DO NOTHING`, dateParam(&day))
	return err
}

// NutritionCounterResetter owns the daily nutrition counters and zeroes them
// when a new day begins.
type NutritionCounterResetter struct {
	pool *pgxpool.Pool
}

// NewNutritionCounterResetter constructs a NutritionCounterResetter.
func NewNutritionCounterResetter(pool *pgxpool.Pool) *NutritionCounterResetter {
	return &NutritionCounterResetter{pool: pool}
}

// ResetDaily implements domain.DailyResetter. Only rows from days before day
// are zeroed, so repeated and out-of-order calls are harmless.
func (n *NutritionCounterResetter) ResetDaily(ctx context.Context, day domain.Day) error {
	_, err := n.pool.Exec(ctx, `UPDATE daily_nutrition_counters
           SET counter_day=$1, calories=0, protein_g=0, water_ml=0, updated_at=NOW()
         WHERE counter_day < $1`, dateParam(&day))
	return err
}

// AddIntake adds to the user's counters for day. Counters left over from an
// earlier day are replaced rather than accumulated.
func (n *NutritionCounterResetter) AddIntake(ctx context.Context, userID string, day domain.Day, calories, proteinG, waterML int) (domain.NutritionCounters, error) {
	const stmt = `INSERT INTO daily_nutrition_counters (user_id, counter_day, calories, protein_g, water_ml)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (user_id) DO UPDATE SET
            calories   = CASE WHEN daily_nutrition_counters.counter_day < EXCLUDED.counter_day THEN EXCLUDED.calories  ELSE daily_nutrition_counters.calories  + EXCLUDED.calories  END,
            protein_g  = CASE WHEN daily_nutrition_counters.counter_day < EXCLUDED.counter_day THEN EXCLUDED.protein_g ELSE daily_nutrition_counters.protein_g + EXCLUDED.protein_g END,
            water_ml   = CASE WHEN daily_nutrition_counters.counter_day < EXCLUDED.counter_day THEN EXCLUDED.water_ml  ELSE daily_nutrition_counters.water_ml  + EXCLUDED.water_ml  END,
            counter_day = GREATEST(daily_nutrition_counters.counter_day, EXCLUDED.counter_day),
            updated_at  = NOW()
        RETURNING calories, protein_g, water_ml`

	out := domain.NutritionCounters{UserID: userID, Day: day}
	err := n.pool.QueryRow(ctx, stmt, userID, dateParam(&day), calories, proteinG, waterML).Scan(&out.Calories, &out.ProteinG, &out.WaterML)
	return out, err
}

// Counters returns the user's stored counters.
func (n *NutritionCounterResetter) Counters(ctx context.Context, userID string) (domain.NutritionCounters, error) {
	var (
		out = domain.NutritionCounters{UserID: userID}
		day pgtype.Date
	)
	err := n.pool.QueryRow(ctx, `SELECT counter_day, calories, protein_g, water_ml FROM daily_nutrition_counters WHERE user_id=$1`, userID).
		Scan(&day, &out.Calories, &out.ProteinG, &out.WaterML)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	out.Day = domain.NewDay(day.Time.Year(), day.Time.Month(), day.Time.Day())
	return out, nil
}
