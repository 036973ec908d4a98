package events

import "time"

// Event types published by the progression service outbox.
const (
	TypeWorkoutRecorded     = "progression.workout_recorded"
	TypeLevelUp             = "progression.level_up"
	TypeAchievementUnlocked = "progression.achievement_unlocked"
)

// WorkoutRecorded carries the record totals after a workout was applied.
type WorkoutRecorded struct {
	EventID             string    `json:"event_id"`
	UserID              string    `json:"user_id"`
	TotalWorkouts       int64     `json:"total_workouts"`
	TotalCaloriesBurned int64     `json:"total_calories_burned"`
	CurrentStreak       int       `json:"current_streak"`
	LongestStreak       int       `json:"longest_streak"`
	OccurredAt          time.Time `json:"occurred_at"`
}

// LevelUp is emitted once per grant that crossed at least one threshold.
type LevelUp struct {
	EventID       string    `json:"event_id"`
	UserID        string    `json:"user_id"`
	PreviousLevel int       `json:"previous_level"`
	NewLevel      int       `json:"new_level"`
	LevelsGained  int       `json:"levels_gained"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// AchievementUnlocked is emitted on the first unlock of an achievement id.
type AchievementUnlocked struct {
	EventID       string    `json:"event_id"`
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	Name          string    `json:"name"`
	Points        int       `json:"points"`
	OccurredAt    time.Time `json:"occurred_at"`
}
