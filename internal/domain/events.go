package domain

import (
	"time"

	"github.com/google/uuid"

	"example.com/progression/pkg/events"
)

// Event is a domain event persisted to the outbox in the same write as the record.
type Event struct {
	ID      string
	Type    string
	UserID  string
	Payload interface{}
}

func workoutRecordedEvent(r Record, now time.Time) Event {
	id := uuid.NewString()
	return Event{
		ID:     id,
		Type:   events.TypeWorkoutRecorded,
		UserID: r.UserID,
		Payload: events.WorkoutRecorded{
			EventID:             id,
			UserID:              r.UserID,
			TotalWorkouts:       r.TotalWorkouts,
			TotalCaloriesBurned: r.TotalCaloriesBurned,
			CurrentStreak:       r.CurrentStreak,
			LongestStreak:       r.LongestStreak,
			OccurredAt:          now,
		},
	}
}

func levelUpEvent(userID string, previous int, grant LevelGrant, now time.Time) Event {
	id := uuid.NewString()
	return Event{
		ID:     id,
		Type:   events.TypeLevelUp,
		UserID: userID,
		Payload: events.LevelUp{
			EventID:       id,
			UserID:        userID,
			PreviousLevel: previous,
			NewLevel:      grant.Level,
			LevelsGained:  grant.LevelsGained,
			OccurredAt:    now,
		},
	}
}

func achievementUnlockedEvent(userID string, def AchievementDefinition, now time.Time) Event {
	id := uuid.NewString()
	return Event{
		ID:     id,
		Type:   events.TypeAchievementUnlocked,
		UserID: userID,
		Payload: events.AchievementUnlocked{
			EventID:       id,
			UserID:        userID,
			AchievementID: def.ID,
			Name:          def.Name,
			Points:        def.Points,
			OccurredAt:    now,
		},
	}
}
