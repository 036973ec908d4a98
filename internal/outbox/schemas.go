package outbox

import "example.com/progression/pkg/events"

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeWorkoutRecorded:     {Schema: workoutRecordedSchema},
	events.TypeLevelUp:             {Schema: levelUpSchema},
	events.TypeAchievementUnlocked: {Schema: achievementUnlockedSchema},
}

const workoutRecordedSchema = `{
  "type": "object",
  "title": "WorkoutRecorded",
  "properties": {
    "event_id": {"type": "string"},
    "user_id": {"type": "string"},
    "total_workouts": {"type": "integer", "minimum": 0},
    "total_calories_burned": {"type": "integer", "minimum": 0},
    "current_streak": {"type": "integer", "minimum": 0},
    "longest_streak": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "user_id", "total_workouts", "total_calories_burned", "current_streak", "longest_streak", "occurred_at"],
  "additionalProperties": false
}`

const levelUpSchema = `{
  "type": "object",
  "title": "LevelUp",
  "properties": {
    "event_id": {"type": "string"},
    "user_id": {"type": "string"},
    "previous_level": {"type": "integer", "minimum": 1},
    "new_level": {"type": "integer", "minimum": 2},
    "levels_gained": {"type": "integer", "minimum": 1},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "user_id", "previous_level", "new_level", "levels_gained", "occurred_at"],
  "additionalProperties": false
}`

const achievementUnlockedSchema = `{
  "type": "object",
  "title": "AchievementUnlocked",
  "properties": {
    "event_id": {"type": "string"},
    "user_id": {"type": "string"},
    "achievement_id": {"type": "string"},
    "name": {"type": "string"},
    "points": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "user_id", "achievement_id", "name", "points", "occurred_at"],
  "additionalProperties": false
}`
