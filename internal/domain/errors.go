package domain

import "errors"

var (
	// ErrInvalidAmount is returned for negative XP grants, rewards or calorie counts.
	ErrInvalidAmount = errors.New("amount must not be negative")
	// ErrAlreadyUnlocked indicates the user already holds the achievement; nothing was changed.
	ErrAlreadyUnlocked = errors.New("achievement already unlocked")
	// ErrOutOfOrderActivity is returned when an activity day precedes the last recorded day.
	ErrOutOfOrderActivity = errors.New("activity precedes last recorded activity day")
	// ErrContentionExceeded is returned when version-conflict retries are exhausted.
	ErrContentionExceeded = errors.New("progression record contention retries exhausted")
	// ErrCorruptState is returned when a stored record violates its invariants.
	ErrCorruptState = errors.New("progression record invariant violated")

	// ErrVersionConflict is returned by repositories when a conditional write lost the race.
	ErrVersionConflict = errors.New("progression record version conflict")
	// ErrAlreadyApplied is returned by repositories when the write's idempotency key
	// was already recorded for the user.
	ErrAlreadyApplied = errors.New("idempotency key already applied")
	// ErrRecordNotFound is returned by repositories when no record exists for the user.
	ErrRecordNotFound = errors.New("progression record not found")
	// ErrMissingUserID is returned when an operation is invoked without a user identifier.
	ErrMissingUserID = errors.New("user id is required")
	// ErrInvalidAchievement is returned for achievement definitions without an id.
	ErrInvalidAchievement = errors.New("achievement id is required")
	// ErrUnknownAchievement is returned when a catalog lookup misses.
	ErrUnknownAchievement = errors.New("achievement not found in catalog")
	// ErrInvalidLimit is returned for non-positive leaderboard sizes.
	ErrInvalidLimit = errors.New("limit must be positive")
	// ErrInvalidWeeklyGoal is returned for weekly goals outside 1..21 workouts.
	ErrInvalidWeeklyGoal = errors.New("weekly goal must be between 1 and 21")
)
