// Package domain implements the user progression engine: XP and levels,
// daily streaks, achievement unlocks, the leaderboard and the service that
// applies them to stored records under optimistic concurrency.
package domain

import (
	"fmt"
	"time"
)

// DefaultWeeklyGoal is the number of workouts per week assigned to new records.
const DefaultWeeklyGoal = 3

// Achievement is an unlocked achievement held by a user.
type Achievement struct {
	AchievementID string
	Name          string
	Description   string
	Points        int
	UnlockedAt    time.Time
}

// Record is the per-user progression aggregate. Version increases by one on
// every committed write and guards conditional updates.
type Record struct {
	UserID              string
	Level               int
	XP                  int
	TotalWorkouts       int64
	TotalCaloriesBurned int64
	CurrentStreak       int
	LongestStreak       int
	LastActivityDate    *Day
	Achievements        []Achievement
	WeeklyGoal          int
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewRecord returns the default record created on a user's first progression event.
func NewRecord(userID string, now time.Time) Record {
	return Record{
		UserID:       userID,
		Level:        1,
		Achievements: []Achievement{},
		WeeklyGoal:   DefaultWeeklyGoal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a copy that shares no mutable state with r.
func (r Record) Clone() Record {
	out := r
	out.Achievements = append([]Achievement(nil), r.Achievements...)
	if out.Achievements == nil {
		out.Achievements = []Achievement{}
	}
	if r.LastActivityDate != nil {
		day := *r.LastActivityDate
		out.LastActivityDate = &day
	}
	return out
}

// Streak extracts the streak fields.
func (r Record) Streak() StreakState {
	return StreakState{LastActivityDate: r.LastActivityDate, Current: r.CurrentStreak, Longest: r.LongestStreak}
}

func (r *Record) applyStreak(s StreakState) {
	r.LastActivityDate = s.LastActivityDate
	r.CurrentStreak = s.Current
	r.LongestStreak = s.Longest
}

// HasAchievement reports whether achievementID is already unlocked.
func (r Record) HasAchievement(achievementID string) bool {
	for _, a := range r.Achievements {
		if a.AchievementID == achievementID {
			return true
		}
	}
	return false
}

// Validate checks the record invariants and returns ErrCorruptState on the first violation.
func (r Record) Validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: empty user id", ErrCorruptState)
	case r.Level < 1:
		return fmt.Errorf("%w: user %s level %d", ErrCorruptState, r.UserID, r.Level)
	case r.XP < 0 || r.XP >= LevelThreshold(r.Level):
		return fmt.Errorf("%w: user %s xp %d outside [0,%d)", ErrCorruptState, r.UserID, r.XP, LevelThreshold(r.Level))
	case r.TotalWorkouts < 0 || r.TotalCaloriesBurned < 0:
		return fmt.Errorf("%w: user %s negative totals", ErrCorruptState, r.UserID)
	case r.CurrentStreak < 0 || r.LongestStreak < r.CurrentStreak:
		return fmt.Errorf("%w: user %s streak current=%d longest=%d", ErrCorruptState, r.UserID, r.CurrentStreak, r.LongestStreak)
	}

	seen := make(map[string]struct{}, len(r.Achievements))
	for _, a := range r.Achievements {
		if _, dup := seen[a.AchievementID]; dup {
			return fmt.Errorf("%w: user %s duplicate achievement %s", ErrCorruptState, r.UserID, a.AchievementID)
		}
		seen[a.AchievementID] = struct{}{}
	}
	return nil
}
