package domain

import (
	"fmt"
	"strings"
	"time"
)

// AchievementDefinition describes an achievement from the catalog owned by collaborators.
type AchievementDefinition struct {
	ID          string
	Name        string
	Description string
	Points      int
}

// Validate rejects definitions that cannot be recorded.
func (d AchievementDefinition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return ErrInvalidAchievement
	}
	if d.Points < 0 {
		return fmt.Errorf("%w: achievement %s points %d", ErrInvalidAmount, d.ID, d.Points)
	}
	return nil
}

// Unlock appends the achievement to a copy of record and grants its points.
// A duplicate id returns ErrAlreadyUnlocked and the record unchanged. Streak
// fields are never touched.
func Unlock(record Record, def AchievementDefinition, now time.Time) (Record, LevelGrant, error) {
	if err := def.Validate(); err != nil {
		return record, LevelGrant{}, err
	}
	if record.HasAchievement(def.ID) {
		return record, LevelGrant{}, fmt.Errorf("%w: %s", ErrAlreadyUnlocked, def.ID)
	}

	grant, err := Grant(record.Level, record.XP, def.Points)
	if err != nil {
		return record, LevelGrant{}, err
	}

	next := record.Clone()
	next.Achievements = append(next.Achievements, Achievement{
		AchievementID: def.ID,
		Name:          def.Name,
		Description:   def.Description,
		Points:        def.Points,
		UnlockedAt:    now,
	})
	next.Level = grant.Level
	next.XP = grant.XP
	return next, grant, nil
}
