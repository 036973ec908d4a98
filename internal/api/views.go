package api

import (
	"errors"
	"strings"
	"time"

	"example.com/progression/internal/domain"
)

// LogWorkoutRequest is the payload for POST /v1/progression/workouts.
// XPReward overrides the configured per-workout reward when present.
type LogWorkoutRequest struct {
	CaloriesBurned int64 `json:"calories_burned"`
	XPReward       *int  `json:"xp_reward,omitempty"`
}

// Validate ensures request correctness.
func (r LogWorkoutRequest) Validate() error {
	if r.CaloriesBurned < 0 {
		return errors.New("calories_burned must be >= 0")
	}
	if r.XPReward != nil && *r.XPReward < 0 {
		return errors.New("xp_reward must be >= 0")
	}
	return nil
}

// UnlockAchievementRequest is the payload for POST /v1/progression/achievements.
// Only achievement_id is required for catalog achievements; a full definition
// unlocks an achievement the catalog does not know.
type UnlockAchievementRequest struct {
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name,omitempty"`
	Description   string `json:"description,omitempty"`
	Points        *int   `json:"points,omitempty"`
}

// Validate ensures request correctness.
func (r UnlockAchievementRequest) Validate() error {
	if strings.TrimSpace(r.AchievementID) == "" {
		return errors.New("achievement_id is required")
	}
	if r.Points != nil && *r.Points < 0 {
		return errors.New("points must be >= 0")
	}
	return nil
}

func (r UnlockAchievementRequest) catalogOnly() bool {
	return r.Points == nil && r.Name == "" && r.Description == ""
}

func (r UnlockAchievementRequest) definition() domain.AchievementDefinition {
	def := domain.AchievementDefinition{
		ID:          r.AchievementID,
		Name:        r.Name,
		Description: r.Description,
	}
	if r.Points != nil {
		def.Points = *r.Points
	}
	return def
}

// WeeklyGoalRequest is the payload for PUT /v1/progression/weekly-goal.
type WeeklyGoalRequest struct {
	WeeklyGoal int `json:"weekly_goal"`
}

// NutritionIntakeRequest is the payload for POST /v1/progression/nutrition.
type NutritionIntakeRequest struct {
	Calories int `json:"calories"`
	ProteinG int `json:"protein_g"`
	WaterML  int `json:"water_ml"`
}

// Validate ensures request correctness.
func (r NutritionIntakeRequest) Validate() error {
	if r.Calories < 0 || r.ProteinG < 0 || r.WaterML < 0 {
		return errors.New("intake values must be >= 0")
	}
	return nil
}

// StatsView exposes a user's progression record.
type StatsView struct {
	UserID              string            `json:"user_id"`
	Level               int               `json:"level"`
	XP                  int               `json:"xp"`
	XPToNextLevel       int               `json:"xp_to_next_level"`
	TotalWorkouts       int64             `json:"total_workouts"`
	TotalCaloriesBurned int64             `json:"total_calories_burned"`
	CurrentStreak       int               `json:"current_streak"`
	LongestStreak       int               `json:"longest_streak"`
	LastActivityDate    *domain.Day       `json:"last_activity_date,omitempty"`
	Achievements        []AchievementView `json:"achievements"`
	WeeklyGoal          int               `json:"weekly_goal"`
	Version             int64             `json:"version"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// AchievementView describes one unlocked achievement.
type AchievementView struct {
	AchievementID string    `json:"achievement_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Points        int       `json:"points"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// ProgressResponse is returned by the mutating endpoints.
type ProgressResponse struct {
	Stats    StatsView         `json:"stats"`
	LevelUp  bool              `json:"level_up"`
	NewLevel int               `json:"new_level"`
	Unlocked []AchievementView `json:"unlocked"`
	Replay   bool              `json:"replay"`
}

// CatalogItemView is one entry of the achievement catalog with the caller's unlock state.
type CatalogItemView struct {
	AchievementID string     `json:"achievement_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Points        int        `json:"points"`
	Unlocked      bool       `json:"unlocked"`
	UnlockedAt    *time.Time `json:"unlocked_at,omitempty"`
}

// CatalogResponse lists the achievement catalog.
type CatalogResponse struct {
	Items []CatalogItemView `json:"items"`
}

// LeaderboardEntryView is one ranked user.
type LeaderboardEntryView struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	Level         int    `json:"level"`
	XP            int    `json:"xp"`
	TotalWorkouts int64  `json:"total_workouts"`
	CurrentStreak int    `json:"current_streak"`
}

// LeaderboardResponse packages the ranked entries.
type LeaderboardResponse struct {
	Items []LeaderboardEntryView `json:"items"`
}

// DailyResetResponse reports the outcome of a daily reset sweep.
type DailyResetResponse struct {
	Day       string `json:"day"`
	Skipped   bool   `json:"skipped"`
	Resetters int    `json:"resetters"`
}

// NutritionView exposes the caller's counters for the current day.
type NutritionView struct {
	Day      string `json:"day"`
	Calories int    `json:"calories"`
	ProteinG int    `json:"protein_g"`
	WaterML  int    `json:"water_ml"`
}

func toStatsView(r domain.Record) StatsView {
	achievements := make([]AchievementView, 0, len(r.Achievements))
	for _, a := range r.Achievements {
		achievements = append(achievements, toAchievementView(a))
	}
	return StatsView{
		UserID:              r.UserID,
		Level:               r.Level,
		XP:                  r.XP,
		XPToNextLevel:       domain.LevelThreshold(r.Level) - r.XP,
		TotalWorkouts:       r.TotalWorkouts,
		TotalCaloriesBurned: r.TotalCaloriesBurned,
		CurrentStreak:       r.CurrentStreak,
		LongestStreak:       r.LongestStreak,
		LastActivityDate:    r.LastActivityDate,
		Achievements:        achievements,
		WeeklyGoal:          r.WeeklyGoal,
		Version:             r.Version,
		UpdatedAt:           r.UpdatedAt,
	}
}

func toAchievementView(a domain.Achievement) AchievementView {
	return AchievementView{
		AchievementID: a.AchievementID,
		Name:          a.Name,
		Description:   a.Description,
		Points:        a.Points,
		UnlockedAt:    a.UnlockedAt,
	}
}
