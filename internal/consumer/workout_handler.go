package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"example.com/progression/internal/domain"
	"example.com/progression/pkg/events"
)

// EventActivityCreated is the upstream event that counts as a logged workout.
const EventActivityCreated = "activity.created"

// ProgressionService is the subset of domain.Service the workout handler drives.
type ProgressionService interface {
	OnWorkoutLogged(ctx context.Context, in domain.WorkoutLogged) (*domain.Outcome, error)
	UnlockEarned(ctx context.Context, userID string) ([]domain.Outcome, error)
}

// WorkoutHandler turns activity.created events into progression updates.
type WorkoutHandler struct {
	service ProgressionService
	logger  *slog.Logger
}

// NewWorkoutHandler constructs a WorkoutHandler.
func NewWorkoutHandler(service ProgressionService, logger *slog.Logger) *WorkoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkoutHandler{service: service, logger: logger}
}

// Handle implements Handler. Other event types are acknowledged without action.
func (h *WorkoutHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != EventActivityCreated {
		return nil
	}

	var activity events.ActivityCreated
	if err := json.Unmarshal(msg.Payload, &activity); err != nil {
		return Permanent(fmt.Errorf("decode %s: %w", msg.EventType, err))
	}

	out, err := h.service.OnWorkoutLogged(ctx, domain.WorkoutLogged{
		UserID:         activity.UserID,
		CaloriesBurned: int64(activity.CaloriesBurned),
		IdempotencyKey: activityKey(activity.ActivityID),
	})
	if err != nil {
		if isDomainRejection(err) {
			return Permanent(fmt.Errorf("activity %s: %w", activity.ActivityID, err))
		}
		return err
	}

	attrs := []any{"user_id", activity.UserID, "activity_id", activity.ActivityID, "level", out.NewLevel}
	switch {
	case out.Replayed:
		h.logger.Info("activity already applied, skipping", attrs...)
	case out.LeveledUp:
		h.logger.Info("workout applied with level up", append(attrs, "levels_gained", out.LevelsGained)...)
	default:
		h.logger.Debug("workout applied", attrs...)
	}

	// The workout is committed; a failed catalog sweep is picked up by the next workout.
	unlocked, err := h.service.UnlockEarned(ctx, activity.UserID)
	if err != nil {
		h.logger.Warn("achievement sweep failed", "user_id", activity.UserID, "error", err)
		return nil
	}
	for _, u := range unlocked {
		last := u.Record.Achievements[len(u.Record.Achievements)-1]
		h.logger.Info("achievement unlocked", "user_id", activity.UserID, "achievement_id", last.AchievementID)
	}
	return nil
}

// activityKey namespaces activity ids among the idempotency keys of a user.
// Activities without an id cannot be deduplicated.
func activityKey(activityID string) string {
	if activityID == "" {
		return ""
	}
	return "activity:" + activityID
}

func isDomainRejection(err error) bool {
	for _, target := range []error{
		domain.ErrMissingUserID,
		domain.ErrInvalidAmount,
		domain.ErrOutOfOrderActivity,
		domain.ErrCorruptState,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
