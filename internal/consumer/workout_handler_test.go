package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/persistence/memory"
	"example.com/progression/pkg/events"
)

func activityMessage(t *testing.T, activity events.ActivityCreated) Message {
	t.Helper()
	payload, err := json.Marshal(activity)
	require.NoError(t, err)
	return Message{Topic: "activity_events", EventType: EventActivityCreated, Payload: payload}
}

func TestWorkoutHandlerAppliesWorkoutAndUnlocks(t *testing.T) {
	repo := memory.NewRepository()
	svc := domain.NewService(repo, domain.WithClock(func() time.Time {
		return time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	}))
	handler := NewWorkoutHandler(svc, nil)

	msg := activityMessage(t, events.ActivityCreated{ActivityID: "a-1", UserID: "user-1", ActivityType: "run", CaloriesBurned: 410})
	require.NoError(t, handler.Handle(context.Background(), msg))

	rec, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, rec.TotalWorkouts)
	require.EqualValues(t, 410, rec.TotalCaloriesBurned)
	require.True(t, rec.HasAchievement("first-workout"))
	require.Equal(t, 60, rec.XP)
}

func TestWorkoutHandlerRedeliveryAppliesActivityOnce(t *testing.T) {
	repo := memory.NewRepository()
	svc := domain.NewService(repo, domain.WithClock(func() time.Time {
		return time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	}))
	handler := NewWorkoutHandler(svc, nil)

	msg := activityMessage(t, events.ActivityCreated{ActivityID: "a-1", UserID: "user-1", ActivityType: "run", CaloriesBurned: 400})
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.NoError(t, handler.Handle(context.Background(), msg))

	rec, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, rec.TotalWorkouts)
	require.EqualValues(t, 400, rec.TotalCaloriesBurned)
	require.Equal(t, 60, rec.XP, "workout reward plus first-workout points, once")

	next := activityMessage(t, events.ActivityCreated{ActivityID: "a-2", UserID: "user-1", ActivityType: "run", CaloriesBurned: 100})
	require.NoError(t, handler.Handle(context.Background(), next))
	rec, err = repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, rec.TotalWorkouts)
}

func TestWorkoutHandlerKeysByActivityID(t *testing.T) {
	svc := &stubService{}
	handler := NewWorkoutHandler(svc, nil)

	require.NoError(t, handler.Handle(context.Background(), activityMessage(t, events.ActivityCreated{ActivityID: "a-9", UserID: "user-1"})))
	require.Equal(t, "activity:a-9", svc.lastKey)

	require.NoError(t, handler.Handle(context.Background(), activityMessage(t, events.ActivityCreated{UserID: "user-1"})))
	require.Empty(t, svc.lastKey)
}

func TestWorkoutHandlerIgnoresOtherEvents(t *testing.T) {
	svc := &stubService{}
	handler := NewWorkoutHandler(svc, nil)
	require.NoError(t, handler.Handle(context.Background(), Message{EventType: "activity.state_changed"}))
	require.Zero(t, svc.workouts)
}

func TestWorkoutHandlerClassifiesErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		permanent bool
	}{
		{name: "missing user", err: domain.ErrMissingUserID, permanent: true},
		{name: "out of order", err: domain.ErrOutOfOrderActivity, permanent: true},
		{name: "corrupt", err: domain.ErrCorruptState, permanent: true},
		{name: "contention", err: domain.ErrContentionExceeded, permanent: false},
		{name: "infrastructure", err: errors.New("connection reset"), permanent: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewWorkoutHandler(&stubService{workoutErr: tc.err}, nil)
			err := handler.Handle(context.Background(), activityMessage(t, events.ActivityCreated{UserID: "user-1"}))
			require.ErrorIs(t, err, tc.err)
			require.Equal(t, tc.permanent, IsPermanent(err))
		})
	}
}

func TestWorkoutHandlerRejectsMalformedPayload(t *testing.T) {
	handler := NewWorkoutHandler(&stubService{}, nil)
	err := handler.Handle(context.Background(), Message{EventType: EventActivityCreated, Payload: json.RawMessage(`{"user_id":`)})
	require.True(t, IsPermanent(err))
}

func TestWorkoutHandlerToleratesUnlockFailure(t *testing.T) {
	svc := &stubService{unlockErr: errors.New("timeout")}
	handler := NewWorkoutHandler(svc, nil)
	require.NoError(t, handler.Handle(context.Background(), activityMessage(t, events.ActivityCreated{UserID: "user-1"})))
	require.Equal(t, 1, svc.workouts)
}

type stubService struct {
	workouts   int
	lastKey    string
	workoutErr error
	unlockErr  error
}

func (s *stubService) OnWorkoutLogged(_ context.Context, in domain.WorkoutLogged) (*domain.Outcome, error) {
	if s.workoutErr != nil {
		return nil, s.workoutErr
	}
	s.workouts++
	s.lastKey = in.IdempotencyKey
	return &domain.Outcome{Record: domain.Record{UserID: in.UserID, Level: 1}, NewLevel: 1}, nil
}

func (s *stubService) UnlockEarned(context.Context, string) ([]domain.Outcome, error) {
	return nil, s.unlockErr
}
