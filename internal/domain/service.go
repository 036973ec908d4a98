package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultWorkoutXP is the reward granted per logged workout.
const DefaultWorkoutXP = 50

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 10 * time.Millisecond
	maxRetryDelay     = time.Second
)

// Repository persists records with version-checked writes. Insert fails with
// ErrVersionConflict when a record already exists for the user; Update fails
// with ErrVersionConflict when the stored version differs from expectedVersion.
// Events and a non-empty idempotencyKey are stored atomically with the record;
// a key already stored for the user fails the write with ErrAlreadyApplied.
type Repository interface {
	Get(ctx context.Context, userID string) (*Record, error)
	Insert(ctx context.Context, record Record, events []Event, idempotencyKey string) error
	Update(ctx context.Context, record Record, expectedVersion int64, events []Event, idempotencyKey string) error
}

// CommitObserver is notified after a record write commits. Failures are logged, not returned.
type CommitObserver interface {
	RecordCommitted(ctx context.Context, record Record) error
}

// Metrics receives service-level counters.
type Metrics interface {
	XPGranted(amount int)
	LevelUp(levels int)
	AchievementUnlocked(achievementID string)
	VersionConflict()
	ContentionExceeded()
	CorruptState()
	DailyReset(day Day)
}

type noopMetrics struct{}

func (noopMetrics) XPGranted(int)              {}
func (noopMetrics) LevelUp(int)                {}
func (noopMetrics) AchievementUnlocked(string) {}
func (noopMetrics) VersionConflict()           {}
func (noopMetrics) ContentionExceeded()        {}
func (noopMetrics) CorruptState()              {}
func (noopMetrics) DailyReset(Day)             {}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLocation sets the reference timezone that defines a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithWorkoutXP sets the default reward for a logged workout.
func WithWorkoutXP(xp int) Option {
	return func(s *Service) {
		if xp >= 0 {
			s.workoutXP = xp
		}
	}
}

// WithRetryPolicy bounds the conflict retries and sets the first backoff delay.
func WithRetryPolicy(maxRetries int, baseDelay time.Duration) Option {
	return func(s *Service) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if baseDelay > 0 {
			s.baseDelay = baseDelay
		}
	}
}

// WithObserver registers a commit observer.
func WithObserver(o CommitObserver) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

// WithCatalog sets the achievement catalog used for lookups and automatic unlocks.
func WithCatalog(c *Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

// WithDailyReset wires the reset log and the collaborators swept by ResetDailyTrackers.
func WithDailyReset(log ResetLog, resetters ...DailyResetter) Option {
	return func(s *Service) {
		s.resetLog = log
		s.resetters = append(s.resetters, resetters...)
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service applies progression operations to stored records. Each mutation
// reads the record, computes the next state and writes it conditionally on
// the version it read, retrying the whole cycle on conflict.
type Service struct {
	repo       Repository
	clock      func() time.Time
	location   *time.Location
	workoutXP  int
	maxRetries int
	baseDelay  time.Duration
	observers  []CommitObserver
	catalog    *Catalog
	resetLog   ResetLog
	resetters  []DailyResetter
	metrics    Metrics
	logger     *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		clock:      time.Now,
		location:   time.UTC,
		workoutXP:  DefaultWorkoutXP,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		catalog:    DefaultCatalog(),
		metrics:    noopMetrics{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the achievement catalog in use.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Location returns the reference timezone.
func (s *Service) Location() *time.Location {
	return s.location
}

// Today returns the current calendar day in the reference timezone.
func (s *Service) Today() Day {
	return DayOf(s.clock(), s.location)
}

// WorkoutLogged is the input of OnWorkoutLogged. A nil XPReward uses the service default.
// A workout carrying an IdempotencyKey already applied for the user is a replay.
type WorkoutLogged struct {
	UserID         string
	CaloriesBurned int64
	XPReward       *int
	IdempotencyKey string
}

// Outcome is returned by every mutating operation.
type Outcome struct {
	Record       Record
	LeveledUp    bool
	NewLevel     int
	LevelsGained int
	// Replayed is set when the input was already applied; Record is then the
	// current record and nothing was granted.
	Replayed bool
}

// OnWorkoutLogged counts the workout, advances the streak for today and grants the workout reward.
func (s *Service) OnWorkoutLogged(ctx context.Context, in WorkoutLogged) (*Outcome, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, ErrMissingUserID
	}
	reward := s.workoutXP
	if in.XPReward != nil {
		reward = *in.XPReward
	}
	if reward < 0 {
		return nil, fmt.Errorf("%w: xp reward %d", ErrInvalidAmount, reward)
	}
	if in.CaloriesBurned < 0 {
		return nil, fmt.Errorf("%w: calories burned %d", ErrInvalidAmount, in.CaloriesBurned)
	}

	ch, err := s.apply(ctx, in.UserID, func(rec Record, now time.Time) (change, error) {
		streak, err := RecordActivity(rec.Streak(), DayOf(now, s.location))
		if err != nil {
			return change{}, err
		}
		grant, err := Grant(rec.Level, rec.XP, reward)
		if err != nil {
			return change{}, err
		}

		previous := rec.Level
		rec.TotalWorkouts++
		rec.TotalCaloriesBurned += in.CaloriesBurned
		rec.applyStreak(streak)
		rec.Level, rec.XP = grant.Level, grant.XP

		evts := []Event{workoutRecordedEvent(rec, now)}
		if grant.LeveledUp() {
			evts = append(evts, levelUpEvent(rec.UserID, previous, grant, now))
		}
		return change{record: rec, grant: grant, events: evts, idempotencyKey: in.IdempotencyKey}, nil
	})
	if errors.Is(err, ErrAlreadyApplied) {
		s.logger.Debug("workout already applied", "user_id", in.UserID, "idempotency_key", in.IdempotencyKey)
		rec, err := s.Stats(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		return &Outcome{Record: *rec, NewLevel: rec.Level, Replayed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	s.metrics.XPGranted(reward)
	if ch.grant.LeveledUp() {
		s.metrics.LevelUp(ch.grant.LevelsGained)
	}
	return ch.outcome(), nil
}

// OnAchievementCondition unlocks def for the user and grants its points.
// A repeated unlock returns ErrAlreadyUnlocked without writing.
func (s *Service) OnAchievementCondition(ctx context.Context, userID string, def AchievementDefinition) (*Outcome, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	ch, err := s.apply(ctx, userID, func(rec Record, now time.Time) (change, error) {
		previous := rec.Level
		next, grant, err := Unlock(rec, def, now)
		if err != nil {
			return change{}, err
		}
		evts := []Event{achievementUnlockedEvent(userID, def, now)}
		if grant.LeveledUp() {
			evts = append(evts, levelUpEvent(userID, previous, grant, now))
		}
		return change{record: next, grant: grant, events: evts}, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AchievementUnlocked(def.ID)
	s.metrics.XPGranted(def.Points)
	if ch.grant.LeveledUp() {
		s.metrics.LevelUp(ch.grant.LevelsGained)
	}
	return ch.outcome(), nil
}

// UnlockByID unlocks a catalog achievement.
func (s *Service) UnlockByID(ctx context.Context, userID, achievementID string) (*Outcome, error) {
	def, ok := s.catalog.Lookup(achievementID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAchievement, achievementID)
	}
	return s.OnAchievementCondition(ctx, userID, def)
}

// UnlockEarned unlocks every catalog achievement whose criterion the user's
// latest record satisfies. Achievements unlocked concurrently are skipped.
func (s *Service) UnlockEarned(ctx context.Context, userID string) ([]Outcome, error) {
	rec, err := s.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}

	var unlocked []Outcome
	for _, def := range s.catalog.Earned(*rec) {
		out, err := s.OnAchievementCondition(ctx, userID, def)
		if errors.Is(err, ErrAlreadyUnlocked) {
			continue
		}
		if err != nil {
			return unlocked, err
		}
		unlocked = append(unlocked, *out)
	}
	return unlocked, nil
}

// Stats returns the user's record, creating the default record on first access.
func (s *Service) Stats(ctx context.Context, userID string) (*Record, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}
	rec, err := s.repo.Get(ctx, userID)
	switch {
	case err == nil:
		if err := s.validate(*rec); err != nil {
			return nil, err
		}
		return rec, nil
	case !errors.Is(err, ErrRecordNotFound):
		return nil, err
	}

	ch, err := s.apply(ctx, userID, func(rec Record, _ time.Time) (change, error) {
		return change{record: rec, unchanged: true}, nil
	})
	if err != nil {
		return nil, err
	}
	return &ch.record, nil
}

// SetWeeklyGoal updates the user's weekly workout target.
func (s *Service) SetWeeklyGoal(ctx context.Context, userID string, goal int) (*Record, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}
	if goal < 1 || goal > 21 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWeeklyGoal, goal)
	}

	ch, err := s.apply(ctx, userID, func(rec Record, _ time.Time) (change, error) {
		if rec.WeeklyGoal == goal {
			return change{record: rec, unchanged: true}, nil
		}
		rec.WeeklyGoal = goal
		return change{record: rec}, nil
	})
	if err != nil {
		return nil, err
	}
	return &ch.record, nil
}

type change struct {
	record         Record
	grant          LevelGrant
	events         []Event
	idempotencyKey string
	unchanged      bool
}

func (c change) outcome() *Outcome {
	return &Outcome{
		Record:       c.record,
		LeveledUp:    c.grant.LeveledUp(),
		NewLevel:     c.record.Level,
		LevelsGained: c.grant.LevelsGained,
	}
}

type mutation func(rec Record, now time.Time) (change, error)

// apply runs one read-compute-write cycle per attempt. Only version conflicts
// are retried; every other failure ends the loop immediately.
func (s *Service) apply(ctx context.Context, userID string, fn mutation) (change, error) {
	var result change
	attempts := 0

	op := func() error {
		attempts++
		now := s.clock().UTC()

		current, created, err := s.load(ctx, userID, now)
		if err != nil {
			return backoff.Permanent(err)
		}

		next, err := fn(current.Clone(), now)
		if err != nil {
			return backoff.Permanent(err)
		}
		if next.unchanged && !created {
			result = change{record: current, unchanged: true}
			return nil
		}

		next.record.Version = current.Version + 1
		next.record.UpdatedAt = now
		if created {
			err = s.repo.Insert(ctx, next.record, next.events, next.idempotencyKey)
		} else {
			err = s.repo.Update(ctx, next.record, current.Version, next.events, next.idempotencyKey)
		}
		if errors.Is(err, ErrVersionConflict) {
			s.metrics.VersionConflict()
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		result = next
		return nil
	}

	notify := func(err error, delay time.Duration) {
		s.logger.Debug("progression write conflict, retrying", "user_id", userID, "attempt", attempts, "delay", delay)
	}

	if err := backoff.RetryNotify(op, s.retryPolicy(ctx), notify); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			s.metrics.ContentionExceeded()
			s.logger.Warn("progression write contention exhausted", "user_id", userID, "attempts", attempts)
			return change{}, fmt.Errorf("%w: user %s after %d attempts", ErrContentionExceeded, userID, attempts)
		}
		return change{}, err
	}

	if !result.unchanged {
		s.notifyCommitted(ctx, result.record)
	}
	return result, nil
}

func (s *Service) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.baseDelay
	exp.MaxInterval = maxRetryDelay
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.maxRetries)), ctx)
}

func (s *Service) load(ctx context.Context, userID string, now time.Time) (Record, bool, error) {
	rec, err := s.repo.Get(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return NewRecord(userID, now), true, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	if err := s.validate(*rec); err != nil {
		return Record{}, false, err
	}
	return *rec, false, nil
}

func (s *Service) validate(rec Record) error {
	if err := rec.Validate(); err != nil {
		s.metrics.CorruptState()
		s.logger.Error("corrupt progression record", "user_id", rec.UserID, "error", err)
		return err
	}
	return nil
}

func (s *Service) notifyCommitted(ctx context.Context, rec Record) {
	for _, o := range s.observers {
		if err := o.RecordCommitted(ctx, rec); err != nil {
			s.logger.Warn("commit observer failed", "user_id", rec.UserID, "error", err)
		}
	}
}
