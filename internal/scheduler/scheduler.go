// Package scheduler runs the progression background jobs: the midnight
// daily reset sweep and the periodic leaderboard cache refresh.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"example.com/progression/internal/domain"
)

// DailyResetter runs the daily reset sweep.
type DailyResetter interface {
	ResetDailyTrackers(ctx context.Context) (domain.ResetReport, error)
}

// LeaderboardRebuilder repopulates the leaderboard cache from the primary store.
type LeaderboardRebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}

// Config tunes the scheduled jobs.
type Config struct {
	Location        *time.Location
	RefreshInterval time.Duration
}

// Scheduler owns the gocron scheduler and the job callbacks.
type Scheduler struct {
	sched   gocron.Scheduler
	cfg     Config
	resets  DailyResetter
	rebuild LeaderboardRebuilder
	logger  *slog.Logger
}

// New constructs a Scheduler. rebuild may be nil when no leaderboard cache is configured.
func New(cfg Config, resets DailyResetter, rebuild LeaderboardRebuilder, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := gocron.NewScheduler(
		gocron.WithLocation(cfg.Location),
		gocron.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{sched: sched, cfg: cfg, resets: resets, rebuild: rebuild, logger: logger}, nil
}

// Start registers the jobs and starts the scheduler. The daily reset runs
// once immediately to catch up a midnight missed while the process was down;
// the sweep is a no-op when today is already reset.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 0, 0))),
		gocron.NewTask(func() { s.RunDailyReset(ctx) }),
		gocron.WithName("daily-reset"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("schedule daily reset: %w", err)
	}

	if _, err := s.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartImmediately()),
		gocron.NewTask(func() { s.RunDailyReset(ctx) }),
		gocron.WithName("daily-reset-catch-up"),
	); err != nil {
		return fmt.Errorf("schedule daily reset catch-up: %w", err)
	}

	if s.rebuild != nil && s.cfg.RefreshInterval > 0 {
		if _, err := s.sched.NewJob(
			gocron.DurationJob(s.cfg.RefreshInterval),
			gocron.NewTask(func() { s.RefreshLeaderboard(ctx) }),
			gocron.WithName("leaderboard-refresh"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		); err != nil {
			return fmt.Errorf("schedule leaderboard refresh: %w", err)
		}
	}

	s.sched.Start()
	s.logger.Info("scheduler started", "timezone", s.cfg.Location.String(), "refresh_interval", s.cfg.RefreshInterval)
	return nil
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// RunDailyReset runs one daily reset sweep and logs its outcome.
func (s *Scheduler) RunDailyReset(ctx context.Context) {
	report, err := s.resets.ResetDailyTrackers(ctx)
	if err != nil {
		s.logger.Error("daily reset failed", "day", report.Day.String(), "error", err)
		return
	}
	if report.Skipped {
		s.logger.Debug("daily reset already done", "day", report.Day.String())
		return
	}
	s.logger.Info("daily reset complete", "day", report.Day.String(), "resetters", report.Resetters)
}

// RefreshLeaderboard repopulates the leaderboard cache.
func (s *Scheduler) RefreshLeaderboard(ctx context.Context) {
	n, err := s.rebuild.Rebuild(ctx)
	if err != nil {
		s.logger.Warn("leaderboard refresh failed", "error", err)
		return
	}
	s.logger.Debug("leaderboard refreshed", "entries", n)
}
