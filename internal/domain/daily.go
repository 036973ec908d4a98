package domain

import (
	"context"
	"errors"
	"fmt"
)

// DailyResetter is implemented by collaborators that own per-day counters.
// ResetDaily must be idempotent for a given day and must ignore days older
// than the one it last reset.
type DailyResetter interface {
	ResetDaily(ctx context.Context, day Day) error
}

// ResetLog remembers the most recent day a reset sweep completed.
type ResetLog interface {
	LastReset(ctx context.Context) (*Day, error)
	MarkReset(ctx context.Context, day Day) error
}

// NutritionCounters is a user's intake for one day. The daily reset zeroes
// counters left over from earlier days.
type NutritionCounters struct {
	UserID   string
	Day      Day
	Calories int
	ProteinG int
	WaterML  int
}

// ResetReport describes a ResetDailyTrackers invocation.
type ResetReport struct {
	Day       Day
	Skipped   bool
	Resetters int
}

// ResetDailyTrackers runs the daily sweep for today in the reference
// timezone. A repeated or late invocation for a day at or before the last
// completed sweep is a no-op. Progression records are never read or written.
func (s *Service) ResetDailyTrackers(ctx context.Context) (ResetReport, error) {
	today := s.Today()
	report := ResetReport{Day: today}

	if s.resetLog != nil {
		last, err := s.resetLog.LastReset(ctx)
		if err != nil {
			return report, fmt.Errorf("load last reset: %w", err)
		}
		if last != nil && !last.Before(today) {
			report.Skipped = true
			return report, nil
		}
	}

	var errs error
	for _, r := range s.resetters {
		if err := r.ResetDaily(ctx, today); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		report.Resetters++
	}
	if errs != nil {
		return report, fmt.Errorf("daily reset %s: %w", today, errs)
	}

	if s.resetLog != nil {
		if err := s.resetLog.MarkReset(ctx, today); err != nil {
			return report, fmt.Errorf("mark reset %s: %w", today, err)
		}
	}
	s.metrics.DailyReset(today)
	s.logger.Info("daily trackers reset", "day", today.String(), "resetters", report.Resetters)
	return report, nil
}
