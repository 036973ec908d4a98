package memory

import (
	"context"
	"sync"

	"example.com/progression/internal/domain"
)

// ResetLog is an in-memory domain.ResetLog.
type ResetLog struct {
	mu   sync.Mutex
	last *domain.Day
}

// LastReset implements domain.ResetLog.
func (l *ResetLog) LastReset(context.Context) (*domain.Day, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return nil, nil
	}
	day := *l.last
	return &day, nil
}

// MarkReset implements domain.ResetLog. Older days never move the marker back.
func (l *ResetLog) MarkReset(_ context.Context, day domain.Day) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil || l.last.Before(day) {
		l.last = &day
	}
	return nil
}

// CounterResetter zeroes per-user daily counters, mirroring the Postgres
// nutrition counter table.
type CounterResetter struct {
	mu       sync.Mutex
	counters map[string]int
	day      domain.Day
	resets   int
}

// NewCounterResetter constructs a CounterResetter.
func NewCounterResetter() *CounterResetter {
	return &CounterResetter{counters: make(map[string]int)}
}

// Add increments the user's counter for the current day.
func (c *CounterResetter) Add(userID string, amount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[userID] += amount
}

// Value returns the user's counter.
func (c *CounterResetter) Value(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[userID]
}

// Resets returns how many sweeps actually cleared counters.
func (c *CounterResetter) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

// ResetDaily implements domain.DailyResetter.
func (c *CounterResetter) ResetDaily(_ context.Context, day domain.Day) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.day.IsZero() && !c.day.Before(day) {
		return nil
	}
	c.counters = make(map[string]int)
	c.day = day
	c.resets++
	return nil
}
