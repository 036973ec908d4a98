// Package memory provides in-process implementations of the progression
// stores for local development and tests.
package memory

import (
	"context"
	"sync"

	"example.com/progression/internal/domain"
)

// Repository stores records in memory with the same version semantics as Postgres.
type Repository struct {
	mu      sync.RWMutex
	records map[string]domain.Record
	applied map[string]map[string]struct{}
	events  []domain.Event
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		records: make(map[string]domain.Record),
		applied: make(map[string]map[string]struct{}),
	}
}

// Get implements domain.Repository.
func (r *Repository) Get(_ context.Context, userID string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	out := rec.Clone()
	return &out, nil
}

// Insert implements domain.Repository.
func (r *Repository) Insert(_ context.Context, record domain.Record, events []domain.Event, idempotencyKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen(record.UserID, idempotencyKey) {
		return domain.ErrAlreadyApplied
	}
	if _, exists := r.records[record.UserID]; exists {
		return domain.ErrVersionConflict
	}
	r.commit(record, events, idempotencyKey)
	return nil
}

// Update implements domain.Repository.
func (r *Repository) Update(_ context.Context, record domain.Record, expectedVersion int64, events []domain.Event, idempotencyKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen(record.UserID, idempotencyKey) {
		return domain.ErrAlreadyApplied
	}
	current, exists := r.records[record.UserID]
	if !exists || current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	r.commit(record, events, idempotencyKey)
	return nil
}

func (r *Repository) seen(userID, key string) bool {
	_, ok := r.applied[userID][key]
	return key != "" && ok
}

func (r *Repository) commit(record domain.Record, events []domain.Event, key string) {
	r.records[record.UserID] = record.Clone()
	r.events = append(r.events, events...)
	if key == "" {
		return
	}
	if r.applied[record.UserID] == nil {
		r.applied[record.UserID] = make(map[string]struct{})
	}
	r.applied[record.UserID][key] = struct{}{}
}

// Put stores a record as-is, bypassing version checks. Intended for seeding.
func (r *Repository) Put(record domain.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.UserID] = record.Clone()
}

// TopRecords implements domain.RankingSource.
func (r *Repository) TopRecords(_ context.Context, limit int) ([]domain.Record, error) {
	r.mu.RLock()
	out := make([]domain.Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	r.mu.RUnlock()

	domain.SortRanking(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns the events recorded alongside committed writes.
func (r *Repository) Events() []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Event(nil), r.events...)
}
