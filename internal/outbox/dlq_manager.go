package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxDLQDelay = time.Hour

// DLQManager replays parked progression events into the outbox. Entries that
// keep failing are quarantined once they reach maxRetries.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// DLQManagerOption customises a DLQManager.
type DLQManagerOption func(*DLQManager)

// WithDLQLogger overrides the manager logger.
func WithDLQLogger(logger *slog.Logger) DLQManagerOption {
	return func(m *DLQManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewDLQManager constructs a DLQManager. Non-positive limits fall back to
// five retries and a one minute base delay.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, opts ...DLQManagerOption) *DLQManager {
	m := &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, logger: slog.Default()}
	if m.maxRetries <= 0 {
		m.maxRetries = 5
	}
	if m.baseDelay <= 0 {
		m.baseDelay = time.Minute
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunOnce handles up to batchSize due entries. It returns how many were
// handled cleanly, joined with the errors of the rest.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	entries, err := m.due(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	var (
		handled int
		errs    error
	)
	for _, entry := range entries {
		outcome, err := m.handle(ctx, entry)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("dlq entry %d: %w", entry.ID, err))
			continue
		}
		recordDLQOutcome(entry, outcome)
		m.logger.Debug("dlq entry handled", "dlq_id", entry.ID, "event_type", entry.EventType, "outcome", outcome)
		handled++
	}
	if err := refreshBacklog(ctx, m.pool); err != nil {
		m.logger.Warn("dlq backlog refresh failed", "error", err)
	}
	return handled, errs
}

func (m *DLQManager) due(ctx context.Context, limit int) ([]dlqEntry, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT dlq_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
           FROM outbox_dlq
          WHERE quarantined_at IS NULL
            AND (next_retry_at IS NULL OR next_retry_at <= NOW())
          ORDER BY created_at
          LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (dlqEntry, error) {
		var e dlqEntry
		err := row.Scan(&e.ID, &e.EventID, &e.EventType, &e.Topic, &e.Payload, &e.Reason,
			&e.AggregateType, &e.AggregateID, &e.SchemaSubject, &e.PartitionKey, &e.RetryCount)
		return e, err
	})
}

func (m *DLQManager) handle(ctx context.Context, entry dlqEntry) (dlqOutcome, error) {
	if entry.RetryCount >= m.maxRetries {
		_, err := m.pool.Exec(ctx,
			`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = 'retry limit reached' WHERE dlq_id = $1`,
			entry.ID)
		return outcomeQuarantined, err
	}

	replayErr := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if err := entry.replay(ctx, tx); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID)
		return err
	})
	if replayErr == nil {
		return outcomeRequeued, nil
	}

	// BeginFunc rolled the failed replay back; the retry bookkeeping runs outside it.
	_, err := m.pool.Exec(ctx,
		`UPDATE outbox_dlq
            SET retry_count = retry_count + 1,
                last_attempt_at = NOW(),
                next_retry_at = NOW() + $1::interval,
                reason = $2
          WHERE dlq_id = $3`,
		m.delay(entry.RetryCount+1), replayErr.Error(), entry.ID)
	return outcomeRetry, err
}

// delay doubles baseDelay per attempt, capped at maxDLQDelay.
func (m *DLQManager) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := m.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDLQDelay || d <= 0 {
			return maxDLQDelay
		}
	}
	return min(d, maxDLQDelay)
}

// dlqEntry is one outbox_dlq row.
type dlqEntry struct {
	ID            int64
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

// replay appends the parked event to the outbox as a fresh row.
func (e dlqEntry) replay(ctx context.Context, tx pgx.Tx) error {
	if e.SchemaSubject == "" {
		return errors.New("missing schema_subject")
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.AggregateType, e.AggregateID, e.EventType, e.Topic, e.SchemaSubject, e.PartitionKey, e.Payload)
	return err
}
