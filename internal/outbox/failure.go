package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter parks events the dispatcher could not publish. Parked rows are
// immediately due for the DLQ manager.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter returns a DLQWriter backed by pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Write parks msg with the failure reason.
func (w *DLQWriter) Write(ctx context.Context, msg Message, reason string) error {
	const stmt = `INSERT INTO outbox_dlq
        (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`
	_, err := w.pool.Exec(ctx, stmt,
		msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason,
		msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey)
	return err
}
