// Package outbox delivers progression events written to the outbox table to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Message is one outbox row. Field order matches the claim query.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// Dispatcher polls the outbox and publishes progression events in commit
// order. A batch that fails to publish is parked in the DLQ as a whole.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	registry     schemaRegistrar
	dlq          *DLQWriter
	pollInterval time.Duration
	batchSize    int
	logger       *slog.Logger

	schemaIDs sync.Map // subject + schema -> int
	done      chan struct{}
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the dispatcher logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		pool:         pool,
		producer:     producer,
		registry:     registry,
		dlq:          NewDLQWriter(pool),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       slog.Default(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start polls until ctx is cancelled. Run it in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		err := d.processBatch(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	started := time.Now()
	batch, err := d.claim(ctx)
	if err != nil || len(batch) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(started).Seconds()) }()

	if pubErr := d.deliver(ctx, batch); pubErr != nil {
		d.logger.Warn("publishing progression events failed, parking batch", "events", len(batch), "error", pubErr)
		failedCounter.Add(float64(len(batch)))
		if err := d.park(ctx, batch, pubErr); err != nil {
			return err
		}
	} else {
		recordDelivered(batch)
	}
	return d.markPublished(ctx, batch)
}

// claim locks the oldest unpublished rows, skipping rows another dispatcher
// holds, and stamps them claimed.
func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	var batch []Message
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
               FROM outbox
              WHERE published_at IS NULL
              ORDER BY event_id
              LIMIT $1
                FOR UPDATE SKIP LOCKED`, d.batchSize)
		if err != nil {
			return err
		}
		batch, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Message])
		if err != nil || len(batch) == 0 {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(batch))
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// deliver publishes batch grouped by topic, topics in first-seen order.
func (d *Dispatcher) deliver(ctx context.Context, batch []Message) error {
	var topics []string
	byTopic := make(map[string][]kafka.Message, 4)

	for _, msg := range batch {
		record, err := d.encode(ctx, msg)
		if err != nil {
			return err
		}
		if _, seen := byTopic[msg.Topic]; !seen {
			topics = append(topics, msg.Topic)
		}
		byTopic[msg.Topic] = append(byTopic[msg.Topic], record)
	}

	for _, topic := range topics {
		if err := d.producer.WriteMessages(ctx, topic, byTopic[topic]...); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
	}
	return nil
}

func (d *Dispatcher) encode(ctx context.Context, msg Message) (kafka.Message, error) {
	meta, ok := schemaCatalog[msg.EventType]
	if !ok {
		return kafka.Message{}, fmt.Errorf("event type %q has no registered schema", msg.EventType)
	}
	schemaID, err := d.schemaID(ctx, msg.SchemaSubject, meta.Schema)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: encodeWireFormat(schemaID, msg.Payload),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.EventType)},
			{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
		},
	}, nil
}

func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	key := subject + "::" + schema
	if cached, ok := d.schemaIDs.Load(key); ok {
		return cached.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, fmt.Errorf("resolve schema for %s: %w", subject, err)
	}
	d.schemaIDs.Store(key, id)
	return id, nil
}

func (d *Dispatcher) park(ctx context.Context, batch []Message, cause error) error {
	for _, msg := range batch {
		if err := d.dlq.Write(ctx, msg, fmt.Sprintf("%v (topic=%s)", cause, msg.Topic)); err != nil {
			return fmt.Errorf("park event %d: %w", msg.EventID, err)
		}
		dlqCounter.WithLabelValues(msg.Topic).Inc()
	}
	return nil
}

func (d *Dispatcher) markPublished(ctx context.Context, batch []Message) error {
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(batch))
	return err
}

func eventIDs(batch []Message) []int64 {
	ids := make([]int64, len(batch))
	for i, msg := range batch {
		ids[i] = msg.EventID
	}
	return ids
}

// encodeWireFormat prefixes payload with the Confluent magic byte and schema id.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:], uint32(schemaID))
	return append(frame, payload...)
}
