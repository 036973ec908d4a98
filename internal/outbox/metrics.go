package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "progression_service"
	outboxSubsystem  = "outbox"
	dlqSubsystem     = "dlq"
)

// dlqOutcome labels what the DLQ manager did with an entry.
type dlqOutcome string

const (
	outcomeRequeued    dlqOutcome = "requeued"
	outcomeRetry       dlqOutcome = "retry_scheduled"
	outcomeQuarantined dlqOutcome = "quarantined"
)

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: outboxSubsystem,
		Name: "events_delivered_total",
		Help: "Progression events published to Kafka.",
	})

	deliveredByType = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: outboxSubsystem,
		Name: "events_delivered_by_type_total",
		Help: "Progression events published to Kafka, by event type.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: outboxSubsystem,
		Name: "events_failed_total",
		Help: "Progression events whose publish failed and were parked in the DLQ.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: outboxSubsystem,
		Name:    "batch_duration_seconds",
		Help:    "Wall time of one claim, publish and mark cycle.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: outboxSubsystem,
		Name: "events_dlq_total",
		Help: "Progression events parked in the DLQ, by topic.",
	}, []string{"topic"})

	dlqOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: dlqSubsystem,
		Name: "entries_handled_total",
		Help: "DLQ entries handled by the manager, by topic, event type and outcome.",
	}, []string{"topic", "event_type", "outcome"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: dlqSubsystem,
		Name: "backlog_entries",
		Help: "DLQ entries not yet replayed or quarantined.",
	})
)

func init() {
	prometheus.MustRegister(
		deliveredCounter, deliveredByType, failedCounter, batchDuration,
		dlqCounter, dlqOutcomeCounter, dlqBacklogGauge,
	)
}

func recordDelivered(messages []Message) {
	deliveredCounter.Add(float64(len(messages)))
	for _, msg := range messages {
		deliveredByType.WithLabelValues(msg.EventType).Inc()
	}
}

func recordDLQOutcome(entry dlqEntry, outcome dlqOutcome) {
	dlqOutcomeCounter.WithLabelValues(entry.Topic, entry.EventType, string(outcome)).Inc()
}

func refreshBacklog(ctx context.Context, pool *pgxpool.Pool) error {
	var backlog int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&backlog)
	if err != nil {
		return err
	}
	dlqBacklogGauge.Set(float64(backlog))
	return nil
}
