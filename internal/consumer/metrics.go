package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values for handledCounter.
const (
	outcomeProcessed = "processed"
	outcomeRejected  = "rejected"
	outcomeRetry     = "retry"
)

var (
	handledCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "consumer",
		Name:      "messages_handled_total",
		Help:      "Activity messages seen by the consumer, by topic, event type and outcome.",
	}, []string{"topic", "event_type", "outcome"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Activity messages that could not be decoded, by topic.",
	}, []string{"topic"})

	processingLag = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "progression_service",
		Subsystem: "consumer",
		Name:      "processing_lag_seconds",
		Help:      "Delay between a message being produced and its progression update committing.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(handledCounter, decodeErrorCounter, processingLag)
}

func recordProcessed(msg Message) {
	handledCounter.WithLabelValues(msg.Topic, msg.EventType, outcomeProcessed).Inc()
	if !msg.Timestamp.IsZero() {
		processingLag.WithLabelValues(msg.Topic).Observe(max(time.Since(msg.Timestamp).Seconds(), 0))
	}
}

func recordRejected(msg Message) {
	handledCounter.WithLabelValues(msg.Topic, msg.EventType, outcomeRejected).Inc()
}

func recordHandlerError(msg Message) {
	handledCounter.WithLabelValues(msg.Topic, msg.EventType, outcomeRetry).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
