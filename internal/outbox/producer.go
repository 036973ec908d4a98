package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var errProducerClosed = errors.New("outbox: producer closed")

// ProducerConfig tunes the per-topic Kafka writers.
type ProducerConfig struct {
	Brokers []string
	// BatchTimeout bounds how long a writer buffers before flushing. The
	// dispatcher already batches, so this stays short.
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

func (c ProducerConfig) withDefaults() ProducerConfig {
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 10 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// KafkaProducer publishes progression events. Writers are opened on first
// use of a topic and shared afterwards.
type KafkaProducer struct {
	cfg ProducerConfig

	mu      sync.RWMutex
	writers map[string]*kafka.Writer
	closed  bool
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(cfg ProducerConfig) *KafkaProducer {
	return &KafkaProducer{cfg: cfg.withDefaults(), writers: map[string]*kafka.Writer{}}
}

// WriteMessages publishes msgs to topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	w, err := p.writer(topic)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writer(topic string) (*kafka.Writer, error) {
	p.mu.RLock()
	w, ok := p.writers[topic]
	closed := p.closed
	p.mu.RUnlock()
	switch {
	case closed:
		return nil, errProducerClosed
	case ok:
		return w, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errProducerClosed
	}
	if w, ok := p.writers[topic]; ok {
		return w, nil
	}
	// Keys are user ids; hashing them keeps one user's events ordered.
	w = &kafka.Writer{
		Addr:                   kafka.TCP(p.cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           p.cfg.BatchTimeout,
		WriteTimeout:           p.cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = w
	return w, nil
}

// Close flushes and closes every writer. Later writes fail.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	var errs error
	for topic, w := range p.writers {
		errs = errors.Join(errs, w.Close())
		delete(p.writers, topic)
	}
	return errs
}
