package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/progression/pkg/events"
)

type stubWrite struct {
	topic    string
	messages []kafka.Message
}

type stubProducer struct {
	mu     sync.Mutex
	writes []stubWrite
	err    error
}

func (p *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.writes = append(p.writes, stubWrite{topic: topic, messages: msgs})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []string
}

func (r *stubRegistry) EnsureSchema(_ context.Context, subject, _ string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, subject)
	return r.id, r.err
}

func levelUpMessage(t *testing.T, id int64, userID string) Message {
	t.Helper()
	payload, err := json.Marshal(events.LevelUp{EventID: "e", UserID: userID, PreviousLevel: 1, NewLevel: 2, LevelsGained: 1})
	require.NoError(t, err)
	return Message{
		EventID:       id,
		AggregateType: "progression",
		AggregateID:   userID,
		EventType:     events.TypeLevelUp,
		Topic:         "progression_level_ups",
		SchemaSubject: "progression_level_ups-value",
		PartitionKey:  userID,
		Payload:       payload,
	}
}

func TestDeliverGroupsByTopicAndCachesSchemaIDs(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := NewDispatcher(nil, producer, registry, time.Second, 10)

	messages := []Message{levelUpMessage(t, 1, "user-1"), levelUpMessage(t, 2, "user-2")}
	require.NoError(t, d.deliver(context.Background(), messages))
	require.NoError(t, d.deliver(context.Background(), messages[:1]))

	require.Len(t, producer.writes, 2)
	first := producer.writes[0]
	require.Equal(t, "progression_level_ups", first.topic)
	require.Len(t, first.messages, 2)
	require.Equal(t, []byte("user-1"), first.messages[0].Key)
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(first.messages[0].Value[1:5]))
	require.JSONEq(t, string(messages[0].Payload), string(first.messages[0].Value[5:]))
	require.Len(t, registry.calls, 1, "schema ids are cached per subject")
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 1}
	d := NewDispatcher(nil, producer, registry, time.Second, 10)

	msg := levelUpMessage(t, 1, "user-1")
	msg.EventType = "progression.unknown"
	require.Error(t, d.deliver(context.Background(), []Message{msg}))
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
}

func TestDeliverPropagatesProducerError(t *testing.T) {
	boom := errors.New("kafka write failed")
	d := NewDispatcher(nil, &stubProducer{err: boom}, &stubRegistry{id: 3}, time.Second, 10)
	require.ErrorIs(t, d.deliver(context.Background(), []Message{levelUpMessage(t, 1, "user-1")}), boom)
}

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(7, []byte(`{"a":1}`))
	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(7), binary.BigEndian.Uint32(frame[1:5]))
	require.Equal(t, `{"a":1}`, string(frame[5:]))
}

func TestSchemaCatalogCoversProgressionEvents(t *testing.T) {
	for _, eventType := range []string{events.TypeWorkoutRecorded, events.TypeLevelUp, events.TypeAchievementUnlocked} {
		entry, ok := schemaCatalog[eventType]
		require.True(t, ok, eventType)
		require.True(t, json.Valid([]byte(entry.Schema)), eventType)
	}
}

func TestSchemaRegistryRegistersUnknownSubject(t *testing.T) {
	var registered bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && !registered:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"id": 9}`))
		case r.Method == http.MethodPost:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "JSON", body["schemaType"])
			registered = true
			_, _ = w.Write([]byte(`{"id": 9}`))
		}
	}))
	defer server.Close()

	client := NewSchemaRegistryClient(server.URL)
	id, err := client.EnsureSchema(context.Background(), "progression_level_ups-value", levelUpSchema)
	require.NoError(t, err)
	require.Equal(t, 9, id)
	require.True(t, registered)

	id, err = client.EnsureSchema(context.Background(), "progression_level_ups-value", levelUpSchema)
	require.NoError(t, err)
	require.Equal(t, 9, id)
}

func TestSchemaRegistryDoesNotRegisterOnServerError(t *testing.T) {
	posts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewSchemaRegistryClient(server.URL).EnsureSchema(context.Background(), "s", "{}")
	require.Error(t, err)
	require.Zero(t, posts)
}

func TestDLQBackoffDelay(t *testing.T) {
	m := NewDLQManager(nil, 0, time.Minute)
	require.Equal(t, 5, m.maxRetries)
	require.Equal(t, time.Minute, m.delay(1))
	require.Equal(t, 4*time.Minute, m.delay(3))
	require.Equal(t, time.Hour, m.delay(10))
	require.Equal(t, time.Hour, m.delay(80))
}
