// Package bridge forwards committed-session signals onto Kafka for durable
// downstream consumers (achievements, dashboards). The Postgres channel
// itself is at-most-once and non-durable; consumers that need replay read
// the Kafka topic or reconcile against the session store.
package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/irsyadputra-jpg/shuttletrack/internal/observability"
)

// EventSessionRecorded names the bridged event type.
const EventSessionRecorded = "session.recorded"

// SessionRecorded is the bridged payload. It carries only the owning user;
// consumers re-query for details.
type SessionRecorded struct {
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Producer lazily manages Kafka writers per topic.
type Producer struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewProducer creates a Producer.
func NewProducer(brokers []string) *Producer {
	return &Producer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// PublishSessionRecorded emits one event per committed session signal.
func (p *Producer) PublishSessionRecorded(ctx context.Context, topic, userID string) error {
	payload, err := json.Marshal(SessionRecorded{UserID: userID, OccurredAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(userID),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventSessionRecorded)},
		},
	}

	if err := p.writerForTopic(topic).WriteMessages(ctx, msg); err != nil {
		return err
	}
	observability.RecordBridgePublished()
	return nil
}

func (p *Producer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
	p.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
