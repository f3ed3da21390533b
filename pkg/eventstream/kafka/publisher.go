// Package kafka publishes fact events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/keepsake/pkg/eventstream"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "keepsake.facts"

// Config holds configuration for the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string
}

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes one Kafka message per fact event, keyed by guild and
// subject so a subject's events share a partition.
type Publisher struct {
	writer messageWriter
}

// NewPublisher creates a publisher backed by a kafka-go Writer.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}

	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	return NewPublisherWithWriter(&kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}), nil
}

// NewPublisherWithWriter creates a publisher over an existing writer.
func NewPublisherWithWriter(w messageWriter) *Publisher {
	return &Publisher{writer: w}
}

// PublishFact marshals the event and writes it synchronously.
func (p *Publisher) PublishFact(ctx context.Context, event *eventstream.FactPersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilFactEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling fact event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.PartitionKey()),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	})
	if err != nil {
		return fmt.Errorf("writing fact event: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
