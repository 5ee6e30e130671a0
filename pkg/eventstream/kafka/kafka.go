// Package kafka provides a Kafka-backed event stream publisher.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/eventstream"
)

// DefaultTopic is the default topic for memory mutation events.
const DefaultTopic = "engram.memory.mutations"

// Publisher implements eventstream.Publisher on a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of broker addresses.
	Brokers []string

	// Topic is the destination topic. Defaults to DefaultTopic.
	Topic string
}

// NewPublisher creates a Kafka mutation event publisher.
func NewPublisher(c Config, logger *zap.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}

	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafkago.Writer{
		Addr:     kafkago.TCP(c.Brokers...),
		Topic:    topic,
		Balancer: &kafkago.LeastBytes{},
	}

	logger.Info("kafka event publisher initialized",
		zap.Strings("brokers", c.Brokers),
		zap.String("topic", topic),
	)

	return &Publisher{writer: writer, logger: logger}, nil
}

// PublishMutation writes one mutation event, keyed by memory id so all
// events for a memory land on the same partition in order.
func (p *Publisher) PublishMutation(ctx context.Context, event *eventstream.MemoryMutatedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.Mutation.MemoryID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("writing event: %w", err)
	}

	p.logger.Debug("published mutation event",
		zap.String("memory_id", event.Mutation.MemoryID),
		zap.String("event", event.Mutation.Event),
	)

	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
