// Package kafka publishes lifecycle events as JSON messages to a Kafka
// topic, keyed by reactor so one reactor's events stay ordered within a
// partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
	"github.com/zulandar/reactoryard/internal/notify"
)

// writer abstracts the kafka.Writer methods we use, enabling test mocks.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements notify.Sink on a Kafka topic.
type Publisher struct {
	w     writer
	topic string
}

// Opts holds parameters for creating a Publisher.
type Opts struct {
	Brokers []string
	Topic   string
	// For testing: inject a writer instead of dialing brokers.
	Writer writer
}

// New creates a Publisher.
func New(opts Opts) (*Publisher, error) {
	if opts.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	if opts.Writer != nil {
		return &Publisher{w: opts.Writer, topic: opts.Topic}, nil
	}
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	return &Publisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(opts.Brokers...),
			Topic:                  opts.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topic: opts.Topic,
	}, nil
}

// Name implements notify.Sink.
func (p *Publisher) Name() string { return "kafka" }

// Publish writes ev as one JSON message.
func (p *Publisher) Publish(ctx context.Context, ev notify.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(ev.ReactorID), 10)),
		Value: data,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
			{Key: "event_id", Value: []byte(ev.EventID)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
