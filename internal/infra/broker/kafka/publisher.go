// Package kafka publishes workflow outcome events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"hostelcore/internal/core"
)

const defaultWriteTimeout = 10 * time.Second

// Config locates the topic.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements core.OutcomePublisher. Messages are keyed by student
// so one student's outcomes land on one partition in order.
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
}

var _ core.OutcomePublisher = (*Publisher)(nil)

// NewPublisher builds a synchronous publisher that waits for all in-sync
// replicas to acknowledge each write.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic required")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: timeout,
		},
		timeout: timeout,
	}, nil
}

// Publish writes event as JSON. A nil publisher drops events.
func (p *Publisher) Publish(ctx context.Context, event core.OutcomeEvent) error {
	if p == nil || p.writer == nil {
		return nil
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode outcome event: %w", err)
	}
	key := event.StudentID
	if key == "" {
		key = event.ID
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
			{Key: "entity", Value: []byte(event.Entity)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s %s: %w", event.Type, event.ID, err)
	}
	return nil
}

// Close flushes and releases the writer.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
