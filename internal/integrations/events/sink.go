// Package events publishes completed leads to a Kafka topic.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yYagoKn/drp/internal/models"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the sink needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LeadEvent is the message value. The key is the visitor phone so every
// event for one visitor lands on the same partition.
type LeadEvent struct {
	Type string            `json:"type"`
	Lead models.LeadRecord `json:"lead"`
}

const leadCompleted = "lead.completed"

type Sink struct {
	writer messageWriter
}

// New builds a sink backed by a kafka-go writer that waits for all replicas.
func New(brokers []string, topic string) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("events: topic is required")
	}
	return newSink(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}), nil
}

func newSink(w messageWriter) *Sink {
	return &Sink{writer: w}
}

func (s *Sink) Name() string { return "kafka" }

func (s *Sink) Deliver(ctx context.Context, lead models.LeadRecord) error {
	value, err := json.Marshal(LeadEvent{Type: leadCompleted, Lead: lead})
	if err != nil {
		return fmt.Errorf("events: encode lead: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(lead.Phone),
		Value: value,
		Time:  lead.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(leadCompleted)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: publish lead %s: %w", lead.ID, err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
