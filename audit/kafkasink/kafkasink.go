// Package kafkasink publishes audit events to a Kafka topic, one JSON message
// per event, keyed by account id so each account's trail stays ordered.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrEthical07/accessgate"
	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "accessgate.audit"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink implements accessgate.AuditSink.
type Sink struct {
	writer messageWriter
	topic  string
}

func New(brokers []string, topic string) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka audit sink requires at least one broker")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func (s *Sink) Emit(ctx context.Context, event accessgate.AuditEvent) error {
	msg, err := s.message(event)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

func (s *Sink) message(event accessgate.AuditEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	key := event.AccountID
	if key == "" {
		key = event.ID
	}
	return kafka.Message{
		Topic: s.topic,
		Key:   []byte(key),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}, nil
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
