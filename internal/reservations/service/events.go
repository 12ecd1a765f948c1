package service

import (
	"context"

	"labreserve/internal/reservations/engine"
	"labreserve/pkg/kafka"
)

const eventSchemaVersion = "1"

// KafkaEventSink publishes lifecycle events to the booking events topic.
// Messages are keyed by laboratory id so all events for one laboratory land
// on the same partition in transition order.
type KafkaEventSink struct {
	producer *kafka.Producer
	source   string
}

func NewKafkaEventSink(producer *kafka.Producer, source string) *KafkaEventSink {
	return &KafkaEventSink{
		producer: producer,
		source:   source,
	}
}

func (s *KafkaEventSink) Publish(ctx context.Context, event engine.Event) error {
	msg := kafka.NewMessage().
		WithKey(event.LaboratoryID).
		WithValue(event).
		WithEventType(string(event.Type)).
		WithSource(s.source).
		WithSchemaVersion(eventSchemaVersion).
		Build()

	return s.producer.Publish(ctx, msg)
}
