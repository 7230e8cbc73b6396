package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/pantypost/order-sync/internal/orders"
)

const envelopeVersion = 1

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode unmarshals a message value or an envelope payload into T.
func Decode[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("decode %T: %w", t, err)
	}
	return t, nil
}

// NewEnvelope stamps a fresh event id and time on an outgoing event.
func NewEnvelope(eventType, producer string, payload any) orders.Envelope {
	env := orders.Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: envelopeVersion,
		OccurredAt:   time.Now().UTC(),
		Producer:     producer,
	}
	if payload != nil {
		env.Payload = MustMarshal(payload)
	}
	return env
}

// Send publishes env keyed by buyer so one buyer's events stay ordered.
func Send(p Publisher, env orders.Envelope) {
	p.Publish(orders.PartitionKey(env.Buyer), MustMarshal(env),
		kafka.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	)
}
