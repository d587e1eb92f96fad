package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// OutboxEvent is one row of the outbox table. Payload holds the JSON encoded
// domain event; Headers holds the trace context of the writer.
type OutboxEvent struct {
	ID            int64
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Headers       json.RawMessage
	Topic         string
	CreatedAt     time.Time
	Attempts      int
}

// Envelope is what consumers receive as the message value.
type Envelope struct {
	EventID       int64           `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

func NewOutboxEvent(
	ctx context.Context,
	topic, aggregateType, aggregateID, eventType string,
	payload any,
) (*OutboxEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headerBytes, err := json.Marshal(carrier)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal headers: %w", err)
	}

	return &OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payloadBytes,
		Headers:       headerBytes,
		Topic:         topic,
	}, nil
}

func (e *OutboxEvent) Envelope() ([]byte, error) {
	return json.Marshal(Envelope{
		EventID:       e.ID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		OccurredAt:    e.CreatedAt.UTC(),
		Payload:       e.Payload,
	})
}

// TraceHeaders decodes the headers stored with the event. Malformed headers yield an empty map.
func (e *OutboxEvent) TraceHeaders() map[string]string {
	headers := map[string]string{}
	if len(e.Headers) == 0 {
		return headers
	}

	if err := json.Unmarshal(e.Headers, &headers); err != nil {
		return map[string]string{}
	}

	return headers
}
