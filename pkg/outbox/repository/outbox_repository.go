package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/paybot/pkg/mylogger"
	"github.com/sakashimaa/paybot/pkg/outbox/domain"
	"github.com/sakashimaa/paybot/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Retries wait 1s, 2s, 4s... capped at maxBackoff.
const maxBackoff = 5 * time.Minute

type outboxRepo struct {
	tracer trace.Tracer
	logger *zap.Logger
}

// NewOutboxRepository returns a repository whose methods all run inside the
// caller's transaction.
func NewOutboxRepository(logger *zap.Logger) worker.OutboxRepository {
	return &outboxRepo{
		tracer: otel.Tracer("repository/outbox_repo"),
		logger: logger,
	}
}

func (r *outboxRepo) SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.SaveOutboxEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("aggregate_id", event.AggregateID),
		attribute.String("event_type", event.EventType),
	)

	query := `
		INSERT INTO outbox (aggregate_type, aggregate_id, event_type, payload, headers, topic)
		VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::jsonb), $6)
		RETURNING id, created_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		event.Payload,
		event.Headers,
		event.Topic,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			r.logger,
			"Save outbox event failed",
			zap.String("aggregate_id", event.AggregateID),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)

		return fmt.Errorf("error saving %s event: %w", event.EventType, err)
	}

	return nil
}

// ClaimDueEvents locks up to batchSize unpublished events whose retry time has
// come. Concurrent relays skip rows another relay holds.
func (r *outboxRepo) ClaimDueEvents(ctx context.Context, tx pgx.Tx, batchSize int) ([]*domain.OutboxEvent, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.ClaimDueEvents")
	defer span.End()

	span.SetAttributes(attribute.Int("batch_size", batchSize))

	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, headers, topic, created_at, attempts
		FROM outbox
		WHERE published_at IS NULL
			AND attempts < $2
			AND next_attempt_at <= NOW()
		ORDER BY id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query, batchSize, worker.MaxAttempts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query due events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.OutboxEvent, error) {
		var e domain.OutboxEvent
		err := row.Scan(
			&e.ID,
			&e.AggregateType,
			&e.AggregateID,
			&e.EventType,
			&e.Payload,
			&e.Headers,
			&e.Topic,
			&e.CreatedAt,
			&e.Attempts,
		)
		return &e, err
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error scanning outbox events: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(events)))

	return events, nil
}

func (r *outboxRepo) MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.MarkEventPublished")
	defer span.End()

	span.SetAttributes(attribute.Int64("event_id", eventID))

	query := `
		UPDATE outbox
		SET published_at = NOW(), last_error = NULL
		WHERE id = $1
	`

	if _, err := tx.Exec(ctx, query, eventID); err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, r.logger, "Mark outbox event published failed", zap.Int64("event_id", eventID), zap.Error(err))

		return fmt.Errorf("error marking event %d published: %w", eventID, err)
	}

	return nil
}

// ScheduleRetry records a failed delivery and pushes the next attempt back
// exponentially. It returns the attempt count after the failure.
func (r *outboxRepo) ScheduleRetry(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) (int, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.ScheduleRetry")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.String("outbox.error_message", errMsg),
	)

	query := `
		UPDATE outbox
		SET last_error = $1,
			attempts = attempts + 1,
			next_attempt_at = NOW() + make_interval(secs => LEAST(POWER(2, attempts), $3::float8))
		WHERE id = $2
		RETURNING attempts
	`

	var attempts int
	if err := tx.QueryRow(ctx, query, errMsg, eventID, maxBackoff.Seconds()).Scan(&attempts); err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, r.logger, "Schedule outbox retry failed", zap.Int64("event_id", eventID), zap.Error(err))

		return 0, fmt.Errorf("error scheduling retry of event %d: %w", eventID, err)
	}

	span.SetAttributes(attribute.Int("attempts", attempts))

	return attempts, nil
}
