package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/paybot/pkg/kafka"
	"github.com/sakashimaa/paybot/pkg/mylogger"
	"github.com/sakashimaa/paybot/pkg/outbox/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MaxAttempts is how many failed deliveries an event gets before the relay
// leaves it in the table for manual inspection.
const MaxAttempts = 10

type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	ClaimDueEvents(ctx context.Context, tx pgx.Tx, batchSize int) ([]*domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error
	ScheduleRetry(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) (int, error)
}

type KafkaProducer interface {
	ProduceMessage(ctx context.Context, msg kafka.Message) error
}

type RelayObserver interface {
	OutboxRelayed(published, failed int)
}

type Option func(*OutboxProcessor)

func WithObserver(o RelayObserver) Option {
	return func(p *OutboxProcessor) {
		p.observer = o
	}
}

func WithBatchSize(n int) Option {
	return func(p *OutboxProcessor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(p *OutboxProcessor) {
		if d > 0 {
			p.interval = d
		}
	}
}

// OutboxProcessor relays committed payment events to Kafka.
type OutboxProcessor struct {
	pool          *pgxpool.Pool
	repo          OutboxRepository
	kafkaProducer KafkaProducer
	observer      RelayObserver
	logger        *zap.Logger
	batchSize     int
	interval      time.Duration
	tracer        trace.Tracer
}

func NewOutboxProcessor(
	pool *pgxpool.Pool,
	repo OutboxRepository,
	producer KafkaProducer,
	logger *zap.Logger,
	opts ...Option,
) *OutboxProcessor {
	p := &OutboxProcessor{
		pool:          pool,
		repo:          repo,
		kafkaProducer: producer,
		logger:        logger,
		batchSize:     50,
		interval:      500 * time.Millisecond,
		tracer:        otel.Tracer("outbox-worker"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start polls until ctx is done.
func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(
		ctx,
		p.logger,
		"Starting outbox processor",
		zap.Duration("interval", p.interval),
		zap.Int("batch_size", p.batchSize),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, p.logger, "Outbox processor stopping")
			return
		case <-ticker.C:
			if _, err := p.RelayBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				mylogger.Error(
					ctx,
					p.logger,
					"Error relaying outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

// RelayBatch publishes one batch of due events and returns how many were
// published. Failed events are rescheduled in the same transaction.
func (p *OutboxProcessor) RelayBatch(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.RelayBatch")
	defer span.End()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	events, err := p.repo.ClaimDueEvents(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}

	if len(events) == 0 {
		return 0, nil
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			attempts, dbErr := p.repo.ScheduleRetry(ctx, tx, event.ID, err.Error())
			if dbErr != nil {
				return 0, dbErr
			}

			log := mylogger.Warn
			if attempts >= MaxAttempts {
				log = mylogger.Error
			}
			log(
				ctx,
				p.logger,
				"Outbox event delivery failed",
				zap.Int64("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.String("aggregate_id", event.AggregateID),
				zap.Int("attempts", attempts),
				zap.Bool("gave_up", attempts >= MaxAttempts),
				zap.Error(err),
			)

			continue
		}

		if err := p.repo.MarkEventPublished(ctx, tx, event.ID); err != nil {
			return 0, err
		}
		published++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("error committing outbox batch: %w", err)
	}

	if p.observer != nil {
		p.observer.OutboxRelayed(published, len(events)-published)
	}

	span.SetAttributes(
		attribute.Int("claimed", len(events)),
		attribute.Int("published", published),
	)

	mylogger.Debug(
		ctx,
		p.logger,
		"Outbox batch relayed",
		zap.Int("claimed", len(events)),
		zap.Int("published", published),
	)

	return published, nil
}

func (p *OutboxProcessor) publish(ctx context.Context, event *domain.OutboxEvent) error {
	origin := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(event.TraceHeaders()))

	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.publish",
		trace.WithLinks(trace.LinkFromContext(origin)),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", event.ID),
		attribute.String("event_type", event.EventType),
	)

	value, err := event.Envelope()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("encode event %d: %w", event.ID, err)
	}

	err = p.kafkaProducer.ProduceMessage(ctx, kafka.Message{
		Topic: event.Topic,
		Key:   event.AggregateID,
		Value: value,
		Headers: map[string]string{
			"event_type": event.EventType,
			"event_id":   strconv.FormatInt(event.ID, 10),
		},
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}
