package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/sakashimaa/paybot/internal/repository"
	"github.com/sakashimaa/paybot/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/paybot/pkg/outbox/domain"
	"github.com/sakashimaa/paybot/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PaymentStore is the persistence boundary of the conversation engine.
type PaymentStore interface {
	Insert(ctx context.Context, record *domain.PaymentRecord) error
	UpdateStatus(ctx context.Context, processorID string, status domain.Status) error
	MarkReceiptIssued(ctx context.Context, processorID, location string) error
	GetByProcessorID(ctx context.Context, processorID string) (*domain.PaymentRecord, error)
	GetBySequenceID(ctx context.Context, id int64) (*domain.PaymentRecord, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.PaymentRecord, error)
}

type paymentStore struct {
	pool        *pgxpool.Pool
	paymentRepo repository.PaymentRepository
	outboxRepo  worker.OutboxRepository
	validate    *validator.Validate
	topic       string
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewPaymentStore(
	pool *pgxpool.Pool,
	paymentRepo repository.PaymentRepository,
	outboxRepo worker.OutboxRepository,
	topic string,
	logger *zap.Logger,
) PaymentStore {
	return &paymentStore{
		pool:        pool,
		paymentRepo: paymentRepo,
		outboxRepo:  outboxRepo,
		validate:    validator.New(),
		topic:       topic,
		logger:      logger,
		tracer:      otel.Tracer("service/payment_store"),
	}
}

func (s *paymentStore) Insert(ctx context.Context, record *domain.PaymentRecord) error {
	ctx, span := s.tracer.Start(ctx, "PaymentStore.Insert")
	defer span.End()

	if err := s.validate.Struct(record); err != nil {
		return fmt.Errorf("invalid payment record: %w", err)
	}
	if !record.Amount.IsPositive() {
		return fmt.Errorf("invalid payment record: %w", ErrAmountNotPositive)
	}

	return s.inTx(ctx, "Insert", func(tx pgx.Tx) error {
		if err := s.paymentRepo.Create(ctx, tx, record); err != nil {
			return err
		}

		return s.emitEvent(ctx, tx, record.ProcessorPaymentID, domain.EventPaymentCreated, domain.PaymentCreatedEvent{
			ProcessorPaymentID: record.ProcessorPaymentID,
			OwnerID:            record.OwnerID,
			Provider:           record.Provider,
			Amount:             record.Amount,
			Currency:           domain.Currency,
			CreatedAt:          record.CreatedAt,
		})
	})
}

// UpdateStatus always writes; an event is emitted only when the status actually moved.
func (s *paymentStore) UpdateStatus(ctx context.Context, processorID string, status domain.Status) error {
	ctx, span := s.tracer.Start(ctx, "PaymentStore.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("processor_payment_id", processorID),
		attribute.String("status", string(status)),
	)

	if !status.Valid() {
		return fmt.Errorf("unknown payment status %q", status)
	}

	return s.inTx(ctx, "UpdateStatus", func(tx pgx.Tx) error {
		record, previous, err := s.paymentRepo.UpdateStatus(ctx, tx, processorID, status)
		if err != nil {
			return err
		}

		if previous == status {
			return nil
		}

		return s.emitEvent(ctx, tx, processorID, domain.EventPaymentStatusChanged, domain.PaymentStatusChangedEvent{
			ProcessorPaymentID: processorID,
			OwnerID:            record.OwnerID,
			From:               previous,
			To:                 status,
			ChangedAt:          record.UpdatedAt,
		})
	})
}

func (s *paymentStore) MarkReceiptIssued(ctx context.Context, processorID, location string) error {
	ctx, span := s.tracer.Start(ctx, "PaymentStore.MarkReceiptIssued")
	defer span.End()

	return s.inTx(ctx, "MarkReceiptIssued", func(tx pgx.Tx) error {
		now := time.Now().UTC()
		ownerID, err := s.paymentRepo.MarkReceiptIssued(ctx, tx, processorID, now)
		if err != nil {
			return err
		}

		return s.emitEvent(ctx, tx, processorID, domain.EventReceiptIssued, domain.ReceiptIssuedEvent{
			ProcessorPaymentID: processorID,
			OwnerID:            ownerID,
			Location:           location,
			IssuedAt:           now,
		})
	})
}

func (s *paymentStore) GetByProcessorID(ctx context.Context, processorID string) (*domain.PaymentRecord, error) {
	return s.paymentRepo.GetByProcessorID(ctx, processorID)
}

func (s *paymentStore) GetBySequenceID(ctx context.Context, id int64) (*domain.PaymentRecord, error) {
	return s.paymentRepo.GetBySequenceID(ctx, id)
}

func (s *paymentStore) ListByOwner(ctx context.Context, ownerID int64) ([]domain.PaymentRecord, error) {
	return s.paymentRepo.ListByOwner(ctx, ownerID)
}

func (s *paymentStore) inTx(ctx context.Context, method string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Error beginning transaction",
			zap.String("method_name", method),
			zap.Error(err),
		)

		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		err := tx.Rollback(cleanupCtx)

		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
				zap.String("method_name", method),
				zap.String("service", "payment_store"),
			)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *paymentStore) emitEvent(ctx context.Context, tx pgx.Tx, processorID, eventType string, payload any) error {
	event, err := outboxDomain.NewOutboxEvent(ctx, s.topic, domain.AggregatePayment, processorID, eventType, payload)
	if err != nil {
		return err
	}

	return s.outboxRepo.SaveOutboxEvent(ctx, tx, event)
}

// ParseCheckRef resolves the "#<sequence id>" form used when a processor id
// does not fit into a chat button payload.
func ParseCheckRef(ctx context.Context, store PaymentStore, ref string) (string, error) {
	if len(ref) == 0 || ref[0] != '#' {
		return ref, nil
	}

	id, err := strconv.ParseInt(ref[1:], 10, 64)
	if err != nil {
		return "", repository.ErrPaymentNotFound
	}

	record, err := store.GetBySequenceID(ctx, id)
	if err != nil {
		return "", err
	}

	return record.ProcessorPaymentID, nil
}
