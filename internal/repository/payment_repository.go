package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/sakashimaa/paybot/pkg/mylogger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

type PaymentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, payment *domain.PaymentRecord) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, processorID string, status domain.Status) (*domain.PaymentRecord, domain.Status, error)
	MarkReceiptIssued(ctx context.Context, tx pgx.Tx, processorID string, at time.Time) (int64, error)
	GetByProcessorID(ctx context.Context, processorID string) (*domain.PaymentRecord, error)
	GetBySequenceID(ctx context.Context, id int64) (*domain.PaymentRecord, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.PaymentRecord, error)
}

type paymentRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPaymentRepository(pool *pgxpool.Pool, logger *zap.Logger) PaymentRepository {
	return &paymentRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/payment_repo"),
	}
}

const selectColumns = `
	id, owner_id, processor_payment_id, provider, amount::text, description,
	status, receipt_issued_at, created_at, updated_at
`

func (r *paymentRepo) Create(ctx context.Context, tx pgx.Tx, payment *domain.PaymentRecord) error {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("processor_payment_id", payment.ProcessorPaymentID),
		attribute.Int64("owner_id", payment.OwnerID),
		attribute.String("amount", payment.Amount.StringFixed(2)),
	)

	query := `
		INSERT INTO payments (owner_id, processor_payment_id, provider, amount, description, status)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		RETURNING id, created_at, updated_at
	`

	if err := tx.QueryRow(ctx, query,
		payment.OwnerID,
		payment.ProcessorPaymentID,
		payment.Provider,
		payment.Amount.StringFixed(2),
		payment.Description,
		string(payment.Status),
	).Scan(
		&payment.SequenceID,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	); err != nil {
		span.RecordError(err)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			mylogger.Warn(ctx, r.logger, "Payment already exists",
				zap.String("processor_payment_id", payment.ProcessorPaymentID),
			)
			return ErrPaymentAlreadyExists
		}

		mylogger.Error(ctx, r.logger, "Create payment failed", zap.Error(err))

		return fmt.Errorf("error creating payment: %w", err)
	}

	return nil
}

// UpdateStatus overwrites the status and returns the updated record with the status it replaced.
func (r *paymentRepo) UpdateStatus(
	ctx context.Context,
	tx pgx.Tx,
	processorID string,
	status domain.Status,
) (*domain.PaymentRecord, domain.Status, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("processor_payment_id", processorID),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE payments p
		SET status = $1, updated_at = NOW()
		FROM (
			SELECT id, status AS previous_status
			FROM payments
			WHERE processor_payment_id = $2
			FOR UPDATE
		) prev
		WHERE p.id = prev.id
		RETURNING p.id, p.owner_id, p.processor_payment_id, p.provider, p.amount::text, p.description,
			p.status, p.receipt_issued_at, p.created_at, p.updated_at, prev.previous_status
	`

	var previous string
	record, err := scanPayment(tx.QueryRow(ctx, query, string(status), processorID), &previous)
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(ctx, r.logger, "Payment not found", zap.String("processor_payment_id", processorID))
			return nil, "", ErrPaymentNotFound
		}

		mylogger.Error(ctx, r.logger, "UpdateStatus failed",
			zap.String("processor_payment_id", processorID),
			zap.Error(err),
		)

		return nil, "", fmt.Errorf("error updating payment status: %w", err)
	}

	return record, domain.Status(previous), nil
}

// MarkReceiptIssued stamps the receipt time and returns the owner of the payment.
func (r *paymentRepo) MarkReceiptIssued(ctx context.Context, tx pgx.Tx, processorID string, at time.Time) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.MarkReceiptIssued")
	defer span.End()

	span.SetAttributes(attribute.String("processor_payment_id", processorID))

	query := `
		UPDATE payments
		SET receipt_issued_at = $1, updated_at = NOW()
		WHERE processor_payment_id = $2
		RETURNING owner_id
	`

	var ownerID int64
	if err := tx.QueryRow(ctx, query, at, processorID).Scan(&ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrPaymentNotFound
		}

		span.RecordError(err)

		mylogger.Error(ctx, r.logger, "MarkReceiptIssued failed",
			zap.String("processor_payment_id", processorID),
			zap.Error(err),
		)

		return 0, fmt.Errorf("error marking receipt issued: %w", err)
	}

	return ownerID, nil
}

func (r *paymentRepo) GetByProcessorID(ctx context.Context, processorID string) (*domain.PaymentRecord, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.GetByProcessorID")
	defer span.End()

	span.SetAttributes(attribute.String("processor_payment_id", processorID))

	query := `SELECT ` + selectColumns + ` FROM payments WHERE processor_payment_id = $1`

	record, err := scanPayment(r.pool.QueryRow(ctx, query, processorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}

		span.RecordError(err)

		mylogger.Error(ctx, r.logger, "GetByProcessorID failed",
			zap.String("processor_payment_id", processorID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting payment: %w", err)
	}

	return record, nil
}

func (r *paymentRepo) GetBySequenceID(ctx context.Context, id int64) (*domain.PaymentRecord, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.GetBySequenceID")
	defer span.End()

	span.SetAttributes(attribute.Int64("id", id))

	query := `SELECT ` + selectColumns + ` FROM payments WHERE id = $1`

	record, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("error getting payment: %w", err)
	}

	return record, nil
}

func (r *paymentRepo) ListByOwner(ctx context.Context, ownerID int64) ([]domain.PaymentRecord, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.ListByOwner")
	defer span.End()

	span.SetAttributes(attribute.Int64("owner_id", ownerID))

	query := `SELECT ` + selectColumns + `
		FROM payments
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(ctx, r.logger, "Error listing payments",
			zap.Int64("owner_id", ownerID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error selecting payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("error scanning rows: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(payments)))

	return payments, nil
}

func scanPayment(row pgx.Row, extra ...any) (*domain.PaymentRecord, error) {
	var (
		p      domain.PaymentRecord
		amount string
		status string
	)

	dest := []any{
		&p.SequenceID,
		&p.OwnerID,
		&p.ProcessorPaymentID,
		&p.Provider,
		&amount,
		&p.Description,
		&status,
		&p.ReceiptIssuedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	}

	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("error parsing amount %q: %w", amount, err)
	}

	p.Amount = parsed
	p.Status = domain.Status(status)

	return &p, nil
}
