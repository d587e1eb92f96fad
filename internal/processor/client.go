package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/sakashimaa/paybot/pkg/mylogger"
	"github.com/sakashimaa/paybot/pkg/utils"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Client struct {
	provider Provider
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewClient(provider Provider, timeout time.Duration, logger *zap.Logger) *Client {
	breaker := utils.NewBreaker(
		"processor-"+provider.Name(),
		logger,
		utils.WithSuccessFilter(func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		}),
	)

	return &Client{
		provider: provider,
		timeout:  timeout,
		breaker:  breaker,
		logger:   logger,
		tracer:   otel.Tracer("processor/client"),
	}
}

func (c *Client) Provider() string {
	return c.provider.Name()
}

// CreatePayment creates a remote checkout. Returned errors wrap ErrRejected or
// ErrUnavailable.
func (c *Client) CreatePayment(ctx context.Context, amount decimal.Decimal, description string) (*Checkout, error) {
	ctx, span := c.tracer.Start(ctx, "ProcessorClient.CreatePayment")
	defer span.End()

	span.SetAttributes(
		attribute.String("provider", c.provider.Name()),
		attribute.String("amount", amount.StringFixed(2)),
	)

	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := CheckoutRequest{
		Amount:         amount.Round(2),
		Description:    SanitizeDescription(description),
		IdempotencyKey: uuid.NewString(),
	}

	remote, err := utils.ExecuteWithBreaker(c.breaker, func() (*RemoteCheckout, error) {
		return c.provider.CreateCheckout(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Warn(
			ctx,
			c.logger,
			"Processor failed to create checkout",
			zap.String("provider", c.provider.Name()),
			zap.Error(err),
		)

		return nil, classify(err)
	}

	span.SetAttributes(attribute.String("processor_payment_id", remote.ID))

	return &Checkout{
		ProcessorID: remote.ID,
		PaymentURL:  remote.URL,
		Provider:    c.provider.Name(),
		Amount:      amount,
		Description: description,
	}, nil
}

// CheckStatus never fails; anything that goes wrong is reported as StatusError.
func (c *Client) CheckStatus(ctx context.Context, processorID string) domain.Status {
	ctx, span := c.tracer.Start(ctx, "ProcessorClient.CheckStatus")
	defer span.End()

	span.SetAttributes(attribute.String("processor_payment_id", processorID))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status, err := utils.ExecuteWithBreaker(c.breaker, func() (domain.Status, error) {
		return c.provider.PaymentStatus(ctx, processorID)
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Warn(
			ctx,
			c.logger,
			"Processor status check failed",
			zap.String("provider", c.provider.Name()),
			zap.String("processor_payment_id", processorID),
			zap.Error(err),
		)

		return domain.StatusError
	}

	if !status.Valid() {
		return domain.StatusError
	}

	return status
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrRejected), errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timeout: %w", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}
