package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/sakashimaa/paybot/internal/repository"
	"github.com/sakashimaa/paybot/pkg/mylogger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// reconcile pulls the processor status, stores it and, on success, delivers
// the receipt. A receipt is sent at most once per payment; later checks only
// confirm.
func (e *ConversationEngine) reconcile(ctx context.Context, ev Event) error {
	ctx, span := e.tracer.Start(ctx, "ConversationEngine.reconcile")
	defer span.End()

	record, err := e.lookupOwned(ctx, ev.UserID, ev.Payload)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return e.reply(ctx, ev.UserID, msgNotFound)
		}

		span.RecordError(err)
		mylogger.Error(
			ctx,
			e.logger,
			"Failed to load payment",
			zap.Int64("user_id", ev.UserID),
			zap.String("ref", ev.Payload),
			zap.Error(err),
		)

		return e.reply(ctx, ev.UserID, msgStatusFailed)
	}

	processorID := record.ProcessorPaymentID
	span.SetAttributes(attribute.String("processor_payment_id", processorID))

	status := e.processor.CheckStatus(ctx, processorID)
	span.SetAttributes(attribute.String("status", string(status)))
	e.recorder.StatusChecked(string(status))

	if err := e.store.UpdateStatus(ctx, processorID, status); err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			e.logger,
			"Failed to store payment status",
			zap.String("processor_payment_id", processorID),
			zap.String("status", string(status)),
			zap.Error(err),
		)

		return e.reply(ctx, ev.UserID, msgStatusFailed)
	}

	mylogger.Info(
		ctx,
		e.logger,
		"Payment status reconciled",
		zap.String("processor_payment_id", processorID),
		zap.String("from", string(record.Status)),
		zap.String("to", string(status)),
	)

	switch status {
	case domain.StatusSucceeded:
		return e.deliverReceipt(ctx, ev.UserID, processorID)
	case domain.StatusPending:
		return e.reply(ctx, ev.UserID, msgPending, checkAction(record))
	default:
		return e.reply(ctx, ev.UserID, fmt.Sprintf(msgNotSucceeded, status))
	}
}

func (e *ConversationEngine) deliverReceipt(ctx context.Context, userID int64, processorID string) error {
	record, err := e.store.GetByProcessorID(ctx, processorID)
	if err != nil {
		mylogger.Error(
			ctx,
			e.logger,
			"Failed to reload payment",
			zap.String("processor_payment_id", processorID),
			zap.Error(err),
		)

		return e.reply(ctx, userID, msgStatusFailed)
	}

	amount := record.Amount.StringFixed(2)

	if record.ReceiptIssued() {
		e.recorder.ReceiptDelivered("already_issued")
		return e.reply(ctx, userID, fmt.Sprintf(msgAlreadyReceipted, amount, record.Description))
	}

	doc, err := e.receipts.Generate(ctx, record)
	if err != nil {
		mylogger.Error(
			ctx,
			e.logger,
			"Failed to generate receipt",
			zap.String("processor_payment_id", processorID),
			zap.Error(err),
		)
		e.recorder.ReceiptDelivered("failed")

		return e.reply(ctx, userID, msgReceiptFailed)
	}

	if err := e.messenger.SendDocument(ctx, userID, doc, fmt.Sprintf(msgPaid, amount, record.Description)); err != nil {
		e.recorder.ReceiptDelivered("failed")

		// Nothing is marked, so the next check renders the receipt again.
		if derr := e.receipts.Discard(context.WithoutCancel(ctx), doc); derr != nil {
			mylogger.Warn(
				ctx,
				e.logger,
				"Failed to discard undelivered receipt",
				zap.String("processor_payment_id", processorID),
				zap.Error(derr),
			)
		}

		return fmt.Errorf("error sending receipt to %d: %w", userID, err)
	}
	e.recorder.ReceiptDelivered("sent")

	if err := e.store.MarkReceiptIssued(ctx, processorID, doc.Location); err != nil {
		mylogger.Warn(
			ctx,
			e.logger,
			"Receipt sent but not marked as issued",
			zap.String("processor_payment_id", processorID),
			zap.Error(err),
		)
	}

	return nil
}

// lookupOwned resolves a check reference and hides other users' payments.
func (e *ConversationEngine) lookupOwned(ctx context.Context, userID int64, ref string) (*domain.PaymentRecord, error) {
	processorID, err := ParseCheckRef(ctx, e.store, ref)
	if err != nil {
		return nil, err
	}

	record, err := e.store.GetByProcessorID(ctx, processorID)
	if err != nil {
		return nil, err
	}

	if record.OwnerID != userID {
		return nil, repository.ErrPaymentNotFound
	}

	return record, nil
}
