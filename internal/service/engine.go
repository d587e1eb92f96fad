package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/sakashimaa/paybot/internal/processor"
	"github.com/sakashimaa/paybot/internal/receipt"
	"github.com/sakashimaa/paybot/internal/session"
	"github.com/sakashimaa/paybot/pkg/mylogger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type EventType string

const (
	EventStart    EventType = "start"
	EventPay      EventType = "pay"
	EventCancel   EventType = "cancel"
	EventPayments EventType = "payments"
	EventExport   EventType = "export"
	EventText     EventType = "text"
	EventCheck    EventType = "check"
)

// Event is one incoming user interaction. For EventCheck the payload is a
// processor id or "#<sequence id>".
type Event struct {
	Type      EventType
	UserID    int64
	FirstName string
	Payload   string
}

type ActionKind int

const (
	ActionOpenURL ActionKind = iota
	ActionCheckStatus
)

// Action is a button attached to an outgoing message.
type Action struct {
	Kind  ActionKind
	Label string
	URL   string

	ProcessorID string
	SequenceID  int64
}

type Messenger interface {
	SendText(ctx context.Context, userID int64, text string, actions ...Action) error
	SendDocument(ctx context.Context, userID int64, doc *receipt.Document, caption string) error
}

type PaymentProcessor interface {
	Provider() string
	CreatePayment(ctx context.Context, amount decimal.Decimal, description string) (*processor.Checkout, error)
	CheckStatus(ctx context.Context, processorID string) domain.Status
}

type ReceiptGenerator interface {
	Generate(ctx context.Context, record *domain.PaymentRecord) (*receipt.Document, error)
	Discard(ctx context.Context, doc *receipt.Document) error
}

// Recorder receives business counters.
type Recorder interface {
	PaymentCreated(provider, outcome string)
	StatusChecked(status string)
	ReceiptDelivered(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) PaymentCreated(string, string) {}
func (nopRecorder) StatusChecked(string)          {}
func (nopRecorder) ReceiptDelivered(string)       {}

type EngineOption func(*ConversationEngine)

func WithRecorder(r Recorder) EngineOption {
	return func(e *ConversationEngine) {
		if r != nil {
			e.recorder = r
		}
	}
}

type ConversationEngine struct {
	sessions  session.Store
	store     PaymentStore
	processor PaymentProcessor
	receipts  ReceiptGenerator
	messenger Messenger
	recorder  Recorder
	maxAmount decimal.Decimal
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewConversationEngine(
	sessions session.Store,
	store PaymentStore,
	proc PaymentProcessor,
	receipts ReceiptGenerator,
	messenger Messenger,
	maxAmount decimal.Decimal,
	logger *zap.Logger,
	opts ...EngineOption,
) *ConversationEngine {
	e := &ConversationEngine{
		sessions:  sessions,
		store:     store,
		processor: proc,
		receipts:  receipts,
		messenger: messenger,
		recorder:  nopRecorder{},
		maxAmount: AmountCeiling(maxAmount),
		logger:    logger,
		tracer:    otel.Tracer("service/conversation_engine"),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Handle runs one event to completion. The returned error is only non-nil when
// the reply could not be delivered; every other failure is reported to the
// user and logged.
func (e *ConversationEngine) Handle(ctx context.Context, ev Event) error {
	ctx, span := e.tracer.Start(ctx, "ConversationEngine.Handle")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_type", string(ev.Type)),
		attribute.Int64("user_id", ev.UserID),
	)

	var err error
	switch ev.Type {
	case EventStart:
		err = e.reply(ctx, ev.UserID, fmt.Sprintf(msgGreeting, greetingName(ev.FirstName)))
	case EventPay:
		err = e.startFlow(ctx, ev)
	case EventCancel:
		err = e.cancelFlow(ctx, ev)
	case EventText:
		err = e.handleText(ctx, ev)
	case EventCheck:
		err = e.reconcile(ctx, ev)
	case EventPayments:
		err = e.history(ctx, ev)
	case EventExport:
		err = e.export(ctx, ev)
	default:
		err = fmt.Errorf("unknown event type %q", ev.Type)
	}

	if err != nil {
		span.RecordError(err)
	}

	return err
}

// startFlow discards any flow already in progress.
func (e *ConversationEngine) startFlow(ctx context.Context, ev Event) error {
	if prev, err := e.sessions.Get(ctx, ev.UserID); err == nil {
		mylogger.Debug(
			ctx,
			e.logger,
			"Resetting conversation",
			zap.Int64("user_id", ev.UserID),
			zap.String("flow_id", prev.FlowID),
			zap.String("state", string(prev.State)),
		)
	}

	conv := &domain.Conversation{
		FlowID: uuid.NewString(),
		UserID: ev.UserID,
		State:  domain.StateAwaitingAmount,
	}

	if err := e.sessions.Save(ctx, conv); err != nil {
		mylogger.Error(
			ctx,
			e.logger,
			"Failed to save conversation",
			zap.Int64("user_id", ev.UserID),
			zap.Error(err),
		)

		return e.reply(ctx, ev.UserID, msgSomethingWrong)
	}

	return e.reply(ctx, ev.UserID, msgAskAmount)
}

func (e *ConversationEngine) cancelFlow(ctx context.Context, ev Event) error {
	if err := e.sessions.Delete(ctx, ev.UserID); err != nil {
		mylogger.Error(
			ctx,
			e.logger,
			"Failed to delete conversation",
			zap.Int64("user_id", ev.UserID),
			zap.Error(err),
		)
	}

	return e.reply(ctx, ev.UserID, msgCancelled)
}

func (e *ConversationEngine) handleText(ctx context.Context, ev Event) error {
	conv, err := e.sessions.Get(ctx, ev.UserID)
	if err != nil {
		if errors.Is(err, session.ErrNoConversation) {
			return e.reply(ctx, ev.UserID, msgIdleHint)
		}

		mylogger.Error(
			ctx,
			e.logger,
			"Failed to load conversation",
			zap.Int64("user_id", ev.UserID),
			zap.Error(err),
		)

		return e.reply(ctx, ev.UserID, msgSomethingWrong)
	}

	switch conv.State {
	case domain.StateAwaitingAmount:
		return e.acceptAmount(ctx, conv, ev.Payload)
	case domain.StateAwaitingDescription:
		return e.acceptDescription(ctx, conv, ev.Payload)
	default:
		return e.reply(ctx, ev.UserID, msgIdleHint)
	}
}

func (e *ConversationEngine) acceptAmount(ctx context.Context, conv *domain.Conversation, input string) error {
	amount, err := ParseAmount(input, e.maxAmount)
	if err != nil {
		mylogger.Debug(
			ctx,
			e.logger,
			"Rejected amount input",
			zap.Int64("user_id", conv.UserID),
			zap.Error(err),
		)

		switch {
		case errors.Is(err, ErrAmountNotPositive):
			return e.reply(ctx, conv.UserID, msgAmountPositive)
		case errors.Is(err, ErrAmountTooLarge):
			return e.reply(ctx, conv.UserID, fmt.Sprintf(msgAmountTooLarge, e.maxAmount.StringFixed(2)))
		default:
			return e.reply(ctx, conv.UserID, msgInvalidAmount)
		}
	}

	conv.Amount = amount
	conv.State = domain.StateAwaitingDescription

	if err := e.sessions.Save(ctx, conv); err != nil {
		mylogger.Error(
			ctx,
			e.logger,
			"Failed to save conversation",
			zap.Int64("user_id", conv.UserID),
			zap.Error(err),
		)

		return e.reply(ctx, conv.UserID, msgSomethingWrong)
	}

	return e.reply(ctx, conv.UserID, msgAskDescription)
}

// acceptDescription always ends the flow, whatever the outcome. The text is
// stored verbatim; the processor client substitutes a default label when
// nothing printable is left.
func (e *ConversationEngine) acceptDescription(ctx context.Context, conv *domain.Conversation, description string) error {
	if err := e.sessions.Delete(ctx, conv.UserID); err != nil {
		mylogger.Warn(
			ctx,
			e.logger,
			"Failed to delete conversation",
			zap.Int64("user_id", conv.UserID),
			zap.Error(err),
		)
	}

	checkout, err := e.processor.CreatePayment(ctx, conv.Amount, description)
	if err != nil {
		mylogger.Error(
			ctx,
			e.logger,
			"Failed to create payment",
			zap.Int64("user_id", conv.UserID),
			zap.String("flow_id", conv.FlowID),
			zap.String("amount", conv.Amount.StringFixed(2)),
			zap.Error(err),
		)

		if errors.Is(err, processor.ErrRejected) {
			e.recorder.PaymentCreated(e.processor.Provider(), "rejected")
			return e.reply(ctx, conv.UserID, msgRejected)
		}
		e.recorder.PaymentCreated(e.processor.Provider(), "failed")
		return e.reply(ctx, conv.UserID, msgCreateFailed)
	}

	record := &domain.PaymentRecord{
		OwnerID:            conv.UserID,
		ProcessorPaymentID: checkout.ProcessorID,
		Provider:           checkout.Provider,
		Amount:             conv.Amount,
		Description:        description,
		Status:             domain.StatusPending,
	}

	if err := e.store.Insert(ctx, record); err != nil {
		// The remote payment exists but has no local record.
		mylogger.Error(
			ctx,
			e.logger,
			"Failed to persist created payment",
			zap.Int64("user_id", conv.UserID),
			zap.String("processor_payment_id", checkout.ProcessorID),
			zap.String("provider", checkout.Provider),
			zap.Error(err),
		)
		e.recorder.PaymentCreated(checkout.Provider, "not_persisted")

		return e.reply(ctx, conv.UserID, msgCreateFailed)
	}

	e.recorder.PaymentCreated(checkout.Provider, "created")

	mylogger.Info(
		ctx,
		e.logger,
		"Payment created",
		zap.Int64("user_id", conv.UserID),
		zap.String("processor_payment_id", record.ProcessorPaymentID),
		zap.String("amount", record.Amount.StringFixed(2)),
	)

	return e.reply(
		ctx,
		conv.UserID,
		fmt.Sprintf(msgPaymentCreated, record.Amount.StringFixed(2), record.Description),
		Action{Kind: ActionOpenURL, Label: btnPay, URL: checkout.PaymentURL},
		checkAction(record),
	)
}

func (e *ConversationEngine) history(ctx context.Context, ev Event) error {
	records, err := e.store.ListByOwner(ctx, ev.UserID)
	if err != nil {
		mylogger.Error(
			ctx,
			e.logger,
			"Failed to list payments",
			zap.Int64("user_id", ev.UserID),
			zap.Error(err),
		)

		return e.reply(ctx, ev.UserID, msgSomethingWrong)
	}

	if len(records) == 0 {
		return e.reply(ctx, ev.UserID, msgNoPayments)
	}

	var b strings.Builder
	b.WriteString(msgHistoryHeader)
	for i := range records {
		r := &records[i]
		fmt.Fprintf(&b, msgHistoryLine,
			r.ShortID(),
			r.Amount.StringFixed(2),
			r.Description,
			r.Status,
			r.CreatedAt.UTC().Format("2006-01-02 15:04"),
		)
	}

	return e.reply(ctx, ev.UserID, b.String())
}

func (e *ConversationEngine) export(ctx context.Context, ev Event) error {
	records, err := e.store.ListByOwner(ctx, ev.UserID)
	if err != nil {
		mylogger.Error(
			ctx,
			e.logger,
			"Failed to list payments",
			zap.Int64("user_id", ev.UserID),
			zap.Error(err),
		)

		return e.reply(ctx, ev.UserID, msgSomethingWrong)
	}

	if len(records) == 0 {
		return e.reply(ctx, ev.UserID, msgNoPayments)
	}

	doc, err := receipt.RenderStatement(ev.UserID, records, e.now())
	if err != nil {
		mylogger.Error(
			ctx,
			e.logger,
			"Failed to render statement",
			zap.Int64("user_id", ev.UserID),
			zap.Error(err),
		)

		return e.reply(ctx, ev.UserID, msgExportFailed)
	}

	return e.messenger.SendDocument(ctx, ev.UserID, doc, fmt.Sprintf("%d payments", len(records)))
}

func (e *ConversationEngine) reply(ctx context.Context, userID int64, text string, actions ...Action) error {
	if err := e.messenger.SendText(ctx, userID, text, actions...); err != nil {
		return fmt.Errorf("error sending message to %d: %w", userID, err)
	}
	return nil
}

func checkAction(record *domain.PaymentRecord) Action {
	return Action{
		Kind:        ActionCheckStatus,
		Label:       btnCheck,
		ProcessorID: record.ProcessorPaymentID,
		SequenceID:  record.SequenceID,
	}
}

func greetingName(firstName string) string {
	if name := strings.TrimSpace(firstName); name != "" {
		return name
	}
	return "there"
}
