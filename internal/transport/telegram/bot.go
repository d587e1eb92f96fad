package telegram

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sakashimaa/paybot/internal/receipt"
	"github.com/sakashimaa/paybot/internal/service"
	"github.com/sakashimaa/paybot/pkg/config"
	"github.com/sakashimaa/paybot/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxMessageLength = 4096

type Dispatcher interface {
	Dispatch(ctx context.Context, ev service.Event) error
}

type Bot struct {
	api     *tgbotapi.BotAPI
	timeout int
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewBot(cfg config.Telegram, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("error connecting to telegram: %w", err)
	}

	return newBot(api, int(cfg.Timeout.Seconds()), logger), nil
}

func newBot(api *tgbotapi.BotAPI, timeout int, logger *zap.Logger) *Bot {
	return &Bot{
		api:     api,
		timeout: timeout,
		logger:  logger,
		tracer:  otel.Tracer("transport/telegram"),
	}
}

func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Run long-polls updates and hands them to the dispatcher until ctx is done.
func (b *Bot) Run(ctx context.Context, dispatcher Dispatcher) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	mylogger.Info(
		ctx,
		b.logger,
		"Telegram polling started",
		zap.String("username", b.Username()),
	)

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, b.logger, "Telegram polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, dispatcher, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, dispatcher Dispatcher, update tgbotapi.Update) {
	if cq := update.CallbackQuery; cq != nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			mylogger.Warn(ctx, b.logger, "Failed to answer callback query", zap.Error(err))
		}
	}

	ev, ok := ToEvent(update)
	if !ok {
		return
	}

	if err := dispatcher.Dispatch(ctx, ev); err != nil {
		mylogger.Warn(
			ctx,
			b.logger,
			"Failed to dispatch update",
			zap.Int("update_id", update.UpdateID),
			zap.Int64("user_id", ev.UserID),
			zap.Error(err),
		)
	}
}

// ToEvent maps an update to an engine event. Updates the engine does not
// understand are dropped.
func ToEvent(update tgbotapi.Update) (service.Event, bool) {
	if cq := update.CallbackQuery; cq != nil {
		if cq.From == nil {
			return service.Event{}, false
		}

		ref, ok := DecodeCheck(cq.Data)
		if !ok {
			return service.Event{}, false
		}

		return service.Event{
			Type:      service.EventCheck,
			UserID:    cq.From.ID,
			FirstName: cq.From.FirstName,
			Payload:   ref,
		}, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return service.Event{}, false
	}

	ev := service.Event{
		Type:      service.EventText,
		UserID:    msg.From.ID,
		FirstName: msg.From.FirstName,
		Payload:   msg.Text,
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			ev.Type = service.EventStart
		case "pay":
			ev.Type = service.EventPay
		case "cancel":
			ev.Type = service.EventCancel
		case "payments", "history":
			ev.Type = service.EventPayments
		case "export":
			ev.Type = service.EventExport
		default:
			// Unknown commands must not leak into an open amount or description prompt.
			return service.Event{}, false
		}
		ev.Payload = msg.CommandArguments()
	}

	return ev, true
}

func (b *Bot) SendText(ctx context.Context, userID int64, text string, actions ...service.Action) error {
	ctx, span := b.tracer.Start(ctx, "TelegramBot.SendText")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	chunks := splitMessage(text, maxMessageLength)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := tgbotapi.NewMessage(userID, chunk)
		if i == len(chunks)-1 && len(actions) > 0 {
			msg.ReplyMarkup = Keyboard(actions)
		}

		if _, err := b.api.Send(msg); err != nil {
			span.RecordError(err)
			return fmt.Errorf("error sending telegram message: %w", err)
		}
	}

	return nil
}

func (b *Bot) SendDocument(ctx context.Context, userID int64, doc *receipt.Document, caption string) error {
	ctx, span := b.tracer.Start(ctx, "TelegramBot.SendDocument")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.String("document", doc.Name),
	)

	if err := ctx.Err(); err != nil {
		return err
	}

	upload := tgbotapi.NewDocument(userID, tgbotapi.FileBytes{Name: doc.Name, Bytes: doc.Bytes})
	upload.Caption = caption

	if _, err := b.api.Send(upload); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error sending telegram document: %w", err)
	}

	return nil
}

// Keyboard puts each action on its own row.
func Keyboard(actions []service.Action) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(actions))

	for _, action := range actions {
		var button tgbotapi.InlineKeyboardButton
		switch action.Kind {
		case service.ActionOpenURL:
			button = tgbotapi.NewInlineKeyboardButtonURL(action.Label, action.URL)
		case service.ActionCheckStatus:
			button = tgbotapi.NewInlineKeyboardButtonData(action.Label, EncodeCheck(action))
		default:
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button))
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// splitMessage cuts text into pieces of at most limit runes, preferring line breaks.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)

		if size+n > limit {
			flush()
		}

		for n > limit {
			runes := []rune(line)
			chunks = append(chunks, string(runes[:limit]))
			line = string(runes[limit:])
			n -= limit
		}

		current.WriteString(line)
		size += n
	}
	flush()

	return chunks
}
