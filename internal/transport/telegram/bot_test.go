package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sakashimaa/paybot/internal/receipt"
	"github.com/sakashimaa/paybot/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func command(text string) *tgbotapi.Message {
	length := len(text)
	if i := strings.IndexByte(text, ' '); i >= 0 {
		length = i
	}

	return &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 100, FirstName: "Ada"},
		Chat:     &tgbotapi.Chat{ID: 100, Type: "private"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func TestToEvent_Commands(t *testing.T) {
	tests := []struct {
		text string
		want service.EventType
	}{
		{"/start", service.EventStart},
		{"/help", service.EventStart},
		{"/pay", service.EventPay},
		{"/cancel", service.EventCancel},
		{"/payments", service.EventPayments},
		{"/history", service.EventPayments},
		{"/export", service.EventExport},
	}

	for _, tt := range tests {
		ev, ok := ToEvent(tgbotapi.Update{Message: command(tt.text)})
		require.True(t, ok, tt.text)
		require.Equal(t, tt.want, ev.Type, tt.text)
		require.Equal(t, int64(100), ev.UserID)
		require.Equal(t, "Ada", ev.FirstName)
	}
}

func TestToEvent_UnknownCommand(t *testing.T) {
	for _, text := range []string{"/refund", "/settings now", "/PAYX"} {
		_, ok := ToEvent(tgbotapi.Update{Message: command(text)})
		require.False(t, ok, text)
	}
}

func TestToEvent_Text(t *testing.T) {
	ev, ok := ToEvent(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 7},
		Chat: &tgbotapi.Chat{ID: 7},
		Text: "25.00",
	}})
	require.True(t, ok)
	require.Equal(t, service.EventText, ev.Type)
	require.Equal(t, "25.00", ev.Payload)
}

func TestToEvent_Callback(t *testing.T) {
	ev, ok := ToEvent(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: &tgbotapi.User{ID: 7},
		Data: "check_pi_abc",
	}})
	require.True(t, ok)
	require.Equal(t, service.EventCheck, ev.Type)
	require.Equal(t, "pi_abc", ev.Payload)

	_, ok = ToEvent(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: &tgbotapi.User{ID: 7},
		Data: "something_else",
	}})
	require.False(t, ok)
}

func TestToEvent_Ignored(t *testing.T) {
	_, ok := ToEvent(tgbotapi.Update{})
	require.False(t, ok)

	_, ok = ToEvent(tgbotapi.Update{Message: &tgbotapi.Message{Text: "channel post"}})
	require.False(t, ok)
}

func TestCheckCodec(t *testing.T) {
	short := service.Action{Kind: service.ActionCheckStatus, ProcessorID: "pi_abc", SequenceID: 3}
	data := EncodeCheck(short)
	require.Equal(t, "check_pi_abc", data)

	ref, ok := DecodeCheck(data)
	require.True(t, ok)
	require.Equal(t, "pi_abc", ref)

	long := service.Action{
		Kind:        service.ActionCheckStatus,
		ProcessorID: "cs_test_" + strings.Repeat("a", 60),
		SequenceID:  42,
	}
	data = EncodeCheck(long)
	require.Equal(t, "check#42", data)
	require.LessOrEqual(t, len(data), maxCallbackData)

	ref, ok = DecodeCheck(data)
	require.True(t, ok)
	require.Equal(t, "#42", ref)

	for _, bad := range []string{"check_", "check#x", "pay_1", ""} {
		_, ok := DecodeCheck(bad)
		require.False(t, ok, bad)
	}
}

func TestKeyboard(t *testing.T) {
	markup := Keyboard([]service.Action{
		{Kind: service.ActionOpenURL, Label: "Pay now", URL: "https://pay/abc"},
		{Kind: service.ActionCheckStatus, Label: "Check status", ProcessorID: "pi_abc"},
	})

	require.Len(t, markup.InlineKeyboard, 2)
	require.Equal(t, "https://pay/abc", *markup.InlineKeyboard[0][0].URL)
	require.Equal(t, "check_pi_abc", *markup.InlineKeyboard[1][0].CallbackData)
}

func TestSplitMessage(t *testing.T) {
	require.Equal(t, []string{"short"}, splitMessage("short", 10))

	chunks := splitMessage("aaaa\nbbbb\ncccc\n", 10)
	require.Equal(t, []string{"aaaa\nbbbb\n", "cccc\n"}, chunks)

	chunks = splitMessage(strings.Repeat("é", 25), 10)
	require.Len(t, chunks, 3)
	require.Equal(t, strings.Repeat("é", 5), chunks[2])
}

type apiCall struct {
	method string
	values map[string]string
}

func newTestAPI(t *testing.T) (*tgbotapi.BotAPI, func() []apiCall) {
	t.Helper()

	var (
		mu    sync.Mutex
		calls []apiCall
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

		values := map[string]string{}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			for k, v := range r.MultipartForm.Value {
				values[k] = v[0]
			}
			for k, files := range r.MultipartForm.File {
				f, err := files[0].Open()
				require.NoError(t, err)
				body, err := io.ReadAll(f)
				require.NoError(t, err)
				values[k] = files[0].Filename + ":" + string(body)
			}
		} else {
			require.NoError(t, r.ParseForm())
			for k, v := range r.PostForm {
				values[k] = v[0]
			}
		}

		mu.Lock()
		calls = append(calls, apiCall{method: method, values: values})
		mu.Unlock()

		var result any
		switch method {
		case "getMe":
			result = map[string]any{"id": 1, "is_bot": true, "first_name": "paybot", "username": "paybot"}
		default:
			result = map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 100, "type": "private"}}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	}))
	t.Cleanup(srv.Close)

	api, err := tgbotapi.NewBotAPIWithClient("test-token", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	return api, func() []apiCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]apiCall(nil), calls...)
	}
}

func TestBot_SendText(t *testing.T) {
	api, calls := newTestAPI(t)
	bot := newBot(api, 1, zap.NewNop())
	require.Equal(t, "paybot", bot.Username())

	err := bot.SendText(context.Background(), 100, "Payment created.",
		service.Action{Kind: service.ActionOpenURL, Label: "Pay now", URL: "https://pay/abc"},
		service.Action{Kind: service.ActionCheckStatus, Label: "Check status", ProcessorID: "pi_abc"},
	)
	require.NoError(t, err)

	got := calls()
	last := got[len(got)-1]
	require.Equal(t, "sendMessage", last.method)
	require.Equal(t, "100", last.values["chat_id"])
	require.Equal(t, "Payment created.", last.values["text"])
	require.Contains(t, last.values["reply_markup"], "check_pi_abc")
	require.Contains(t, last.values["reply_markup"], "https://pay/abc")
}

func TestBot_SendDocument(t *testing.T) {
	api, calls := newTestAPI(t)
	bot := newBot(api, 1, zap.NewNop())

	err := bot.SendDocument(context.Background(), 100, &receipt.Document{
		Name:        "receipt_pi_abc.pdf",
		ContentType: receipt.ContentTypePDF,
		Bytes:       []byte("%PDF-1.3"),
	}, "Payment successful!")
	require.NoError(t, err)

	got := calls()
	last := got[len(got)-1]
	require.Equal(t, "sendDocument", last.method)
	require.Equal(t, "100", last.values["chat_id"])
	require.Equal(t, "Payment successful!", last.values["caption"])
	require.Equal(t, "receipt_pi_abc.pdf:%PDF-1.3", last.values["document"])
}

func TestBot_SendTextCancelled(t *testing.T) {
	api, _ := newTestAPI(t)
	bot := newBot(api, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, bot.SendText(ctx, 100, "hi"), context.Canceled)
}
