package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPayPalStatus(t *testing.T) {
	require.Equal(t, domain.StatusSucceeded, paypalStatus("COMPLETED"))
	require.Equal(t, domain.StatusFailed, paypalStatus("VOIDED"))
	require.Equal(t, domain.StatusPending, paypalStatus("CREATED"))
	require.Equal(t, domain.StatusPending, paypalStatus("PAYER_ACTION_REQUIRED"))
	require.Equal(t, domain.StatusError, paypalStatus("SOMETHING_ELSE"))
}

func TestPayPalProvider(t *testing.T) {
	captured := false

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/v1/oauth2/token":
			_, _ = w.Write([]byte(`{"access_token":"token","token_type":"Bearer","expires_in":3600}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v2/checkout/orders":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"CREATED","links":[{"href":"https://www.sandbox.paypal.com/checkoutnow?token=ORDER-1","rel":"approve","method":"GET"}]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v2/checkout/orders/ORDER-1":
			_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"APPROVED"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v2/checkout/orders/ORDER-1/capture":
			captured = true
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"COMPLETED"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"name":"RESOURCE_NOT_FOUND","message":"not found"}`))
		}
	}))
	defer srv.Close()

	provider, err := NewPayPalProvider(PayPalConfig{
		ClientID:  "id",
		Secret:    "secret",
		Sandbox:   true,
		ReturnURL: "https://example.com/ok",
		CancelURL: "https://example.com/cancel",
		BaseURL:   srv.URL,
	}, srv.Client())
	require.NoError(t, err)

	ctx := context.Background()

	checkout, err := provider.CreateCheckout(ctx, CheckoutRequest{
		Amount:         decimal.RequireFromString("10"),
		Description:    "caf",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	require.Equal(t, "ORDER-1", checkout.ID)
	require.Contains(t, checkout.URL, "checkoutnow")

	status, err := provider.PaymentStatus(ctx, "ORDER-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, status)
	require.True(t, captured)

	_, err = provider.PaymentStatus(ctx, "MISSING")
	require.ErrorIs(t, err, ErrUnavailable)
}
