package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

func TestStripeStatus(t *testing.T) {
	tests := []struct {
		status  stripe.CheckoutSessionStatus
		payment stripe.CheckoutSessionPaymentStatus
		want    domain.Status
	}{
		{stripe.CheckoutSessionStatusComplete, stripe.CheckoutSessionPaymentStatusPaid, domain.StatusSucceeded},
		{stripe.CheckoutSessionStatusComplete, stripe.CheckoutSessionPaymentStatusNoPaymentRequired, domain.StatusSucceeded},
		{stripe.CheckoutSessionStatusOpen, stripe.CheckoutSessionPaymentStatusUnpaid, domain.StatusPending},
		{stripe.CheckoutSessionStatusExpired, stripe.CheckoutSessionPaymentStatusUnpaid, domain.StatusFailed},
		{stripe.CheckoutSessionStatusOpen, "", domain.StatusFailed},
		{stripe.CheckoutSessionStatusComplete, "refunded", domain.StatusFailed},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, stripeStatus(tt.status, tt.payment), "%s/%s", tt.status, tt.payment)
	}
}

func TestStripeProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
			require.NoError(t, r.ParseForm())
			if r.PostForm.Get("line_items[0][price_data][product_data][name]") == "reject" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid string"}}`))
				return
			}
			require.Equal(t, "2500", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
			require.Equal(t, "usd", r.PostForm.Get("line_items[0][price_data][currency]"))
			_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1","status":"open","payment_status":"unpaid"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/checkout/sessions/cs_test_1":
			_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","status":"complete","payment_status":"paid"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"not found"}}`))
		}
	}))
	defer srv.Close()

	provider := NewStripeProvider(StripeConfig{
		APIKey:     "sk_test_123",
		SuccessURL: "https://example.com/ok",
		CancelURL:  "https://example.com/cancel",
		BaseURL:    srv.URL,
	}, srv.Client())

	ctx := context.Background()

	checkout, err := provider.CreateCheckout(ctx, CheckoutRequest{
		Amount:         decimal.RequireFromString("25.00"),
		Description:    "Consulting",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	require.Equal(t, "cs_test_1", checkout.ID)
	require.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", checkout.URL)

	status, err := provider.PaymentStatus(ctx, "cs_test_1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, status)

	_, err = provider.CreateCheckout(ctx, CheckoutRequest{
		Amount:         decimal.RequireFromString("25.00"),
		Description:    "reject",
		IdempotencyKey: "key-2",
	})
	require.ErrorIs(t, err, ErrRejected)
}
