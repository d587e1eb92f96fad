package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveEvent("pay", 10*time.Millisecond, nil)
	m.ObserveEvent("pay", 10*time.Millisecond, errors.New("boom"))
	m.PaymentCreated("stripe", "created")
	m.PaymentCreated("stripe", "rejected")
	m.StatusChecked("succeeded")
	m.ReceiptDelivered("sent")
	m.OutboxRelayed(3, 1)

	require.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("pay", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("pay", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.paymentsCreated.WithLabelValues("stripe", "rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.statusChecks.WithLabelValues("succeeded")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.receipts.WithLabelValues("sent")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.outboxEvents.WithLabelValues("published")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.outboxEvents.WithLabelValues("failed")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.PaymentCreated("paypal", "created")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Equal(t, 200, rec.Code)
	require.Contains(t, string(body), `paybot_payments_created_total{provider="paypal",result="created"} 1`)
	require.Contains(t, string(body), "go_goroutines")
}
