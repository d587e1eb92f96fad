package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type StripeConfig struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
	// BaseURL overrides the API endpoint, used against stripe-mock.
	BaseURL string
}

type stripeProvider struct {
	api        *client.API
	successURL string
	cancelURL  string
}

func NewStripeProvider(cfg StripeConfig, httpClient *http.Client) Provider {
	var backends *stripe.Backends
	if cfg.BaseURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:        stripe.String(cfg.BaseURL),
			HTTPClient: httpClient,
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	} else {
		backends = stripe.NewBackends(httpClient)
	}

	return &stripeProvider{
		api:        client.New(cfg.APIKey, backends),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}
}

func (p *stripeProvider) Name() string {
	return "stripe"
}

func (p *stripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*RemoteCheckout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.successURL),
		CancelURL:  stripe.String(p.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyUSD)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(ToCents(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, stripeError(err)
	}

	return &RemoteCheckout{ID: session.ID, URL: session.URL}, nil
}

func (p *stripeProvider) PaymentStatus(ctx context.Context, id string) (domain.Status, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return domain.StatusError, stripeError(err)
	}

	return stripeStatus(session.Status, session.PaymentStatus), nil
}

func stripeStatus(status stripe.CheckoutSessionStatus, payment stripe.CheckoutSessionPaymentStatus) domain.Status {
	switch payment {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return domain.StatusSucceeded
	}

	if status == stripe.CheckoutSessionStatusExpired {
		return domain.StatusFailed
	}

	if payment == stripe.CheckoutSessionPaymentStatusUnpaid {
		return domain.StatusPending
	}

	// A session that answered with any other payment state did not pay.
	return domain.StatusFailed
}

func stripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeInvalidRequest && stripeErr.HTTPStatusCode < http.StatusInternalServerError {
			return fmt.Errorf("%w: stripe: %s", ErrRejected, stripeErr.Msg)
		}
		return fmt.Errorf("%w: stripe: %s", ErrUnavailable, stripeErr.Msg)
	}

	return fmt.Errorf("stripe: %w", err)
}
