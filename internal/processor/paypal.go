package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/plutov/paypal/v4"
	"github.com/sakashimaa/paybot/internal/domain"
)

const (
	orderApproved  = "APPROVED"
	orderCompleted = "COMPLETED"
	orderVoided    = "VOIDED"
)

type PayPalConfig struct {
	ClientID  string
	Secret    string
	Sandbox   bool
	ReturnURL string
	CancelURL string
	// BaseURL overrides the sandbox/live endpoint.
	BaseURL string
}

type paypalProvider struct {
	mu        sync.Mutex
	client    *paypal.Client
	returnURL string
	cancelURL string
}

func NewPayPalProvider(cfg PayPalConfig, httpClient *http.Client) (Provider, error) {
	base := paypal.APIBaseLive
	if cfg.Sandbox {
		base = paypal.APIBaseSandBox
	}
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}

	c, err := paypal.NewClient(cfg.ClientID, cfg.Secret, base)
	if err != nil {
		return nil, fmt.Errorf("error creating paypal client: %w", err)
	}
	if httpClient != nil {
		c.SetHTTPClient(httpClient)
	}

	return &paypalProvider{
		client:    c,
		returnURL: cfg.ReturnURL,
		cancelURL: cfg.CancelURL,
	}, nil
}

func (p *paypalProvider) Name() string {
	return "paypal"
}

func (p *paypalProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*RemoteCheckout, error) {
	if err := p.ensureToken(ctx); err != nil {
		return nil, err
	}

	units := []paypal.PurchaseUnitRequest{
		{
			ReferenceID: req.IdempotencyKey,
			Amount: &paypal.PurchaseUnitAmount{
				Currency: domain.Currency,
				Value:    req.Amount.StringFixed(2),
			},
			Description: req.Description,
		},
	}

	order, err := p.client.CreateOrder(ctx, "CAPTURE", units, nil, &paypal.ApplicationContext{
		ReturnURL: p.returnURL,
		CancelURL: p.cancelURL,
	})
	if err != nil {
		return nil, paypalError(err)
	}

	url := approvalURL(order)
	if url == "" {
		return nil, fmt.Errorf("%w: paypal order %s has no approval link", ErrUnavailable, order.ID)
	}

	return &RemoteCheckout{ID: order.ID, URL: url}, nil
}

// PaymentStatus captures an approved order, so a buyer who approved but
// never returned to the shop still ends up paid.
func (p *paypalProvider) PaymentStatus(ctx context.Context, id string) (domain.Status, error) {
	if err := p.ensureToken(ctx); err != nil {
		return domain.StatusError, err
	}

	order, err := p.client.GetOrder(ctx, id)
	if err != nil {
		return domain.StatusError, paypalError(err)
	}

	if order.Status == orderApproved {
		capture, err := p.client.CaptureOrder(ctx, id, paypal.CaptureOrderRequest{})
		if err != nil {
			return domain.StatusError, paypalError(err)
		}
		return paypalStatus(capture.Status), nil
	}

	return paypalStatus(order.Status), nil
}

func (p *paypalProvider) ensureToken(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client.Token != nil {
		return nil
	}

	if _, err := p.client.GetAccessToken(ctx); err != nil {
		return paypalError(err)
	}

	return nil
}

func paypalStatus(status string) domain.Status {
	switch status {
	case orderCompleted:
		return domain.StatusSucceeded
	case orderVoided:
		return domain.StatusFailed
	case "CREATED", "SAVED", orderApproved, "PAYER_ACTION_REQUIRED":
		return domain.StatusPending
	default:
		return domain.StatusError
	}
}

func approvalURL(order *paypal.Order) string {
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}

func paypalError(err error) error {
	var respErr *paypal.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: paypal: %s", ErrRejected, respErr.Message)
		}
		return fmt.Errorf("%w: paypal: %s", ErrUnavailable, respErr.Message)
	}

	return fmt.Errorf("paypal: %w", err)
}
