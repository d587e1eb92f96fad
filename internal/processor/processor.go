package processor

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrRejected means the processor refused the request itself, usually
	// because of the description text. Retrying the same input will not help.
	ErrRejected    = errors.New("payment request rejected by processor")
	ErrUnavailable = errors.New("payment processor unavailable")
)

const (
	DefaultDescription   = "Payment"
	maxDescriptionLength = 250
)

// CheckoutRequest is what a provider receives. Description is already sanitized.
type CheckoutRequest struct {
	Amount      decimal.Decimal
	Description string
	// IdempotencyKey is unique per CreatePayment call.
	IdempotencyKey string
}

type RemoteCheckout struct {
	ID  string
	URL string
}

// Provider is one concrete payment processor API.
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*RemoteCheckout, error)
	PaymentStatus(ctx context.Context, id string) (domain.Status, error)
}

// Checkout is the result handed back to the conversation. Amount and
// Description are the caller's values, not the sanitized ones.
type Checkout struct {
	ProcessorID string
	PaymentURL  string
	Provider    string
	Amount      decimal.Decimal
	Description string
}

// SanitizeDescription keeps printable ASCII only.
func SanitizeDescription(description string) string {
	var b strings.Builder
	b.Grow(len(description))

	for _, r := range description {
		if r > unicode.MaxASCII || unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}

	clean := strings.TrimSpace(b.String())
	if len(clean) > maxDescriptionLength {
		clean = strings.TrimSpace(clean[:maxDescriptionLength])
	}

	if clean == "" {
		return DefaultDescription
	}

	return clean
}

// ToCents converts a dollar amount to the smallest currency unit.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
