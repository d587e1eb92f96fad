package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusError     Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed, StatusError:
		return true
	default:
		return false
	}
}

const Currency = "USD"

// PaymentRecord is written once when the processor accepts a payment request.
// Only Status, UpdatedAt and ReceiptIssuedAt change afterwards.
type PaymentRecord struct {
	SequenceID         int64           `db:"id" json:"sequence_id"`
	OwnerID            int64           `db:"owner_id" json:"owner_id" validate:"gt=0"`
	ProcessorPaymentID string          `db:"processor_payment_id" json:"processor_payment_id" validate:"required"`
	Provider           string          `db:"provider" json:"provider" validate:"required"`
	Amount             decimal.Decimal `db:"amount" json:"amount"`
	Description        string          `db:"description" json:"description"`
	Status             Status          `db:"status" json:"status" validate:"required"`
	ReceiptIssuedAt    *time.Time      `db:"receipt_issued_at" json:"receipt_issued_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (p *PaymentRecord) ReceiptIssued() bool {
	return p.ReceiptIssuedAt != nil
}

// ShortID is the processor id cut to eight characters for listings.
func (p *PaymentRecord) ShortID() string {
	if len(p.ProcessorPaymentID) <= 8 {
		return p.ProcessorPaymentID
	}
	return p.ProcessorPaymentID[:8] + "..."
}
