package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventPaymentCreated       = "PaymentCreated"
	EventPaymentStatusChanged = "PaymentStatusChanged"
	EventReceiptIssued        = "PaymentReceiptIssued"

	AggregatePayment = "Payment"
)

type PaymentCreatedEvent struct {
	ProcessorPaymentID string          `json:"processor_payment_id"`
	OwnerID            int64           `json:"owner_id"`
	Provider           string          `json:"provider"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	CreatedAt          time.Time       `json:"created_at"`
}

type PaymentStatusChangedEvent struct {
	ProcessorPaymentID string    `json:"processor_payment_id"`
	OwnerID            int64     `json:"owner_id"`
	From               Status    `json:"from"`
	To                 Status    `json:"to"`
	ChangedAt          time.Time `json:"changed_at"`
}

type ReceiptIssuedEvent struct {
	ProcessorPaymentID string    `json:"processor_payment_id"`
	OwnerID            int64     `json:"owner_id"`
	Location           string    `json:"location"`
	IssuedAt           time.Time `json:"issued_at"`
}
