package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ConversationState string

const (
	StateIdle                ConversationState = "idle"
	StateAwaitingAmount      ConversationState = "awaiting_amount"
	StateAwaitingDescription ConversationState = "awaiting_description"
)

// Conversation is the transient state of one user's in-flight payment flow.
type Conversation struct {
	FlowID    string            `json:"flow_id"`
	UserID    int64             `json:"user_id"`
	State     ConversationState `json:"state"`
	Amount    decimal.Decimal   `json:"amount"`
	UpdatedAt time.Time         `json:"updated_at"`
}
