package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics the engine publishes to after a unit of work commits. Delivery is
// best effort; the ledger itself is the source of truth.
const (
	TopicTransferCompleted = "transfer_completed"
	TopicAccountCreated    = "account_created"
)

type TransferCompleted struct {
	SenderID        string          `json:"sender_id"`
	SenderNumber    string          `json:"sender_number"`
	RecipientID     string          `json:"recipient_id"`
	RecipientNumber string          `json:"recipient_number"`
	Amount          decimal.Decimal `json:"amount"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

type AccountCreated struct {
	AccountID      string          `json:"account_id"`
	AccountNumber  string          `json:"account_number"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
	OccurredAt     time.Time       `json:"occurred_at"`
}
