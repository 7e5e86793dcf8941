package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind is the enumerated category of a ledger entry.
type EntryKind string

const (
	KindLogin            EntryKind = "LOGIN"
	KindLogout           EntryKind = "LOGOUT"
	KindAccountCreated   EntryKind = "ACCOUNT_CREATED"
	KindDeposit          EntryKind = "DEPOSIT"
	KindWithdrawal       EntryKind = "WITHDRAWAL"
	KindTransferSent     EntryKind = "TRANSFER_SENT"
	KindTransferReceived EntryKind = "TRANSFER_RECEIVED"
	KindPasswordChanged  EntryKind = "PASSWORD_CHANGED"
)

// Monetary reports whether entries of this kind move money. Monetary
// entries must commit in the same unit of work as the balance change they
// describe; the rest are advisory audit markers.
func (k EntryKind) Monetary() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindTransferSent, KindTransferReceived, KindAccountCreated:
		return true
	}
	return false
}

// LedgerEntry is a single immutable record in the append-only transaction
// log. Amount is signed: debits are negative, credits positive, and zero
// for advisory kinds. CreatedAt is assigned by the store at insert time.
type LedgerEntry struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Kind        EntryKind       `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}
