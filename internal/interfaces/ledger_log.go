package interfaces

import (
	"context"

	"github.com/smartbank/ledger-engine/internal/models"
)

// LedgerLog is the append-only transaction log. Append never rejects an
// entry on business grounds; it fails only when the store is unavailable.
type LedgerLog interface {
	Append(ctx context.Context, entry models.LedgerEntry) (string, error)

	// ListRecent returns up to limit entries for the account, newest first.
	// Each call is a fresh consistent snapshot, not a live cursor.
	ListRecent(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error)
}
