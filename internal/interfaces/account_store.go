package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/smartbank/ledger-engine/internal/models"
)

// AccountStore is the durable home of account records. Implementations must
// be safe for concurrent use; the monetary methods accept the ledger entries
// they are required to persist so balance change and audit record commit as
// one atomic unit of work, or not at all.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (models.Account, error)
	GetByNumber(ctx context.Context, accountNumber string) (models.Account, error)

	// CreateAccount persists the account and its opening entry together.
	// Returns models.ErrAccountNumberTaken when the account number collides;
	// the caller retries with a freshly generated number.
	CreateAccount(ctx context.Context, account models.Account, opening models.LedgerEntry) (models.Account, error)

	// AdjustBalance applies delta (positive or negative) to one account and
	// appends entry in the same unit. For debits the resulting balance must
	// stay non-negative, and at or above the minimum floor for standard
	// accounts; otherwise the store returns models.ErrInsufficientFunds or
	// models.ErrBelowMinimumBalance without mutating anything.
	AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal, entry models.LedgerEntry) (decimal.Decimal, error)

	// TransferBalances debits sender, credits recipient and appends both
	// entries in one unit, serializing row access in ascending account-id
	// order. Returns the sender's new balance.
	TransferBalances(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, sent, received models.LedgerEntry) (decimal.Decimal, error)

	// UpdatePassword replaces the stored credential hash. The hash is opaque
	// to the store.
	UpdatePassword(ctx context.Context, accountID, passwordHash string) error

	// ListAccounts returns every account, oldest first. Serves the
	// administrative all-accounts report.
	ListAccounts(ctx context.Context) ([]models.Account, error)
}
