package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartbank/ledger-engine/internal/interfaces"
	"github.com/smartbank/ledger-engine/internal/models"
	"github.com/smartbank/ledger-engine/internal/models/events"
)

// createRetries bounds how many fresh account numbers OpenAccount tries
// when the generated number keeps colliding.
const createRetries = 5

// defaultHistoryLimit is the statement page size when the caller does not
// ask for a specific one.
const defaultHistoryLimit = 10

// Profile carries the identity fields for a new account. PasswordHash is
// produced by the auth collaborator; the engine never sees a plaintext
// credential.
type Profile struct {
	FullName     string
	Email        string
	Phone        string
	PasswordHash string
	Role         models.Role
}

// Ledger orchestrates balance mutations against the account store and ties
// each one to its transaction-log entries. It serializes concurrent
// operations on the same account through a per-account mutex so a
// read-validate-write cycle can never interleave with another caller's.
type Ledger struct {
	accounts interfaces.AccountStore
	journal  interfaces.LedgerLog
	events   interfaces.EventPublisher // nil when no broker is configured
	logger   *log.Logger

	newNumber func() string

	mapMu sync.Mutex             // protects muMap itself
	muMap map[string]*sync.Mutex // one lock per account id
}

// NewLedger wires the engine to its stores. publisher may be nil; events
// are then skipped entirely.
func NewLedger(accounts interfaces.AccountStore, journal interfaces.LedgerLog, publisher interfaces.EventPublisher) *Ledger {
	return &Ledger{
		accounts:  accounts,
		journal:   journal,
		events:    publisher,
		logger:    log.Default(),
		newNumber: NewAccountNumber,
		muMap:     make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) accountLock(accountID string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountID]; !exists {
		l.muMap[accountID] = &sync.Mutex{}
	}
	return l.muMap[accountID]
}

// lockPair acquires both account locks in ascending id order so two
// transfers moving money in opposite directions cannot deadlock.
func (l *Ledger) lockPair(aID, bID string) (unlock func()) {
	first, second := l.accountLock(aID), l.accountLock(bID)
	if bID < aID {
		first, second = second, first
	}
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}

// OpenAccount creates an account with a uniqueness-checked account number
// and its ACCOUNT_CREATED entry in one unit of work. The opening deposit
// must meet the minimum; number collisions are retried with a fresh number.
func (l *Ledger) OpenAccount(ctx context.Context, profile Profile, initialDeposit decimal.Decimal) (models.Account, error) {
	if profile.FullName == "" || profile.Email == "" {
		return models.Account{}, fmt.Errorf("full name and email are required: %w", models.ErrValidation)
	}
	if initialDeposit.LessThan(models.MinimumOpeningDeposit) {
		return models.Account{}, fmt.Errorf("opening deposit is below %s: %w",
			models.MinimumOpeningDeposit.StringFixed(2), models.ErrInvalidAmount)
	}
	role := profile.Role
	if role == "" {
		role = models.RoleStandard
	}

	var lastErr error
	for i := 0; i < createRetries; i++ {
		account := models.Account{
			ID:            uuid.NewString(),
			AccountNumber: l.newNumber(),
			FullName:      profile.FullName,
			Email:         profile.Email,
			Phone:         profile.Phone,
			Balance:       initialDeposit,
			Role:          role,
			PasswordHash:  profile.PasswordHash,
		}
		opening := models.LedgerEntry{
			ID:          uuid.NewString(),
			AccountID:   account.ID,
			Kind:        models.KindAccountCreated,
			Amount:      initialDeposit,
			Description: "Account opened with initial deposit",
		}

		created, err := l.accounts.CreateAccount(ctx, account, opening)
		if errors.Is(err, models.ErrAccountNumberTaken) {
			lastErr = err
			continue
		}
		if err != nil {
			return models.Account{}, err
		}

		l.publish(ctx, events.TopicAccountCreated, events.AccountCreated{
			AccountID:      created.ID,
			AccountNumber:  created.AccountNumber,
			InitialDeposit: initialDeposit,
			OccurredAt:     time.Now().UTC(),
		})
		return created, nil
	}
	return models.Account{}, fmt.Errorf("could not allocate a unique account number: %w", lastErr)
}

// Deposit credits amount to the account and appends a DEPOSIT entry in the
// same unit of work. Returns the new balance.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, models.ErrInvalidAmount
	}

	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	entry := models.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Kind:        models.KindDeposit,
		Amount:      amount,
		Description: "Deposited " + amount.StringFixed(2),
	}
	return l.accounts.AdjustBalance(ctx, accountID, amount, entry)
}

// Withdraw debits amount from the account and appends a WITHDRAWAL entry in
// the same unit of work. The debit fails without side effects when funds
// are insufficient or the balance would drop under the floor.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, models.ErrInvalidAmount
	}

	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	entry := models.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Kind:        models.KindWithdrawal,
		Amount:      amount.Neg(),
		Description: "Withdrew " + amount.StringFixed(2),
	}
	return l.accounts.AdjustBalance(ctx, accountID, amount.Neg(), entry)
}

// Transfer moves amount from the sender to the account identified by
// recipientNumber. The debit, the credit and both entries (TRANSFER_SENT,
// TRANSFER_RECEIVED) commit together or not at all; any failure leaves both
// balances and the log untouched. Returns the sender's new balance.
func (l *Ledger) Transfer(ctx context.Context, senderID, recipientNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, models.ErrInvalidAmount
	}

	recipient, err := l.accounts.GetByNumber(ctx, recipientNumber)
	if errors.Is(err, models.ErrAccountNotFound) {
		return decimal.Zero, models.ErrRecipientNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	if recipient.ID == senderID {
		return decimal.Zero, models.ErrSelfTransfer
	}

	unlock := l.lockPair(senderID, recipient.ID)
	defer unlock()

	// Fresh read inside the critical section; the balance seen here is the
	// one the store will validate against.
	sender, err := l.accounts.GetByID(ctx, senderID)
	if err != nil {
		return decimal.Zero, err
	}

	sent := models.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   sender.ID,
		Kind:        models.KindTransferSent,
		Amount:      amount.Neg(),
		Description: "Transferred to " + recipient.FullName,
	}
	received := models.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   recipient.ID,
		Kind:        models.KindTransferReceived,
		Amount:      amount,
		Description: "Received from " + sender.FullName,
	}

	newBalance, err := l.accounts.TransferBalances(ctx, sender.ID, recipient.ID, amount, sent, received)
	if err != nil {
		return decimal.Zero, err
	}

	l.publish(ctx, events.TopicTransferCompleted, events.TransferCompleted{
		SenderID:        sender.ID,
		SenderNumber:    sender.AccountNumber,
		RecipientID:     recipient.ID,
		RecipientNumber: recipient.AccountNumber,
		Amount:          amount,
		OccurredAt:      time.Now().UTC(),
	})
	return newBalance, nil
}

// Account returns the current record for one account.
func (l *Ledger) Account(ctx context.Context, accountID string) (models.Account, error) {
	return l.accounts.GetByID(ctx, accountID)
}

// AccountByNumber resolves an account by its display number.
func (l *Ledger) AccountByNumber(ctx context.Context, accountNumber string) (models.Account, error) {
	return l.accounts.GetByNumber(ctx, accountNumber)
}

// AllAccounts returns every account for the administrative report, oldest
// first. The role check lives at the caller-facing layer; the engine trusts
// the session it was handed.
func (l *Ledger) AllAccounts(ctx context.Context) ([]models.Account, error) {
	return l.accounts.ListAccounts(ctx)
}

// RecentActivity returns up to limit log entries for the account, newest
// first. A non-positive limit falls back to the default page size.
func (l *Ledger) RecentActivity(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return l.journal.ListRecent(ctx, accountID, limit)
}

// ChangePassword stores a new credential hash and records a
// PASSWORD_CHANGED marker. The hash update is mandatory; the marker is
// advisory and may be dropped with a warning.
func (l *Ledger) ChangePassword(ctx context.Context, accountID, passwordHash string) error {
	if passwordHash == "" {
		return fmt.Errorf("empty credential hash: %w", models.ErrValidation)
	}
	if err := l.accounts.UpdatePassword(ctx, accountID, passwordHash); err != nil {
		return err
	}
	l.RecordSessionEvent(ctx, accountID, models.KindPasswordChanged, "Password changed")
	return nil
}

// RecordSessionEvent appends an advisory audit entry (login, logout and the
// like). These ride outside any unit of work: a failed append is logged as
// a warning and never aborts the operation that triggered it. Monetary
// kinds are refused; they must go through the transactional paths above.
func (l *Ledger) RecordSessionEvent(ctx context.Context, accountID string, kind models.EntryKind, description string) {
	if kind.Monetary() {
		l.logger.Printf("warn: refusing advisory append of monetary kind %s for account %s", kind, accountID)
		return
	}
	entry := models.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Kind:        kind,
		Amount:      decimal.Zero,
		Description: description,
	}
	if _, err := l.journal.Append(ctx, entry); err != nil {
		l.logger.Printf("warn: dropping %s entry for account %s: %v", kind, accountID, err)
	}
}

func (l *Ledger) publish(ctx context.Context, topic string, event any) {
	if l.events == nil {
		return
	}
	if err := l.events.Publish(ctx, topic, event); err != nil {
		l.logger.Printf("warn: publish %s event: %v", topic, err)
	}
}
