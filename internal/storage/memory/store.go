package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartbank/ledger-engine/internal/interfaces"
	"github.com/smartbank/ledger-engine/internal/models"
)

// Store is an in-memory implementation of the account store and the
// transaction log, used by tests and local runs. A single mutex guards all
// state, so every method is one atomic unit: each validates the whole
// operation before mutating anything, which makes rollback trivial.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*models.Account // account id -> record
	byNumber map[string]string          // account number -> account id
	entries  []models.LedgerEntry       // append-only, oldest first
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*models.Account),
		byNumber: make(map[string]string),
	}
}

func (s *Store) GetByID(ctx context.Context, id string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return models.Account{}, models.ErrAccountNotFound
	}
	return *a, nil
}

func (s *Store) GetByNumber(ctx context.Context, accountNumber string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byNumber[accountNumber]
	if !ok {
		return models.Account{}, models.ErrAccountNotFound
	}
	return *s.accounts[id], nil
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account, opening models.LedgerEntry) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byNumber[account.AccountNumber]; taken {
		return models.Account{}, models.ErrAccountNumberTaken
	}

	now := time.Now().UTC()
	account.CreatedAt = now
	opening.CreatedAt = now

	stored := account
	s.accounts[account.ID] = &stored
	s.byNumber[account.AccountNumber] = account.ID
	s.entries = append(s.entries, opening)
	return account, nil
}

func (s *Store) AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal, entry models.LedgerEntry) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return decimal.Zero, models.ErrAccountNotFound
	}

	newBalance := a.Balance.Add(delta)
	if delta.IsNegative() {
		if err := checkFloor(a.Role, newBalance); err != nil {
			return decimal.Zero, err
		}
	}

	a.Balance = newBalance
	entry.CreatedAt = time.Now().UTC()
	s.entries = append(s.entries, entry)
	return newBalance, nil
}

func (s *Store) TransferBalances(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, sent, received models.LedgerEntry) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.accounts[senderID]
	if !ok {
		return decimal.Zero, models.ErrAccountNotFound
	}
	recipient, ok := s.accounts[recipientID]
	if !ok {
		return decimal.Zero, models.ErrAccountNotFound
	}

	// All checks complete before the first mutation.
	newSenderBalance := sender.Balance.Sub(amount)
	if err := checkFloor(sender.Role, newSenderBalance); err != nil {
		return decimal.Zero, err
	}

	now := time.Now().UTC()
	sender.Balance = newSenderBalance
	recipient.Balance = recipient.Balance.Add(amount)
	sent.CreatedAt = now
	received.CreatedAt = now
	s.entries = append(s.entries, sent, received)
	return newSenderBalance, nil
}

func (s *Store) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return models.ErrAccountNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	// Oldest first, with the account number breaking creation-time ties so
	// the order is stable.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AccountNumber < out[j].AccountNumber
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Append(ctx context.Context, entry models.LedgerEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	s.entries = append(s.entries, entry)
	return entry.ID, nil
}

func (s *Store) ListRecent(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Entries are appended in order, so walking backwards yields newest
	// first without relying on timestamp granularity.
	var result []models.LedgerEntry
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if s.entries[i].AccountID == accountID {
			result = append(result, s.entries[i])
		}
	}
	return result, nil
}

// checkFloor enforces the debit invariants: balances never go negative, and
// standard accounts keep the minimum floor.
func checkFloor(role models.Role, newBalance decimal.Decimal) error {
	if newBalance.IsNegative() {
		return models.ErrInsufficientFunds
	}
	if role == models.RoleStandard && newBalance.LessThan(models.MinimumBalance) {
		return models.ErrBelowMinimumBalance
	}
	return nil
}

var (
	_ interfaces.AccountStore = (*Store)(nil)
	_ interfaces.LedgerLog    = (*Store)(nil)
)
