package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/smartbank/ledger-engine/internal/interfaces"
	"github.com/smartbank/ledger-engine/internal/models"
)

// uniqueViolation is the postgres error code for a unique-constraint hit.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             TEXT PRIMARY KEY,
	account_number TEXT NOT NULL UNIQUE,
	full_name      TEXT NOT NULL,
	email          TEXT NOT NULL,
	phone          TEXT NOT NULL DEFAULT '',
	password_hash  TEXT NOT NULL DEFAULT '',
	balance        NUMERIC(20,2) NOT NULL,
	role           TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL REFERENCES accounts(id),
	kind        TEXT NOT NULL,
	amount      NUMERIC(20,2) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS ledger_entries_account_created_idx
	ON ledger_entries (account_id, created_at DESC);
`

// Store is the durable postgres implementation of the account store and the
// transaction log. Every monetary method runs inside one sql.Tx with
// FOR UPDATE row locks, so a balance change and its log entries commit
// together or roll back together.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return storageErr("migrate", err)
	}
	return nil
}

const accountColumns = `id, account_number, full_name, email, phone, password_hash, balance, role, created_at`

func (s *Store) GetByID(ctx context.Context, id string) (models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *Store) GetByNumber(ctx context.Context, accountNumber string) (models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber)
	return scanAccount(row)
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account, opening models.LedgerEntry) (created models.Account, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Account{}, storageErr("begin create account", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	account.CreatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		account.ID, account.AccountNumber, account.FullName, account.Email,
		account.Phone, account.PasswordHash, account.Balance, account.Role, account.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.Account{}, models.ErrAccountNumberTaken
		}
		return models.Account{}, storageErr("insert account", err)
	}

	if err = insertEntry(ctx, tx, opening, now); err != nil {
		return models.Account{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Account{}, storageErr("commit create account", err)
	}
	return account, nil
}

func (s *Store) AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal, entry models.LedgerEntry) (newBalance decimal.Decimal, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, storageErr("begin adjust", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	balance, role, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	newBalance = balance.Add(delta)
	if delta.IsNegative() {
		if err = checkFloor(role, newBalance); err != nil {
			return decimal.Zero, err
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1 WHERE id = $2`, newBalance, accountID); err != nil {
		return decimal.Zero, storageErr("update balance", err)
	}

	if err = insertEntry(ctx, tx, entry, time.Now().UTC()); err != nil {
		return decimal.Zero, err
	}

	if err = tx.Commit(); err != nil {
		return decimal.Zero, storageErr("commit adjust", err)
	}
	return newBalance, nil
}

func (s *Store) TransferBalances(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, sent, received models.LedgerEntry) (senderBalance decimal.Decimal, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, storageErr("begin transfer", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Row locks are taken in ascending id order so two transfers moving
	// money in opposite directions between the same pair cannot deadlock.
	firstID, secondID := senderID, recipientID
	if recipientID < senderID {
		firstID, secondID = recipientID, senderID
	}

	balances := make(map[string]decimal.Decimal, 2)
	roles := make(map[string]models.Role, 2)
	for _, id := range []string{firstID, secondID} {
		balance, role, lockErr := lockAccount(ctx, tx, id)
		if lockErr != nil {
			err = lockErr
			return decimal.Zero, err
		}
		balances[id] = balance
		roles[id] = role
	}

	senderBalance = balances[senderID].Sub(amount)
	if err = checkFloor(roles[senderID], senderBalance); err != nil {
		return decimal.Zero, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1 WHERE id = $2`, senderBalance, senderID); err != nil {
		return decimal.Zero, storageErr("debit sender", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE id = $2`, amount, recipientID); err != nil {
		return decimal.Zero, storageErr("credit recipient", err)
	}

	now := time.Now().UTC()
	if err = insertEntry(ctx, tx, sent, now); err != nil {
		return decimal.Zero, err
	}
	if err = insertEntry(ctx, tx, received, now); err != nil {
		return decimal.Zero, err
	}

	if err = tx.Commit(); err != nil {
		return decimal.Zero, storageErr("commit transfer", err)
	}
	return senderBalance, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at, account_number`)
	if err != nil {
		return nil, storageErr("list accounts", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.AccountNumber, &a.FullName, &a.Email, &a.Phone,
			&a.PasswordHash, &a.Balance, &a.Role, &a.CreatedAt); err != nil {
			return nil, storageErr("scan account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list accounts", err)
	}
	return accounts, nil
}

func (s *Store) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $1 WHERE id = $2`, passwordHash, accountID)
	if err != nil {
		return storageErr("update password", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("update password", err)
	}
	if affected == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entry models.LedgerEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, account_id, kind, amount, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.AccountID, entry.Kind, entry.Amount, entry.Description, entry.CreatedAt)
	if err != nil {
		return "", storageErr("append entry", err)
	}
	return entry.ID, nil
}

func (s *Store) ListRecent(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, kind, amount, description, created_at
		 FROM ledger_entries WHERE account_id = $1
		 ORDER BY created_at DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, storageErr("list entries", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Amount, &e.Description, &e.CreatedAt); err != nil {
			return nil, storageErr("scan entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list entries", err)
	}
	return entries, nil
}

// lockAccount takes a FOR UPDATE row lock and returns the balance and role
// seen under that lock.
func lockAccount(ctx context.Context, tx *sql.Tx, accountID string) (decimal.Decimal, models.Role, error) {
	var balance decimal.Decimal
	var role models.Role
	err := tx.QueryRowContext(ctx,
		`SELECT balance, role FROM accounts WHERE id = $1 FOR UPDATE`, accountID).
		Scan(&balance, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, "", models.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, "", storageErr("lock account", err)
	}
	return balance, role, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, entry models.LedgerEntry, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, account_id, kind, amount, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.AccountID, entry.Kind, entry.Amount, entry.Description, at)
	if err != nil {
		return storageErr("insert entry", err)
	}
	return nil
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

func scanAccount(row *sql.Row) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.AccountNumber, &a.FullName, &a.Email, &a.Phone,
		&a.PasswordHash, &a.Balance, &a.Role, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, models.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, storageErr("scan account", err)
	}
	return a, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, models.ErrStorageUnavailable, err)
}

var (
	_ interfaces.AccountStore = (*Store)(nil)
	_ interfaces.LedgerLog    = (*Store)(nil)
)
