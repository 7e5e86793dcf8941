package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/smartbank/ledger-engine/internal/interfaces"
	"github.com/smartbank/ledger-engine/internal/models"
	"github.com/smartbank/ledger-engine/internal/storage/memory"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newTestLedger() (*Ledger, *memory.Store) {
	store := memory.NewStore()
	return NewLedger(store, store, nil), store
}

func openAccount(t *testing.T, l *Ledger, name string, deposit int64) models.Account {
	t.Helper()
	account, err := l.OpenAccount(context.Background(), Profile{
		FullName: name,
		Email:    strings.ToLower(name) + "@example.com",
	}, dec(deposit))
	if err != nil {
		t.Fatalf("open account for %s: %v", name, err)
	}
	return account
}

func entriesOfKind(entries []models.LedgerEntry, kind models.EntryKind) []models.LedgerEntry {
	var out []models.LedgerEntry
	for _, e := range entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestOpenAccount(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	account := openAccount(t, l, "Alice", 5000)

	if !account.Balance.Equal(dec(5000)) {
		t.Errorf("balance = %s, want 5000", account.Balance)
	}
	if account.Role != models.RoleStandard {
		t.Errorf("role = %s, want standard", account.Role)
	}
	if !strings.HasPrefix(account.AccountNumber, "SB") || len(account.AccountNumber) != 12 {
		t.Errorf("account number %q does not match SB..........", account.AccountNumber)
	}

	entries, err := l.RecentActivity(ctx, account.ID, 10)
	if err != nil {
		t.Fatalf("recent activity: %v", err)
	}
	created := entriesOfKind(entries, models.KindAccountCreated)
	if len(created) != 1 {
		t.Fatalf("got %d ACCOUNT_CREATED entries, want 1", len(created))
	}
	if !created[0].Amount.Equal(dec(5000)) {
		t.Errorf("opening entry amount = %s, want 5000", created[0].Amount)
	}
}

func TestOpenAccountValidation(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.OpenAccount(ctx, Profile{FullName: "Bob", Email: "bob@example.com"}, dec(999))
	if !errors.Is(err, models.ErrInvalidAmount) {
		t.Errorf("opening deposit 999: got %v, want ErrInvalidAmount", err)
	}

	_, err = l.OpenAccount(ctx, Profile{Email: "noname@example.com"}, dec(5000))
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("missing name: got %v, want ErrValidation", err)
	}
}

func TestOpenAccountRetriesOnNumberCollision(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	first := openAccount(t, l, "Alice", 5000)

	// A generator that first collides with the existing account, then
	// yields a fresh number.
	numbers := []string{first.AccountNumber, "SB0000000042"}
	l.newNumber = func() string {
		n := numbers[0]
		if len(numbers) > 1 {
			numbers = numbers[1:]
		}
		return n
	}

	second, err := l.OpenAccount(ctx, Profile{FullName: "Bob", Email: "bob@example.com"}, dec(2000))
	if err != nil {
		t.Fatalf("open after collision: %v", err)
	}
	if second.AccountNumber != "SB0000000042" {
		t.Errorf("account number = %s, want the retried SB0000000042", second.AccountNumber)
	}

	// A generator that never stops colliding must eventually give up.
	l.newNumber = func() string { return first.AccountNumber }
	_, err = l.OpenAccount(ctx, Profile{FullName: "Carl", Email: "carl@example.com"}, dec(2000))
	if !errors.Is(err, models.ErrAccountNumberTaken) {
		t.Errorf("exhausted retries: got %v, want ErrAccountNumberTaken", err)
	}
}

// TestLedgerScenario walks the canonical flow: open with 5000, deposit
// 2000, fail a withdrawal that would break the floor, transfer most of the
// balance away, and reject a self-transfer.
func TestLedgerScenario(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	a := openAccount(t, l, "Alice", 5000)
	b := openAccount(t, l, "Bob", 2000)

	balance, err := l.Deposit(ctx, a.ID, dec(2000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !balance.Equal(dec(7000)) {
		t.Errorf("balance after deposit = %s, want 7000", balance)
	}

	entries, _ := l.RecentActivity(ctx, a.ID, 10)
	if got := entriesOfKind(entries, models.KindDeposit); len(got) != 1 {
		t.Errorf("got %d DEPOSIT entries, want 1", len(got))
	}

	// Withdrawing everything would leave 0, under the 1000 floor.
	if _, err := l.Withdraw(ctx, a.ID, dec(7000)); !errors.Is(err, models.ErrBelowMinimumBalance) {
		t.Errorf("withdraw 7000: got %v, want ErrBelowMinimumBalance", err)
	}
	current, _ := l.Account(ctx, a.ID)
	if !current.Balance.Equal(dec(7000)) {
		t.Errorf("balance after failed withdrawal = %s, want 7000", current.Balance)
	}

	// Transfer down to exactly the floor.
	balance, err = l.Transfer(ctx, a.ID, b.AccountNumber, dec(6000))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !balance.Equal(dec(1000)) {
		t.Errorf("sender balance after transfer = %s, want 1000", balance)
	}
	recipient, _ := l.Account(ctx, b.ID)
	if !recipient.Balance.Equal(dec(8000)) {
		t.Errorf("recipient balance = %s, want 8000", recipient.Balance)
	}

	sentEntries, _ := l.RecentActivity(ctx, a.ID, 10)
	sent := entriesOfKind(sentEntries, models.KindTransferSent)
	if len(sent) != 1 || !sent[0].Amount.Equal(dec(-6000)) {
		t.Errorf("TRANSFER_SENT entries = %v, want one with amount -6000", sent)
	}
	receivedEntries, _ := l.RecentActivity(ctx, b.ID, 10)
	received := entriesOfKind(receivedEntries, models.KindTransferReceived)
	if len(received) != 1 || !received[0].Amount.Equal(dec(6000)) {
		t.Errorf("TRANSFER_RECEIVED entries = %v, want one with amount 6000", received)
	}

	if _, err := l.Transfer(ctx, a.ID, a.AccountNumber, dec(100)); !errors.Is(err, models.ErrSelfTransfer) {
		t.Errorf("self transfer: got %v, want ErrSelfTransfer", err)
	}
}

func TestWithdrawBoundary(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	a := openAccount(t, l, "Alice", 5000)
	balance, err := l.Withdraw(ctx, a.ID, dec(4000))
	if err != nil {
		t.Fatalf("withdraw to exactly the floor: %v", err)
	}
	if !balance.Equal(dec(1000)) {
		t.Errorf("balance = %s, want 1000", balance)
	}

	b := openAccount(t, l, "Bob", 5000)
	if _, err := l.Withdraw(ctx, b.ID, dec(4001)); !errors.Is(err, models.ErrBelowMinimumBalance) {
		t.Errorf("withdraw one unit past the floor: got %v, want ErrBelowMinimumBalance", err)
	}
}

func TestWithdrawValidation(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	a := openAccount(t, l, "Alice", 5000)

	if _, err := l.Withdraw(ctx, a.ID, dec(0)); !errors.Is(err, models.ErrInvalidAmount) {
		t.Errorf("withdraw 0: got %v, want ErrInvalidAmount", err)
	}
	if _, err := l.Withdraw(ctx, a.ID, dec(-5)); !errors.Is(err, models.ErrInvalidAmount) {
		t.Errorf("withdraw -5: got %v, want ErrInvalidAmount", err)
	}
	if _, err := l.Withdraw(ctx, a.ID, dec(6000)); !errors.Is(err, models.ErrInsufficientFunds) {
		t.Errorf("withdraw past the balance: got %v, want ErrInsufficientFunds", err)
	}
	if _, err := l.Withdraw(ctx, "missing", dec(10)); !errors.Is(err, models.ErrAccountNotFound) {
		t.Errorf("withdraw from unknown account: got %v, want ErrAccountNotFound", err)
	}
}

func TestTransferRecipientNotFound(t *testing.T) {
	l, _ := newTestLedger()
	a := openAccount(t, l, "Alice", 5000)

	_, err := l.Transfer(context.Background(), a.ID, "SB9999999999", dec(100))
	if !errors.Is(err, models.ErrRecipientNotFound) {
		t.Errorf("got %v, want ErrRecipientNotFound", err)
	}
}

// TestFailedTransferLeavesStateUnchanged snapshots both sides before a
// transfer that must fail and verifies that neither a balance nor the log
// moved.
func TestFailedTransferLeavesStateUnchanged(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	a := openAccount(t, l, "Alice", 5000)
	b := openAccount(t, l, "Bob", 2000)

	beforeA, _ := l.Account(ctx, a.ID)
	beforeB, _ := l.Account(ctx, b.ID)
	entriesA, _ := l.RecentActivity(ctx, a.ID, 100)
	entriesB, _ := l.RecentActivity(ctx, b.ID, 100)

	if _, err := l.Transfer(ctx, a.ID, b.AccountNumber, dec(4500)); !errors.Is(err, models.ErrBelowMinimumBalance) {
		t.Fatalf("transfer 4500: got %v, want ErrBelowMinimumBalance", err)
	}

	afterA, _ := l.Account(ctx, a.ID)
	afterB, _ := l.Account(ctx, b.ID)
	if !afterA.Balance.Equal(beforeA.Balance) || !afterB.Balance.Equal(beforeB.Balance) {
		t.Errorf("balances changed: %s->%s, %s->%s",
			beforeA.Balance, afterA.Balance, beforeB.Balance, afterB.Balance)
	}

	afterEntriesA, _ := l.RecentActivity(ctx, a.ID, 100)
	afterEntriesB, _ := l.RecentActivity(ctx, b.ID, 100)
	if len(afterEntriesA) != len(entriesA) || len(afterEntriesB) != len(entriesB) {
		t.Errorf("entry counts changed: %d->%d, %d->%d",
			len(entriesA), len(afterEntriesA), len(entriesB), len(afterEntriesB))
	}
}

// TestConcurrentDepositsAndWithdrawals runs paired mutations whose amounts
// sum to zero; any lost update would show up in the final balance.
func TestConcurrentDepositsAndWithdrawals(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	a := openAccount(t, l, "Alice", 100000)

	const pairs = 50
	errs := make(chan error, pairs*2)
	var wg sync.WaitGroup
	for i := 0; i < pairs; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := l.Deposit(ctx, a.ID, dec(10))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := l.Withdraw(ctx, a.ID, dec(10))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent operation failed: %v", err)
		}
	}

	final, _ := l.Account(ctx, a.ID)
	if !final.Balance.Equal(dec(100000)) {
		t.Errorf("final balance = %s, want 100000", final.Balance)
	}
}

// TestConcurrentOpposingTransfers drives money both ways between the same
// pair at once; ordered lock acquisition must prevent deadlock and the net
// movement must be zero.
func TestConcurrentOpposingTransfers(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	a := openAccount(t, l, "Alice", 100000)
	b := openAccount(t, l, "Bob", 100000)

	const each = 20
	var wg sync.WaitGroup
	for i := 0; i < each; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := l.Transfer(ctx, a.ID, b.AccountNumber, dec(10)); err != nil {
				t.Errorf("transfer a->b: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := l.Transfer(ctx, b.ID, a.AccountNumber, dec(10)); err != nil {
				t.Errorf("transfer b->a: %v", err)
			}
		}()
	}
	wg.Wait()

	finalA, _ := l.Account(ctx, a.ID)
	finalB, _ := l.Account(ctx, b.ID)
	if !finalA.Balance.Equal(dec(100000)) || !finalB.Balance.Equal(dec(100000)) {
		t.Errorf("final balances = %s, %s, want 100000 each", finalA.Balance, finalB.Balance)
	}
}

func TestRecentActivityDefaultLimit(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	a := openAccount(t, l, "Alice", 5000)
	for i := 0; i < 12; i++ {
		if _, err := l.Deposit(ctx, a.ID, dec(1)); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}

	entries, err := l.RecentActivity(ctx, a.ID, 0)
	if err != nil {
		t.Fatalf("recent activity: %v", err)
	}
	if len(entries) != defaultHistoryLimit {
		t.Errorf("got %d entries, want the default %d", len(entries), defaultHistoryLimit)
	}
	if entries[0].Kind != models.KindDeposit {
		t.Errorf("newest entry kind = %s, want DEPOSIT", entries[0].Kind)
	}
}

// TestAllAccounts covers the administrative report: every account comes
// back, oldest first, with its current balance.
func TestAllAccounts(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	a := openAccount(t, l, "Alice", 5000)
	b := openAccount(t, l, "Bob", 2000)
	if _, err := l.Deposit(ctx, b.ID, dec(500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	admin, err := l.OpenAccount(ctx, Profile{
		FullName: "Root",
		Email:    "root@example.com",
		Role:     models.RoleAdministrator,
	}, dec(10000))
	if err != nil {
		t.Fatalf("open administrator account: %v", err)
	}
	if admin.Role != models.RoleAdministrator {
		t.Fatalf("role = %s, want administrator", admin.Role)
	}

	accounts, err := l.AllAccounts(ctx)
	if err != nil {
		t.Fatalf("all accounts: %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("got %d accounts, want 3", len(accounts))
	}

	byID := make(map[string]models.Account, len(accounts))
	for _, acct := range accounts {
		byID[acct.ID] = acct
	}
	if !byID[a.ID].Balance.Equal(dec(5000)) {
		t.Errorf("balance of %s = %s, want 5000", a.ID, byID[a.ID].Balance)
	}
	if !byID[b.ID].Balance.Equal(dec(2500)) {
		t.Errorf("balance of %s = %s, want 2500", b.ID, byID[b.ID].Balance)
	}
	if _, ok := byID[admin.ID]; !ok {
		t.Errorf("administrator account missing from the report")
	}
}

type failingJournal struct {
	interfaces.LedgerLog
}

func (failingJournal) Append(ctx context.Context, entry models.LedgerEntry) (string, error) {
	return "", models.ErrStorageUnavailable
}

func TestSessionEventsAreBestEffort(t *testing.T) {
	store := memory.NewStore()
	l := NewLedger(store, failingJournal{store}, nil)
	ctx := context.Background()

	a := openAccount(t, l, "Alice", 5000)

	// The advisory append fails, the operation must not care.
	l.RecordSessionEvent(ctx, a.ID, models.KindLogin, "User logged in")

	if err := l.ChangePassword(ctx, a.ID, "new-hash"); err != nil {
		t.Fatalf("change password with failing journal: %v", err)
	}
	current, _ := l.Account(ctx, a.ID)
	if current.PasswordHash != "new-hash" {
		t.Errorf("password hash = %q, want the updated one", current.PasswordHash)
	}
}

func TestSessionEventsRefuseMonetaryKinds(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	a := openAccount(t, l, "Alice", 5000)
	l.RecordSessionEvent(ctx, a.ID, models.KindDeposit, "smuggled deposit")

	entries, _ := l.RecentActivity(ctx, a.ID, 100)
	if got := entriesOfKind(entries, models.KindDeposit); len(got) != 0 {
		t.Errorf("advisory path wrote %d monetary entries, want 0", len(got))
	}
}

func TestSessionEventHappyPath(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	a := openAccount(t, l, "Alice", 5000)
	l.RecordSessionEvent(ctx, a.ID, models.KindLogin, "User logged in")

	entries, _ := l.RecentActivity(ctx, a.ID, 100)
	logins := entriesOfKind(entries, models.KindLogin)
	if len(logins) != 1 {
		t.Fatalf("got %d LOGIN entries, want 1", len(logins))
	}
	if !logins[0].Amount.IsZero() {
		t.Errorf("LOGIN entry amount = %s, want 0", logins[0].Amount)
	}
}
