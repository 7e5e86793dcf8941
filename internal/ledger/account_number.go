package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// accountNumberDigits is the length of the random part of a display number.
const accountNumberDigits = 10

var accountNumberMax = new(big.Int).Exp(big.NewInt(10), big.NewInt(accountNumberDigits), nil)

// NewAccountNumber produces a candidate display account number, "SB"
// followed by ten random digits. Uniqueness is enforced by the account
// store's unique constraint; OpenAccount retries on collision.
func NewAccountNumber() string {
	n, err := rand.Int(rand.Reader, accountNumberMax)
	if err != nil {
		// crypto/rand fails only when the platform entropy source is broken
		panic(fmt.Sprintf("account number generation: %v", err))
	}
	return fmt.Sprintf("SB%010d", n)
}
