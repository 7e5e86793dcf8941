package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role controls what an account holder may do outside the ledger core.
// The engine itself only distinguishes roles for the minimum-balance floor.
type Role string

const (
	RoleStandard      Role = "standard"
	RoleAdministrator Role = "administrator"
)

// MinimumBalance is the floor a standard account must keep after any debit.
var MinimumBalance = decimal.NewFromInt(1000)

// MinimumOpeningDeposit is the smallest initial deposit accepted when
// opening an account. It equals the balance floor so a fresh account is
// never already in violation.
var MinimumOpeningDeposit = decimal.NewFromInt(1000)

// Account holds the balance and identity of one account holder.
// Balance is a fixed-point decimal; amounts never pass through floats.
type Account struct {
	ID            string          `json:"id"`
	AccountNumber string          `json:"account_number"`
	FullName      string          `json:"full_name"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	Balance       decimal.Decimal `json:"balance"`
	Role          Role            `json:"role"`
	PasswordHash  string          `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
}
