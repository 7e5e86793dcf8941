package models

import "errors"

var (
	// ErrValidation indicates a malformed profile or request field.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidAmount indicates a zero, negative or otherwise unusable amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientFunds indicates a debit larger than the current balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrBelowMinimumBalance indicates a debit that would leave a standard
	// account under the minimum balance floor.
	ErrBelowMinimumBalance = errors.New("balance would fall below minimum")
	// ErrSelfTransfer indicates a transfer whose recipient is the sender.
	ErrSelfTransfer = errors.New("cannot transfer to own account")
	// ErrAccountNotFound indicates an unknown account id or number.
	ErrAccountNotFound = errors.New("account not found")
	// ErrRecipientNotFound indicates the transfer recipient does not exist.
	ErrRecipientNotFound = errors.New("recipient account not found")
	// ErrAccountNumberTaken indicates an account-number collision on create;
	// the caller retries with a freshly generated number.
	ErrAccountNumberTaken = errors.New("account number already taken")
	// ErrStorageUnavailable indicates the underlying store failed or is
	// unreachable; the unit of work was rolled back.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
