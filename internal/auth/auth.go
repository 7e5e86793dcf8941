// Package auth owns credential material and the session value handed to the
// ledger engine. The engine itself never sees a plaintext password and never
// re-authenticates a caller.
package auth

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/smartbank/ledger-engine/internal/models"
)

const minPasswordLength = 8

// Session identifies an authenticated caller for the duration of their
// interaction. It is an explicit value passed along with each request, not
// process-wide state, so concurrent sessions coexist.
type Session struct {
	AccountID     string
	AccountNumber string
	Role          models.Role
	IssuedAt      time.Time
}

func NewSession(a models.Account) Session {
	return Session{
		AccountID:     a.ID,
		AccountNumber: a.AccountNumber,
		Role:          a.Role,
		IssuedAt:      time.Now().UTC(),
	}
}

// IsAdministrator reports whether the session may use administrative
// surfaces such as the all-accounts report.
func (s Session) IsAdministrator() bool {
	return s.Role == models.RoleAdministrator
}

// HashPassword derives the stored credential hash from a plaintext
// password.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, models.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
