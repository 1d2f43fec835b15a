package ports

import (
	"time"

	"github.com/weewoocad/accounts/internal/core/domain"
)

// CredentialService hashes and verifies passwords.
type CredentialService interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// TokenService issues and validates time-limited verification tokens.
type TokenService interface {
	Generate() (token string, expiresAt time.Time, err error)
	// Validate returns the index of the account holding token in accounts.
	Validate(accounts domain.Snapshot, token string, now time.Time) (int, error)
}
