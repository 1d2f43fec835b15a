package domain

import (
	"regexp"
	"strings"
	"time"
)

// emailPattern is the basic local@domain.tld shape accepted at registration.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AccountState is the lifecycle position of an account.
type AccountState string

const (
	StateUnregistered AccountState = "unregistered"
	StatePending      AccountState = "pending_confirmation"
	StateConfirmed    AccountState = "confirmed"
)

// Account is a stored identity with credentials and verification state.
// VerificationToken is empty when no token is outstanding; TokenExpiresAt is
// set exactly when VerificationToken is.
type Account struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Confirmed         bool       `json:"confirmed"`
	VerificationToken string     `json:"-"`
	TokenExpiresAt    *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
}

// State derives the lifecycle state from the confirmation flag.
func (a *Account) State() AccountState {
	if a == nil {
		return StateUnregistered
	}
	if a.Confirmed {
		return StateConfirmed
	}
	return StatePending
}

// HasToken reports whether a verification token is outstanding.
func (a *Account) HasToken() bool {
	return a.VerificationToken != ""
}

// TokenExpired reports whether the outstanding token is no longer usable at now.
// A token is usable strictly before its expiry instant, so now == expiry is
// already expired.
func (a *Account) TokenExpired(now time.Time) bool {
	if a.TokenExpiresAt == nil {
		return false
	}
	return !now.Before(*a.TokenExpiresAt)
}

// IssueToken attaches a fresh verification token and moves the account back to
// pending confirmation.
func (a *Account) IssueToken(token string, expiresAt time.Time) {
	exp := expiresAt.UTC()
	a.Confirmed = false
	a.VerificationToken = token
	a.TokenExpiresAt = &exp
}

// Confirm marks the account confirmed and clears the token fields.
func (a *Account) Confirm() {
	a.Confirmed = true
	a.VerificationToken = ""
	a.TokenExpiresAt = nil
}

// ValidEmail reports whether email has the basic local@domain.tld shape.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsEmailIdentifier reports whether a login identifier addresses an account by
// email rather than by username.
func IsEmailIdentifier(identifier string) bool {
	return strings.Contains(identifier, "@")
}
