package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/weewoocad/accounts/internal/core/domain"
)

const (
	// DefaultTokenTTL is how long a verification token stays usable.
	DefaultTokenTTL = 24 * time.Hour

	tokenBytes = 24
)

// TokenIssuer generates opaque verification tokens from crypto/rand.
type TokenIssuer struct {
	ttl time.Duration
	now func() time.Time
}

func NewTokenIssuer(ttl time.Duration, now func() time.Time) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{ttl: ttl, now: now}
}

// Generate returns a hex token carrying 192 random bits and its expiry.
func (t *TokenIssuer) Generate() (string, time.Time, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), t.now().UTC().Add(t.ttl), nil
}

// Validate finds the account holding token. The token is left in place when
// it has expired; only a successful confirmation clears it.
func (t *TokenIssuer) Validate(accounts domain.Snapshot, token string, now time.Time) (int, error) {
	idx, ok := accounts.FindByToken(token)
	if !ok {
		return -1, domain.ErrTokenInvalid
	}
	if accounts[idx].TokenExpired(now) {
		return idx, domain.ErrTokenExpired
	}
	return idx, nil
}
