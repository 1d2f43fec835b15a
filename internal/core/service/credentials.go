package service

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches the work factor accounts were historically hashed with.
const DefaultBcryptCost = 10

// BcryptCredentials hashes passwords with bcrypt. The hash embeds salt and
// cost, so raising the cost later keeps old hashes verifiable.
type BcryptCredentials struct {
	cost int
}

func NewBcryptCredentials(cost int) *BcryptCredentials {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptCredentials{cost: cost}
}

func (c *BcryptCredentials) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares in constant time with respect to the password contents.
func (c *BcryptCredentials) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
