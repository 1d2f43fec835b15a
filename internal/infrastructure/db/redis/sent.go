package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "verify:sent:"

// SentMarker records which verification tokens have already been mailed so a
// redelivered job is not sent twice. Keys hold a hash of the token, never the
// token itself. Key format: verify:sent:<sha256(token)>
type SentMarker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSentMarker creates a SentMarker whose keys live for ttl, which should be
// at least the verification token lifetime.
func NewSentMarker(client *redis.Client, ttl time.Duration) *SentMarker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SentMarker{client: client, ttl: ttl}
}

// MarkSent claims token for delivery. It reports false when the token had
// already been claimed.
func (m *SentMarker) MarkSent(ctx context.Context, token string) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.key(token), "1", m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	return ok, nil
}

// Unmark releases a claim after a failed delivery so a retry can send again.
func (m *SentMarker) Unmark(ctx context.Context, token string) error {
	if err := m.client.Del(ctx, m.key(token)).Err(); err != nil {
		return fmt.Errorf("unmark sent: %w", err)
	}
	return nil
}

func (m *SentMarker) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}
