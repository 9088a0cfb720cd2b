// Package codes issues the short-lived redemption credentials attached to a
// claim: a six-digit code for manual entry and an opaque token for QR scans.
// Six-code uniqueness is scoped per venue and held in a process-external
// store with TTL eviction, so codes free themselves when claims decay.
package codes

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/go-redis/redis/v8"
)

const sixCodeDigits = 6

// GenerateSixCode returns a zero-padded numeric code of six digits.
func GenerateSixCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < sixCodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", sixCodeDigits, n), nil
}

// GenerateQRToken returns a 128-bit random token, hex-encoded (32 chars).
func GenerateQRToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Store reserves six-codes per venue in Redis with a TTL matching the claim
// lifetime. The DB's partial unique index stays as the last line of defence
// when Redis is unavailable.
type Store struct {
	client *redis.Client
	prefix string
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client, prefix: "dealslot:codes"}
}

func (s *Store) key(venueID int64, code string) string {
	return fmt.Sprintf("%s:%d:%s", s.prefix, venueID, code)
}

// Reserve takes the code for the venue for ttl. Returns false when the code
// is already held by another live claim.
func (s *Store) Reserve(ctx context.Context, venueID int64, code string, holderID int64, ttl time.Duration) (bool, error) {
	if s == nil || s.client == nil {
		return true, nil
	}
	ok, err := s.client.SetNX(ctx, s.key(venueID, code), holderID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve six-code: %v", err)
	}
	return ok, nil
}

// Release frees the code early (redeem or sweep); expiry would free it anyway.
func (s *Store) Release(ctx context.Context, venueID int64, code string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Del(ctx, s.key(venueID, code)).Err(); err != nil {
		return fmt.Errorf("failed to release six-code: %v", err)
	}
	return nil
}

// GenerateUnique keeps generating until a code is free for the venue.
func (s *Store) GenerateUnique(ctx context.Context, venueID int64, holderID int64, ttl time.Duration, attempts int) (string, error) {
	if attempts <= 0 {
		attempts = 5
	}
	for i := 0; i < attempts; i++ {
		code, err := GenerateSixCode()
		if err != nil {
			return "", err
		}
		ok, err := s.Reserve(ctx, venueID, code, holderID, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to find a free six-code after %d attempts", attempts)
}
