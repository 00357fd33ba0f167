package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	// CodeTTL is the default validity window for an issued verification
	// code. Deployments override it through configuration.
	CodeTTL = 5 * time.Minute
	// CodeCooldown is the default minimum gap between two sends to one
	// identifier. Deployments override it through configuration.
	CodeCooldown = 60 * time.Second
	// ChangeProofTTL bounds the window between verifying the old identifier
	// and verifying the new one during a change-binding flow.
	ChangeProofTTL = 10 * time.Minute
)

// VerificationCode is the live code payload held against one
// (identifier, purpose) pair.
type VerificationCode struct {
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
}

// Expired reports whether the code has outlived the given validity window.
// Expiry is judged here, not by the cache TTL, so the cache key can carry a
// longer backstop TTL without loosening the window.
func (c VerificationCode) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.IssuedAt) > ttl
}

// GenerateCode returns a 6-digit numeric verification code from crypto/rand.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateID returns a random lowercase alphanumeric handle of the given
// length, used for account IDs and region user CR names.
func GenerateID(length int) (string, error) {
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(idAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}
		out[i] = idAlphabet[n.Int64()]
	}
	return string(out), nil
}
