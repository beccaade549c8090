package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	codeMin         = 100000
	codeSpan        = 900000
	resetTokenBytes = 32
)

// NewNumericCode returns a uniformly random six-digit code in 100000..999999.
func NewNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("security: generate code: %w", err)
	}
	return fmt.Sprintf("%d", codeMin+n.Int64()), nil
}

// NewResetToken returns a URL-safe random token carrying 256 bits of entropy.
func NewResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("security: generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DigestToken returns the hex SHA-256 of a token for storage and lookup.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
