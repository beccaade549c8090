package security

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every reason a session token is rejected.
var ErrInvalidToken = errors.New("security: invalid session token")

// SessionClaims is the JWT payload of a session token.
type SessionClaims struct {
	TokenVersion int64 `json:"token_version"`
	jwt.RegisteredClaims
}

// TokenAuthority signs and parses session tokens.
type TokenAuthority struct {
	secret []byte
	ttl    time.Duration
	issuer string
	nowFn  func() time.Time
}

// NewTokenAuthority constructs a TokenAuthority using HS256.
func NewTokenAuthority(secret string, ttl time.Duration, issuer string, nowFn func() time.Time) (*TokenAuthority, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("security: empty token secret")
	}
	if ttl <= 0 {
		return nil, errors.New("security: token ttl must be positive")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &TokenAuthority{secret: []byte(secret), ttl: ttl, issuer: issuer, nowFn: nowFn}, nil
}

// TTL returns the lifetime of issued tokens.
func (a *TokenAuthority) TTL() time.Duration {
	return a.ttl
}

// Issue mints a token for the user bound to the given token version.
func (a *TokenAuthority) Issue(userID uint64, tokenVersion int64) (string, time.Time, error) {
	now := a.nowFn().UTC()
	expiresAt := now.Add(a.ttl)
	claims := SessionClaims{
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("security: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies signature and expiry and returns the user ID and token version.
// It performs no store lookup; callers compare the version with the account.
func (a *TokenAuthority) Parse(raw string) (uint64, int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.nowFn),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return 0, 0, ErrInvalidToken
	}
	userID, errParse := strconv.ParseUint(claims.Subject, 10, 64)
	if errParse != nil || userID == 0 {
		return 0, 0, ErrInvalidToken
	}
	return userID, claims.TokenVersion, nil
}
