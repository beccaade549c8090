package account

import (
	"crypto/subtle"
	"time"

	"github.com/computer-anything/blog-backend/internal/models"
	"github.com/computer-anything/blog-backend/internal/security"
)

// Code lifetimes.
const (
	RegistrationCodeTTL = 10 * time.Minute
	TwoFactorCodeTTL    = 5 * time.Minute
	ResetTokenTTL       = time.Hour
)

// IssueCode stores a fresh six-digit code, replacing any outstanding one.
func IssueCode(user *models.User, ttl time.Duration, now time.Time) (string, error) {
	code, err := security.NewNumericCode()
	if err != nil {
		return "", err
	}
	expiresAt := unixMilli(now.Add(ttl))
	user.TwoFACode = &code
	user.TwoFAExpiresAt = &expiresAt
	return code, nil
}

// CodeValid reports whether code matches the outstanding, unexpired code.
func CodeValid(user *models.User, code string, now time.Time) bool {
	if user == nil || user.TwoFACode == nil || user.TwoFAExpiresAt == nil || code == "" {
		return false
	}
	if *user.TwoFAExpiresAt <= unixMilli(now) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*user.TwoFACode), []byte(code)) == 1
}

// ClearCode removes the outstanding code and its expiry.
func ClearCode(user *models.User) {
	user.TwoFACode = nil
	user.TwoFAExpiresAt = nil
}

// CodeExpiresAt returns the outstanding code expiry, if any.
func CodeExpiresAt(user *models.User) (time.Time, bool) {
	if user == nil || user.TwoFAExpiresAt == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*user.TwoFAExpiresAt).UTC(), true
}

// IssueResetToken stores the digest of a fresh reset token and returns the token.
// Only one reset may be in flight, so the previous token stops working.
func IssueResetToken(user *models.User, now time.Time) (string, error) {
	token, err := security.NewResetToken()
	if err != nil {
		return "", err
	}
	digest := security.DigestToken(token)
	expiresAt := unixMilli(now.Add(ResetTokenTTL))
	user.ResetTokenDigest = &digest
	user.ResetTokenExpiry = &expiresAt
	return token, nil
}

// ResetTokenValid reports whether token matches the outstanding, unexpired reset token.
func ResetTokenValid(user *models.User, token string, now time.Time) bool {
	if user == nil || user.ResetTokenDigest == nil || user.ResetTokenExpiry == nil || token == "" {
		return false
	}
	if *user.ResetTokenExpiry <= unixMilli(now) {
		return false
	}
	digest := security.DigestToken(token)
	return subtle.ConstantTimeCompare([]byte(*user.ResetTokenDigest), []byte(digest)) == 1
}

// ClearResetToken removes the reset token and its expiry.
func ClearResetToken(user *models.User) {
	user.ResetTokenDigest = nil
	user.ResetTokenExpiry = nil
}
