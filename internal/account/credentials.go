// Package account holds the credential and one-time code rules applied to a user row
// and the repository that persists them.
package account

import (
	"time"

	"github.com/computer-anything/blog-backend/internal/models"
	"github.com/computer-anything/blog-backend/internal/security"
)

// LoginDetails is the request context stamped on a successful login.
type LoginDetails struct {
	IP       string
	Location string
	Browser  string
	Device   string
}

// SetPassword hashes plain and stores it on the user.
func SetPassword(user *models.User, plain string) error {
	hashed, err := security.HashPassword(plain)
	if err != nil {
		return err
	}
	user.Password = hashed
	return nil
}

// CheckPassword reports whether plain matches the stored hash.
func CheckPassword(user *models.User, plain string) bool {
	if user == nil {
		return false
	}
	return security.CheckPassword(user.Password, plain)
}

// RecordSuccessfulLogin stamps audit fields and resets the failure counter.
func RecordSuccessfulLogin(user *models.User, details LoginDetails, now time.Time) {
	stamp := unixMilli(now)
	user.LastLogin = &stamp
	user.LastLoginIP = details.IP
	user.LastLoginLocation = details.Location
	user.LastLoginBrowser = details.Browser
	user.LastLoginDevice = details.Device
	user.FailedLoginAttempts = 0
	user.LastFailedLogin = nil
}

func unixMilli(t time.Time) int64 {
	return t.UTC().UnixMilli()
}
