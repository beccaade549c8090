package security

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Password policy bounds.
const (
	PasswordMinLength     = 8
	PasswordLongLength    = 12
	PasswordMaxLength     = 128
	UsernameMinLength     = 3
	UsernameMaxLength     = 20
	passwordSpecialChars  = "!@#$%^&*(),.?\":{}|<>_-+=[]\\/`~;"
	passwordLengthMessage = "password must be at least 8 characters long"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

var commonPasswords = map[string]struct{}{
	"password": {}, "123456": {}, "12345678": {}, "qwerty": {}, "abc123": {},
	"monkey": {}, "1234567": {}, "letmein": {}, "trustno1": {}, "dragon": {},
	"baseball": {}, "111111": {}, "iloveyou": {}, "master": {}, "sunshine": {},
	"ashley": {}, "bailey": {}, "passw0rd": {}, "shadow": {}, "123123": {},
	"654321": {}, "superman": {}, "qazwsx": {}, "michael": {}, "football": {},
	"password1": {}, "password123": {}, "admin": {}, "welcome": {}, "login": {},
	"password1234": {}, "password123!": {}, "qwerty123456": {}, "123456789012": {},
	"iloveyou1234": {}, "qwertyuiop123": {}, "welcome12345": {}, "letmein12345": {},
}

// ValidatePassword checks the password policy.
// It returns an empty string when the password is acceptable, otherwise the first unmet requirement.
func ValidatePassword(password string) string {
	if password == "" {
		return "password is required"
	}
	length := utf8.RuneCountInString(password)
	if length < PasswordMinLength {
		return passwordLengthMessage
	}
	if length > PasswordMaxLength {
		return "password must be at most 128 characters long"
	}

	if length < PasswordLongLength {
		var hasUpper, hasLower, hasDigit, hasSpecial bool
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				hasUpper = true
			case unicode.IsLower(r):
				hasLower = true
			case unicode.IsDigit(r):
				hasDigit = true
			case strings.ContainsRune(passwordSpecialChars, r):
				hasSpecial = true
			}
		}
		switch {
		case !hasUpper:
			return "password must contain at least one uppercase letter (or be 12+ characters)"
		case !hasLower:
			return "password must contain at least one lowercase letter (or be 12+ characters)"
		case !hasDigit:
			return "password must contain at least one number (or be 12+ characters)"
		case !hasSpecial:
			return "password must contain at least one special character (or be 12+ characters)"
		}
	}

	if _, common := commonPasswords[strings.ToLower(password)]; common {
		return "password is too common, please choose a stronger password"
	}
	return ""
}

// NormalizeUsername trims and lowercases a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername checks length and charset of an already-normalized username.
func ValidateUsername(username string) string {
	if username == "" {
		return "username is required"
	}
	length := utf8.RuneCountInString(username)
	if length < UsernameMinLength || length > UsernameMaxLength {
		return "username must be between 3 and 20 characters"
	}
	if !usernamePattern.MatchString(username) {
		return "username can only contain lowercase letters, numbers, and underscores"
	}
	return ""
}

// ValidateEmail performs a shape check on an already-normalized email address.
func ValidateEmail(email string) string {
	if email == "" {
		return "email is required"
	}
	if len(email) > 120 {
		return "email must be at most 120 characters long"
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return "invalid email address"
	}
	if !strings.Contains(email[at+1:], ".") {
		return "invalid email address"
	}
	return ""
}
