package models

import "time"

// User represents a blog account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:varchar(20);not null;uniqueIndex"`  // Unique lowercase login name.
	Email    string `gorm:"type:varchar(120);not null;uniqueIndex"` // Unique lowercase email address.
	Password string `gorm:"type:varchar(255);not null" json:"-"`    // Bcrypt password hash.

	IsVerified   bool  `gorm:"not null;default:false"` // Gates login.
	TokenVersion int64 `gorm:"not null;default:0"`     // Bumped to revoke every issued session.

	ResetTokenDigest *string `gorm:"type:varchar(64);uniqueIndex" json:"-"` // SHA-256 hex of the active reset token.
	ResetTokenExpiry *int64  `json:"-"`                                     // Reset token expiry, unix milliseconds UTC.

	TwoFACode      *string `gorm:"column:twofa_code;type:varchar(6)" json:"-"`  // Outstanding registration or 2FA code.
	TwoFAExpiresAt *int64  `gorm:"column:twofa_expires_at" json:"-"`            // Code expiry, unix milliseconds UTC.
	TwoFAEnabled   bool    `gorm:"column:twofa_enabled;not null;default:false"` // Login requires an emailed code.

	FailedLoginAttempts int    `gorm:"not null;default:0"` // Consecutive failed logins.
	LastFailedLogin     *int64 // Last failed login, unix milliseconds UTC.
	PasswordResetCount  int    `gorm:"not null;default:0"` // Completed password resets.
	RateLimitViolations int    `gorm:"not null;default:0"` // Throttled requests attributed to the account.

	LastLogin         *int64 // Last successful login, unix milliseconds UTC.
	LastLoginIP       string `gorm:"type:varchar(45)"`  // Client address of the last login.
	LastLoginLocation string `gorm:"type:varchar(255)"` // Resolved location of the last login.
	LastLoginBrowser  string `gorm:"type:varchar(100)"` // Browser of the last login.
	LastLoginDevice   string `gorm:"type:varchar(100)"` // Device of the last login.

	Posts    []Post    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"` // Authored posts.
	Comments []Comment `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"` // Authored comments.
	Votes    []Vote    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"` // Cast votes.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
