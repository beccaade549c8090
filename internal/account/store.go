package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/computer-anything/blog-backend/internal/db"
	"github.com/computer-anything/blog-backend/internal/models"
	"github.com/computer-anything/blog-backend/internal/security"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the account does not exist.
	ErrNotFound = errors.New("account: not found")
	// ErrExists indicates a username or email collision.
	ErrExists = errors.New("account: username or email already exists")
	// ErrStale indicates a guarded write lost to a concurrent change of the same row.
	ErrStale = errors.New("account: changed concurrently")
)

// Store persists accounts through GORM.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store.
func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// Create inserts a new account. Uniqueness races surface as ErrExists.
func (s *Store) Create(ctx context.Context, user *models.User) error {
	if errCreate := s.db.WithContext(ctx).Create(user).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return ErrExists
		}
		return fmt.Errorf("account: create: %w", errCreate)
	}
	return nil
}

// RecordFailedLogin counts a failed attempt in storage without touching credentials.
func (s *Store) RecordFailedLogin(ctx context.Context, id uint64, now time.Time) error {
	_, err := s.update(ctx, id, map[string]any{
		"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
		"last_failed_login":     unixMilli(now),
	})
	return err
}

// SaveLogin persists the audit fields stamped by RecordSuccessfulLogin.
func (s *Store) SaveLogin(ctx context.Context, user *models.User) error {
	_, err := s.update(ctx, user.ID, map[string]any{
		"last_login":            user.LastLogin,
		"last_login_ip":         user.LastLoginIP,
		"last_login_location":   user.LastLoginLocation,
		"last_login_browser":    user.LastLoginBrowser,
		"last_login_device":     user.LastLoginDevice,
		"failed_login_attempts": 0,
		"last_failed_login":     nil,
	})
	return err
}

// SaveCode persists the outstanding one-time code and its expiry.
func (s *Store) SaveCode(ctx context.Context, user *models.User) error {
	_, err := s.update(ctx, user.ID, map[string]any{
		"twofa_code":       user.TwoFACode,
		"twofa_expires_at": user.TwoFAExpiresAt,
	})
	return err
}

// ConsumeCode clears code only while it is still the outstanding, unexpired code,
// so one code is redeemed at most once. markVerified also flags the email as verified.
// ErrStale reports that the code was already used, replaced or expired.
func (s *Store) ConsumeCode(ctx context.Context, user *models.User, code string, markVerified bool, now time.Time) error {
	columns := map[string]any{
		"twofa_code":       nil,
		"twofa_expires_at": nil,
	}
	if markVerified {
		columns["is_verified"] = true
	}
	affected, err := s.update(ctx, user.ID, columns,
		"twofa_code = ? AND twofa_expires_at > ?", code, unixMilli(now))
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStale
	}
	ClearCode(user)
	if markVerified {
		user.IsVerified = true
	}
	return nil
}

// SaveTwoFactor persists the two-factor switch. Turning it off also drops any
// outstanding code.
func (s *Store) SaveTwoFactor(ctx context.Context, user *models.User) error {
	columns := map[string]any{"twofa_enabled": user.TwoFAEnabled}
	if !user.TwoFAEnabled {
		columns["twofa_code"] = nil
		columns["twofa_expires_at"] = nil
	}
	_, err := s.update(ctx, user.ID, columns)
	return err
}

// SaveProfile persists username and email. When the email changed, the reset
// verification state and its new code are written with it.
func (s *Store) SaveProfile(ctx context.Context, user *models.User, emailChanged bool) error {
	columns := map[string]any{
		"username": user.Username,
		"email":    user.Email,
	}
	if emailChanged {
		columns["is_verified"] = user.IsVerified
		columns["twofa_code"] = user.TwoFACode
		columns["twofa_expires_at"] = user.TwoFAExpiresAt
	}
	_, err := s.update(ctx, user.ID, columns)
	return err
}

// SaveResetToken persists the digest and expiry of a freshly issued reset token.
func (s *Store) SaveResetToken(ctx context.Context, user *models.User) error {
	_, err := s.update(ctx, user.ID, map[string]any{
		"reset_token_digest": user.ResetTokenDigest,
		"reset_token_expiry": user.ResetTokenExpiry,
	})
	return err
}

// ClearResetToken drops the reset token while its digest still equals digest.
func (s *Store) ClearResetToken(ctx context.Context, id uint64, digest string) error {
	affected, err := s.update(ctx, id, map[string]any{
		"reset_token_digest": nil,
		"reset_token_expiry": nil,
	}, "reset_token_digest = ?", digest)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStale
	}
	return nil
}

// SavePassword stores a new password hash together with the bumped token version
// and drops any pending reset. The write applies only while the stored version is
// still previousVersion, so a concurrent credential change is never overwritten.
func (s *Store) SavePassword(ctx context.Context, user *models.User, previousVersion int64) error {
	affected, err := s.update(ctx, user.ID, map[string]any{
		"password":           user.Password,
		"token_version":      gorm.Expr("token_version + 1"),
		"reset_token_digest": nil,
		"reset_token_expiry": nil,
	}, "token_version = ?", previousVersion)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStale
	}
	user.TokenVersion = previousVersion + 1
	ClearResetToken(user)
	return nil
}

// SavePasswordIfResetToken stores a new password hash and bumps the token version
// only while the stored reset token digest still equals digest, so a reset token
// is consumed at most once.
func (s *Store) SavePasswordIfResetToken(ctx context.Context, user *models.User, digest string) error {
	affected, err := s.update(ctx, user.ID, map[string]any{
		"password":             user.Password,
		"token_version":        gorm.Expr("token_version + 1"),
		"password_reset_count": gorm.Expr("password_reset_count + 1"),
		"reset_token_digest":   nil,
		"reset_token_expiry":   nil,
	}, "reset_token_digest = ?", digest)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStale
	}
	user.TokenVersion++
	user.PasswordResetCount++
	ClearResetToken(user)
	return nil
}

// update writes columns to the account row, optionally guarded by an extra condition,
// and reports how many rows matched.
func (s *Store) update(ctx context.Context, id uint64, columns map[string]any, cond ...any) (int64, error) {
	if id == 0 {
		return 0, fmt.Errorf("account: update: missing id")
	}
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id)
	if len(cond) > 0 {
		q = q.Where(cond[0], cond[1:]...)
	}
	res := q.Updates(columns)
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error) {
			return 0, ErrExists
		}
		return 0, fmt.Errorf("account: update: %w", res.Error)
	}
	if res.RowsAffected == 0 && len(cond) == 0 {
		return 0, ErrNotFound
	}
	return res.RowsAffected, nil
}

// FindByID loads an account by primary key.
func (s *Store) FindByID(ctx context.Context, id uint64) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

// FindByEmail loads an account by normalized email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "email = ?", security.NormalizeEmail(email))
}

// FindByUsername loads an account by normalized username.
func (s *Store) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.first(ctx, "username = ?", security.NormalizeUsername(username))
}

// FindByIdentifier loads an account by email when the identifier contains '@', otherwise by username.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	if strings.Contains(identifier, "@") {
		return s.FindByEmail(ctx, identifier)
	}
	return s.FindByUsername(ctx, identifier)
}

// FindByResetToken loads the account holding the given reset token.
func (s *Store) FindByResetToken(ctx context.Context, token string) (*models.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotFound
	}
	return s.first(ctx, "reset_token_digest = ?", security.DigestToken(token))
}

// Taken reports whether username or email belongs to an account other than excludeID.
func (s *Store) Taken(ctx context.Context, username, email string, excludeID uint64) (usernameTaken, emailTaken bool, err error) {
	var rows []models.User
	q := s.db.WithContext(ctx).
		Select("id", "username", "email").
		Where("username = ? OR email = ?", username, email)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if errFind := q.Find(&rows).Error; errFind != nil {
		return false, false, fmt.Errorf("account: check taken: %w", errFind)
	}
	for _, row := range rows {
		if row.Username == username {
			usernameTaken = true
		}
		if row.Email == email {
			emailTaken = true
		}
	}
	return usernameTaken, emailTaken, nil
}

// Delete removes the account and everything it owns in one transaction.
// Votes cast on the user's posts by others go with the posts.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ownPosts := tx.Model(&models.Post{}).Select("id").Where("user_id = ?", id)
		if errVotes := tx.Where("user_id = ? OR post_id IN (?)", id, ownPosts).Delete(&models.Vote{}).Error; errVotes != nil {
			return fmt.Errorf("account: delete votes: %w", errVotes)
		}
		if errComments := tx.Where("user_id = ? OR post_id IN (?)", id, ownPosts).Delete(&models.Comment{}).Error; errComments != nil {
			return fmt.Errorf("account: delete comments: %w", errComments)
		}
		if errPosts := tx.Where("user_id = ?", id).Delete(&models.Post{}).Error; errPosts != nil {
			return fmt.Errorf("account: delete posts: %w", errPosts)
		}
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return fmt.Errorf("account: delete user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// IncrementRateLimitViolations bumps the throttling counter without loading the row.
func (s *Store) IncrementRateLimitViolations(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("rate_limit_violations", gorm.Expr("rate_limit_violations + 1"))
	if res.Error != nil {
		return fmt.Errorf("account: increment rate limit violations: %w", res.Error)
	}
	return nil
}

// ClearExpiredResetTokens clears reset tokens whose expiry is at or before now.
func (s *Store) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("reset_token_expiry IS NOT NULL AND reset_token_expiry <= ?", unixMilli(now)).
		UpdateColumns(map[string]any{
			"reset_token_digest": nil,
			"reset_token_expiry": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("account: clear expired reset tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) first(ctx context.Context, query string, args ...any) (*models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).Where(query, args...).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("account: find: %w", errFind)
	}
	return &user, nil
}
