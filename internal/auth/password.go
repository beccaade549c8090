package auth

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/computer-anything/blog-backend/internal/account"
	"github.com/computer-anything/blog-backend/internal/alert"
	"github.com/computer-anything/blog-backend/internal/models"
	"github.com/computer-anything/blog-backend/internal/security"
)

// ChangePassword replaces the password after checking the current one and
// revokes every outstanding session.
func (s *Service) ChangePassword(ctx context.Context, userID uint64, current, next string) error {
	if current == "" || next == "" {
		return invalid("current and new password are required")
	}
	if msg := security.ValidatePassword(next); msg != "" {
		return invalid(msg)
	}
	user, errFind := s.findUser(ctx, userID)
	if errFind != nil {
		return errFind
	}
	if !account.CheckPassword(user, current) {
		return ErrIncorrectCredentials
	}
	previousVersion := user.TokenVersion
	if errSet := account.SetPassword(user, next); errSet != nil {
		return errSet
	}
	// A password changed or reset since the check above wins over this request.
	if errSave := s.accounts.SavePassword(ctx, user, previousVersion); errSave != nil {
		if errors.Is(errSave, account.ErrStale) {
			return ErrIncorrectCredentials
		}
		return errSave
	}
	log.WithField("user_id", user.ID).Info("auth: password changed")
	s.confirmPasswordChange(ctx, user)
	return nil
}

// ForgotPassword emails a reset link when email belongs to an account.
// The result is the same whether or not the account exists.
func (s *Service) ForgotPassword(ctx context.Context, email, challengeToken string, meta RequestMeta) error {
	if errChallenge := s.verifyChallenge(ctx, challengeToken, meta); errChallenge != nil {
		return errChallenge
	}
	email = security.NormalizeEmail(email)
	if email == "" {
		return invalid("email is required")
	}
	user, errFind := s.accounts.FindByEmail(ctx, email)
	if errFind != nil {
		if errors.Is(errFind, account.ErrNotFound) {
			return nil
		}
		return errFind
	}

	token, errToken := account.IssueResetToken(user, s.now())
	if errToken != nil {
		return errToken
	}
	if errSave := s.accounts.SaveResetToken(ctx, user); errSave != nil {
		return mapStoreError(errSave)
	}
	if errSend := s.mailer.SendPasswordReset(ctx, user.Email, user.Username, token); errSend != nil {
		log.WithError(errSend).WithField("user_id", user.ID).Warn("auth: password reset email not sent")
	}
	if s.notifier != nil {
		s.notifier.OnBreach(ctx, alert.PasswordResetBreach(user.Email, meta.IP, meta.UserAgent))
	}
	return nil
}

// ResetPassword consumes a reset token. A token works once, and only before it expires.
func (s *Service) ResetPassword(ctx context.Context, token, next string) error {
	if msg := security.ValidatePassword(next); msg != "" {
		return invalid(msg)
	}
	token = strings.TrimSpace(token)
	user, errFind := s.accounts.FindByResetToken(ctx, token)
	if errFind != nil {
		if errors.Is(errFind, account.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return errFind
	}
	digest := *user.ResetTokenDigest
	if !account.ResetTokenValid(user, token, s.now()) {
		if errClear := s.accounts.ClearResetToken(ctx, user.ID, digest); errClear != nil && !errors.Is(errClear, account.ErrStale) {
			log.WithError(errClear).WithField("user_id", user.ID).Warn("auth: clear expired reset token")
		}
		return ErrInvalidResetToken
	}

	if errSet := account.SetPassword(user, next); errSet != nil {
		return errSet
	}
	if errSave := s.accounts.SavePasswordIfResetToken(ctx, user, digest); errSave != nil {
		if errors.Is(errSave, account.ErrStale) {
			return ErrInvalidResetToken
		}
		return errSave
	}
	log.WithField("user_id", user.ID).Info("auth: password reset")
	s.confirmPasswordChange(ctx, user)
	return nil
}

func (s *Service) confirmPasswordChange(ctx context.Context, user *models.User) {
	if errSend := s.mailer.SendPasswordChanged(ctx, user.Email, user.Username, s.now()); errSend != nil {
		log.WithError(errSend).WithField("user_id", user.ID).Warn("auth: password change confirmation not sent")
	}
}
