package auth

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/computer-anything/blog-backend/internal/account"
	"github.com/computer-anything/blog-backend/internal/models"
	"github.com/computer-anything/blog-backend/internal/security"
)

// Toggle2FA turns the emailed second factor on or off.
func (s *Service) Toggle2FA(ctx context.Context, userID uint64, enable bool) (*models.User, error) {
	user, errFind := s.findUser(ctx, userID)
	if errFind != nil {
		return nil, errFind
	}
	user.TwoFAEnabled = enable
	if !enable {
		account.ClearCode(user)
	}
	if errSave := s.accounts.SaveTwoFactor(ctx, user); errSave != nil {
		return nil, errSave
	}
	log.WithFields(log.Fields{"user_id": user.ID, "enabled": enable}).Info("auth: two-factor setting changed")
	return user, nil
}

// ProfileInput is the editable part of an account.
type ProfileInput struct {
	Username string
	Email    string
}

// UpdateProfile renames the account or changes its email. A new email address
// must be verified again before the next login.
func (s *Service) UpdateProfile(ctx context.Context, userID uint64, in ProfileInput) (*models.User, error) {
	username := security.NormalizeUsername(in.Username)
	if msg := security.ValidateUsername(username); msg != "" {
		return nil, invalid(msg)
	}
	email := security.NormalizeEmail(in.Email)
	if msg := security.ValidateEmail(email); msg != "" {
		return nil, invalid(msg)
	}

	user, errFind := s.findUser(ctx, userID)
	if errFind != nil {
		return nil, errFind
	}
	usernameTaken, emailTaken, errTaken := s.accounts.Taken(ctx, username, email, user.ID)
	if errTaken != nil {
		return nil, errTaken
	}
	if usernameTaken || emailTaken {
		return nil, ErrAlreadyExists
	}

	emailChanged := email != user.Email
	user.Username = username
	user.Email = email
	var code string
	if emailChanged {
		user.IsVerified = false
		issued, errCode := account.IssueCode(user, account.RegistrationCodeTTL, s.now())
		if errCode != nil {
			return nil, errCode
		}
		code = issued
	}
	if errSave := s.accounts.SaveProfile(ctx, user, emailChanged); errSave != nil {
		return nil, mapStoreError(errSave)
	}
	if emailChanged {
		if errSend := s.mailer.SendVerificationCode(ctx, user.Email, user.Username, code, account.RegistrationCodeTTL); errSend != nil {
			log.WithError(errSend).WithField("user_id", user.ID).Warn("auth: verification email not sent")
		}
	}
	return user, nil
}

// DeleteAccount removes the account with its posts, comments and votes.
func (s *Service) DeleteAccount(ctx context.Context, userID uint64) error {
	if errDelete := s.accounts.Delete(ctx, userID); errDelete != nil {
		return mapStoreError(errDelete)
	}
	log.WithField("user_id", userID).Info("auth: account deleted")
	return nil
}
