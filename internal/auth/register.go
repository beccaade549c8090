package auth

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/computer-anything/blog-backend/internal/account"
	"github.com/computer-anything/blog-backend/internal/models"
	"github.com/computer-anything/blog-backend/internal/security"
)

// RegisterInput is the registration form.
type RegisterInput struct {
	Username       string
	Email          string
	Password       string
	ChallengeToken string
	Honeypot       string // Hidden "website" field; humans leave it empty.
}

// Register creates an unverified account and emails its verification code.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (*models.User, error) {
	if strings.TrimSpace(in.Honeypot) != "" {
		log.WithField("ip", meta.IP).Warn("auth: registration honeypot triggered")
		return nil, invalid("bot detected")
	}
	if errChallenge := s.verifyChallenge(ctx, in.ChallengeToken, meta); errChallenge != nil {
		return nil, errChallenge
	}

	rawUsername := strings.TrimSpace(in.Username)
	username := security.NormalizeUsername(rawUsername)
	if rawUsername != username {
		return nil, invalid("username must be lowercase")
	}
	if msg := security.ValidateUsername(username); msg != "" {
		return nil, invalid(msg)
	}
	email := security.NormalizeEmail(in.Email)
	if msg := security.ValidateEmail(email); msg != "" {
		return nil, invalid(msg)
	}
	if msg := security.ValidatePassword(in.Password); msg != "" {
		return nil, invalid(msg)
	}

	usernameTaken, emailTaken, errTaken := s.accounts.Taken(ctx, username, email, 0)
	if errTaken != nil {
		return nil, errTaken
	}
	if usernameTaken || emailTaken {
		return nil, ErrAlreadyExists
	}

	user := &models.User{Username: username, Email: email}
	if errPassword := account.SetPassword(user, in.Password); errPassword != nil {
		return nil, errPassword
	}
	code, errCode := account.IssueCode(user, account.RegistrationCodeTTL, s.now())
	if errCode != nil {
		return nil, errCode
	}
	if errCreate := s.accounts.Create(ctx, user); errCreate != nil {
		return nil, mapStoreError(errCreate)
	}

	if errSend := s.mailer.SendVerificationCode(ctx, user.Email, user.Username, code, account.RegistrationCodeTTL); errSend != nil {
		log.WithError(errSend).WithField("user_id", user.ID).Warn("auth: verification email not sent")
	}
	log.WithField("user_id", user.ID).Info("auth: account registered")
	return user, nil
}

// VerifyRegistration confirms an email address with its code and signs the account in.
func (s *Service) VerifyRegistration(ctx context.Context, email, code string, meta RequestMeta) (*Session, error) {
	user, errFind := s.accounts.FindByEmail(ctx, security.NormalizeEmail(email))
	if errFind != nil {
		if errors.Is(errFind, account.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, errFind
	}
	if user.IsVerified {
		return nil, invalid("email already verified")
	}
	code = strings.TrimSpace(code)
	if !account.CodeValid(user, code, s.now()) {
		return nil, ErrInvalidCode
	}
	if errConsume := s.accounts.ConsumeCode(ctx, user, code, true, s.now()); errConsume != nil {
		if errors.Is(errConsume, account.ErrStale) {
			return nil, ErrInvalidCode
		}
		return nil, errConsume
	}
	return s.completeLogin(ctx, user, meta)
}

// ResendVerification issues a new registration code, replacing the outstanding one.
// identifier is a username or an email address.
func (s *Service) ResendVerification(ctx context.Context, identifier string) error {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return invalid("username or email is required")
	}
	user, errFind := s.accounts.FindByIdentifier(ctx, identifier)
	if errFind != nil {
		return mapStoreError(errFind)
	}
	if user.IsVerified {
		return invalid("email already verified")
	}
	code, errCode := account.IssueCode(user, account.RegistrationCodeTTL, s.now())
	if errCode != nil {
		return errCode
	}
	if errSave := s.accounts.SaveCode(ctx, user); errSave != nil {
		return errSave
	}
	if errSend := s.mailer.SendVerificationCode(ctx, user.Email, user.Username, code, account.RegistrationCodeTTL); errSend != nil {
		log.WithError(errSend).WithField("user_id", user.ID).Warn("auth: verification email not sent")
	}
	return nil
}
