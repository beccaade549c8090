package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/computer-anything/blog-backend/internal/account"
	"github.com/computer-anything/blog-backend/internal/metrics"
	"github.com/computer-anything/blog-backend/internal/security"
)

// Login outcome labels.
const (
	outcomeAuthenticated     = "authenticated"
	outcomeTwoFactorRequired = "twofa_required"
	outcomeBadCredentials    = "bad_credentials"
	outcomeNotVerified       = "not_verified"
	outcomeInvalidCode       = "invalid_code"
)

// LoginInput is the sign-in form. Identifier is a username or an email address.
type LoginInput struct {
	Identifier     string
	Password       string
	ChallengeToken string
}

// LoginResult is either a Session or a pending second factor for Email.
type LoginResult struct {
	Session           *Session
	TwoFactorRequired bool
	Email             string
}

// Login checks credentials. Accounts with two-factor enabled receive an emailed code
// and no token until Verify2FA succeeds.
func (s *Service) Login(ctx context.Context, in LoginInput, meta RequestMeta) (*LoginResult, error) {
	if errChallenge := s.verifyChallenge(ctx, in.ChallengeToken, meta); errChallenge != nil {
		return nil, errChallenge
	}
	identifier := strings.ToLower(strings.TrimSpace(in.Identifier))
	if identifier == "" || in.Password == "" {
		return nil, invalid("username/email and password are required")
	}

	user, errFind := s.accounts.FindByIdentifier(ctx, identifier)
	if errFind != nil {
		if errors.Is(errFind, account.ErrNotFound) {
			metrics.LoginOutcomes.WithLabelValues(outcomeBadCredentials).Inc()
			return nil, ErrIncorrectCredentials
		}
		return nil, errFind
	}

	if !account.CheckPassword(user, in.Password) {
		if errRecord := s.accounts.RecordFailedLogin(ctx, user.ID, s.now()); errRecord != nil {
			return nil, errRecord
		}
		log.WithFields(log.Fields{"user_id": user.ID, "ip": meta.IP}).Info("auth: failed login")
		if !user.IsVerified {
			metrics.LoginOutcomes.WithLabelValues(outcomeNotVerified).Inc()
			return nil, ErrEmailNotVerified
		}
		metrics.LoginOutcomes.WithLabelValues(outcomeBadCredentials).Inc()
		return nil, ErrIncorrectCredentials
	}
	if !user.IsVerified {
		metrics.LoginOutcomes.WithLabelValues(outcomeNotVerified).Inc()
		return nil, ErrEmailNotVerified
	}

	if user.TwoFAEnabled {
		code, errCode := account.IssueCode(user, account.TwoFactorCodeTTL, s.now())
		if errCode != nil {
			return nil, errCode
		}
		if errSave := s.accounts.SaveCode(ctx, user); errSave != nil {
			return nil, errSave
		}
		if errSend := s.mailer.SendTwoFactorCode(ctx, user.Email, user.Username, code, account.TwoFactorCodeTTL); errSend != nil {
			log.WithError(errSend).WithField("user_id", user.ID).Error("auth: two-factor code not sent")
			return nil, fmt.Errorf("%w: two-factor code email: %v", ErrDependency, errSend)
		}
		metrics.LoginOutcomes.WithLabelValues(outcomeTwoFactorRequired).Inc()
		return &LoginResult{TwoFactorRequired: true, Email: user.Email}, nil
	}

	session, errLogin := s.completeLogin(ctx, user, meta)
	if errLogin != nil {
		return nil, errLogin
	}
	metrics.LoginOutcomes.WithLabelValues(outcomeAuthenticated).Inc()
	return &LoginResult{Session: session}, nil
}

// Verify2FA completes a two-factor login.
func (s *Service) Verify2FA(ctx context.Context, email, code string, meta RequestMeta) (*Session, error) {
	email = security.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, invalid("email and code are required")
	}
	user, errFind := s.accounts.FindByEmail(ctx, email)
	if errFind != nil {
		if errors.Is(errFind, account.ErrNotFound) {
			metrics.LoginOutcomes.WithLabelValues(outcomeInvalidCode).Inc()
			return nil, ErrInvalidCode
		}
		return nil, errFind
	}
	// A pending registration code must not double as a login code.
	if !user.IsVerified || !account.CodeValid(user, code, s.now()) {
		metrics.LoginOutcomes.WithLabelValues(outcomeInvalidCode).Inc()
		return nil, ErrInvalidCode
	}
	if errConsume := s.accounts.ConsumeCode(ctx, user, code, false, s.now()); errConsume != nil {
		if errors.Is(errConsume, account.ErrStale) {
			metrics.LoginOutcomes.WithLabelValues(outcomeInvalidCode).Inc()
			return nil, ErrInvalidCode
		}
		return nil, errConsume
	}
	session, errLogin := s.completeLogin(ctx, user, meta)
	if errLogin != nil {
		return nil, errLogin
	}
	metrics.LoginOutcomes.WithLabelValues(outcomeAuthenticated).Inc()
	return session, nil
}
