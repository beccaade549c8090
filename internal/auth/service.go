// Package auth implements the account workflows: registration, login with optional
// email second factor, session tokens, password change and reset, and profile changes.
package auth

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/computer-anything/blog-backend/internal/account"
	"github.com/computer-anything/blog-backend/internal/alert"
	"github.com/computer-anything/blog-backend/internal/challenge"
	"github.com/computer-anything/blog-backend/internal/logindetails"
	"github.com/computer-anything/blog-backend/internal/mail"
	"github.com/computer-anything/blog-backend/internal/models"
	"github.com/computer-anything/blog-backend/internal/security"
)

// Locator resolves a client IP to a display location.
type Locator interface {
	Locate(ip string) string
}

// BreachNotifier receives abuse events.
type BreachNotifier interface {
	OnBreach(ctx context.Context, breach alert.Breach) alert.Outcome
}

// Deps are the collaborators of a Service.
type Deps struct {
	Accounts   *account.Store
	Tokens     *security.TokenAuthority
	Mailer     *mail.Mailer
	Locator    Locator                                 // Optional; nil reports an unknown location.
	ParseAgent func(userAgent string) (string, string) // Optional; defaults to logindetails.ParseAgent.
	Challenge  challenge.Verifier                      // Optional; nil accepts every request.
	Notifier   BreachNotifier                          // Optional.
	NowFn      func() time.Time
}

// Service runs the account workflows.
type Service struct {
	accounts   *account.Store
	tokens     *security.TokenAuthority
	mailer     *mail.Mailer
	locator    Locator
	parseAgent func(string) (string, string)
	challenge  challenge.Verifier
	notifier   BreachNotifier
	nowFn      func() time.Time
}

// NewService constructs a Service.
func NewService(deps Deps) *Service {
	s := &Service{
		accounts:   deps.Accounts,
		tokens:     deps.Tokens,
		mailer:     deps.Mailer,
		locator:    deps.Locator,
		parseAgent: deps.ParseAgent,
		challenge:  deps.Challenge,
		notifier:   deps.Notifier,
		nowFn:      deps.NowFn,
	}
	if s.parseAgent == nil {
		s.parseAgent = logindetails.ParseAgent
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	return s
}

// RequestMeta is the client context of a request.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Session is an issued access token together with its account.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

func (s *Service) now() time.Time {
	return s.nowFn().UTC()
}

// Authenticate resolves a bearer token to its account.
// Tokens issued before the last password change or logout-everywhere are rejected.
func (s *Service) Authenticate(ctx context.Context, raw string) (*models.User, error) {
	userID, version, errParse := s.tokens.Parse(raw)
	if errParse != nil {
		return nil, ErrUnauthenticated
	}
	user, errFind := s.accounts.FindByID(ctx, userID)
	if errFind != nil {
		if errors.Is(errFind, account.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, errFind
	}
	if user.TokenVersion != version {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// ExtendSession issues a fresh token for an authenticated account.
func (s *Service) ExtendSession(ctx context.Context, userID uint64) (*Session, error) {
	user, errFind := s.findUser(ctx, userID)
	if errFind != nil {
		return nil, errFind
	}
	return s.issue(user)
}

// Me returns the account for userID.
func (s *Service) Me(ctx context.Context, userID uint64) (*models.User, error) {
	return s.findUser(ctx, userID)
}

func (s *Service) issue(user *models.User) (*Session, error) {
	token, expiresAt, errIssue := s.tokens.Issue(user.ID, user.TokenVersion)
	if errIssue != nil {
		return nil, errIssue
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *Service) findUser(ctx context.Context, userID uint64) (*models.User, error) {
	user, errFind := s.accounts.FindByID(ctx, userID)
	if errFind != nil {
		if errors.Is(errFind, account.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errFind
	}
	return user, nil
}

func (s *Service) verifyChallenge(ctx context.Context, token string, meta RequestMeta) error {
	if s.challenge == nil {
		return nil
	}
	ok, errVerify := s.challenge.Verify(ctx, token, meta.IP)
	if errVerify != nil {
		log.WithError(errVerify).Warn("auth: challenge verification failed")
	}
	if !ok {
		return ErrChallengeFailed
	}
	return nil
}

func (s *Service) loginDetails(meta RequestMeta) account.LoginDetails {
	location := logindetails.LocationUnknown
	if s.locator != nil {
		location = s.locator.Locate(meta.IP)
	}
	browser, device := s.parseAgent(meta.UserAgent)
	return account.LoginDetails{IP: meta.IP, Location: location, Browser: browser, Device: device}
}

// completeLogin stamps the login, persists it, issues the token and sends the sign-in notice.
func (s *Service) completeLogin(ctx context.Context, user *models.User, meta RequestMeta) (*Session, error) {
	now := s.now()
	details := s.loginDetails(meta)
	account.RecordSuccessfulLogin(user, details, now)
	if errSave := s.accounts.SaveLogin(ctx, user); errSave != nil {
		return nil, errSave
	}
	session, errIssue := s.issue(user)
	if errIssue != nil {
		return nil, errIssue
	}
	errNotice := s.mailer.SendLoginNotice(ctx, user.Email, mail.LoginNotice{
		Username: user.Username,
		Time:     now,
		IP:       details.IP,
		Location: details.Location,
		Browser:  details.Browser,
		Device:   details.Device,
	})
	if errNotice != nil {
		log.WithError(errNotice).WithField("user_id", user.ID).Warn("auth: login notice not sent")
	}
	return session, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, account.ErrExists):
		return ErrAlreadyExists
	case errors.Is(err, account.ErrNotFound):
		return ErrNotFound
	default:
		return err
	}
}
