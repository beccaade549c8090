package auth

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/computer-anything/blog-backend/internal/account"
	"github.com/computer-anything/blog-backend/internal/alert"
	"github.com/computer-anything/blog-backend/internal/db"
	"github.com/computer-anything/blog-backend/internal/mail"
	"github.com/computer-anything/blog-backend/internal/models"
	"github.com/computer-anything/blog-backend/internal/security"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureSender struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
	fail     bool
}

func (s *captureSender) Send(_ context.Context, _ []string, subject, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("smtp unavailable")
	}
	s.subjects = append(s.subjects, subject)
	s.bodies = append(s.bodies, html)
	return nil
}

func (s *captureSender) last() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subjects) == 0 {
		return "", ""
	}
	return s.subjects[len(s.subjects)-1], s.bodies[len(s.bodies)-1]
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subjects)
}

type fakeChallenge struct {
	pass bool
}

func (f fakeChallenge) Verify(context.Context, string, string) (bool, error) {
	return f.pass, nil
}

type fakeNotifier struct {
	breaches []alert.Breach
}

func (f *fakeNotifier) OnBreach(_ context.Context, breach alert.Breach) alert.Outcome {
	f.breaches = append(f.breaches, breach)
	return alert.OutcomeSent
}

type fixedLocator struct{}

func (fixedLocator) Locate(string) string { return "Paris, France" }

type harness struct {
	svc      *Service
	conn     *gorm.DB
	sender   *captureSender
	clock    *testClock
	notifier *fakeNotifier
	tokens   *security.TokenAuthority
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "auth-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	clock := &testClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	tokens, err := security.NewTokenAuthority("test-secret", 4*time.Hour, "blog", clock.Now)
	if err != nil {
		t.Fatalf("token authority: %v", err)
	}
	renderer, err := mail.NewRenderer()
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	sender := &captureSender{}
	notifier := &fakeNotifier{}
	svc := NewService(Deps{
		Accounts:  account.NewStore(conn),
		Tokens:    tokens,
		Mailer:    mail.NewMailer(sender, renderer, "https://blog.example.com", time.Second),
		Locator:   fixedLocator{},
		Challenge: fakeChallenge{pass: true},
		Notifier:  notifier,
		NowFn:     clock.Now,
	})
	return &harness{svc: svc, conn: conn, sender: sender, clock: clock, notifier: notifier, tokens: tokens}
}

var meta = RequestMeta{IP: "203.0.113.7", UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"}

func (h *harness) register(t *testing.T, username, email, password string) *models.User {
	t.Helper()
	user, err := h.svc.Register(context.Background(), RegisterInput{Username: username, Email: email, Password: password}, meta)
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user
}

func (h *harness) load(t *testing.T, id uint64) *models.User {
	t.Helper()
	var user models.User
	if err := h.conn.First(&user, id).Error; err != nil {
		t.Fatalf("load user %d: %v", id, err)
	}
	return &user
}

func (h *harness) pendingCode(t *testing.T, id uint64) string {
	t.Helper()
	user := h.load(t, id)
	if user.TwoFACode == nil {
		t.Fatalf("expected a pending code for user %d", id)
	}
	return *user.TwoFACode
}

func (h *harness) markVerified(t *testing.T, id uint64) {
	t.Helper()
	if err := h.conn.Model(&models.User{}).Where("id = ?", id).Update("is_verified", true).Error; err != nil {
		t.Fatalf("mark verified: %v", err)
	}
}

func TestLifecycle_PasswordChangeRevokesSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "alice", "alice@x.com", "Aa1!aaaa")
	if user.IsVerified {
		t.Fatalf("expected new account to be unverified")
	}

	_, err := h.svc.Login(ctx, LoginInput{Identifier: "alice", Password: "Aa1!aaaa"}, meta)
	if !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}
	_, err = h.svc.Login(ctx, LoginInput{Identifier: "alice", Password: "wrong-password"}, meta)
	if !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified for wrong password, got %v", err)
	}
	if h.load(t, user.ID).FailedLoginAttempts != 1 {
		t.Fatalf("expected failed attempt recorded")
	}

	h.markVerified(t, user.ID)
	res, err := h.svc.Login(ctx, LoginInput{Identifier: "alice@x.com", Password: "Aa1!aaaa"}, meta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.TwoFactorRequired || res.Session == nil {
		t.Fatalf("expected direct session, got %+v", res)
	}
	if _, version, errParse := h.tokens.Parse(res.Session.Token); errParse != nil || version != 0 {
		t.Fatalf("expected token version 0, got %d (%v)", version, errParse)
	}
	if _, errAuth := h.svc.Authenticate(ctx, res.Session.Token); errAuth != nil {
		t.Fatalf("authenticate: %v", errAuth)
	}
	stamped := h.load(t, user.ID)
	if stamped.LastLoginIP != meta.IP || stamped.LastLoginLocation != "Paris, France" || stamped.FailedLoginAttempts != 0 {
		t.Fatalf("expected login audit fields, got %+v", stamped)
	}
	if stamped.LastLoginBrowser == "" || stamped.LastLoginDevice == "" {
		t.Fatalf("expected browser and device recorded")
	}

	if errChange := h.svc.ChangePassword(ctx, user.ID, "wrong-current", "Bb2@bbbb"); !errors.Is(errChange, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for wrong current password, got %v", errChange)
	}
	if errChange := h.svc.ChangePassword(ctx, user.ID, "Aa1!aaaa", "Bb2@bbbb"); errChange != nil {
		t.Fatalf("change password: %v", errChange)
	}
	if got := h.load(t, user.ID).TokenVersion; got != 1 {
		t.Fatalf("expected token version 1, got %d", got)
	}
	if _, errAuth := h.svc.Authenticate(ctx, res.Session.Token); !errors.Is(errAuth, ErrUnauthenticated) {
		t.Fatalf("expected old token rejected, got %v", errAuth)
	}
	if subject, _ := h.sender.last(); subject != "Your password was changed" {
		t.Fatalf("expected confirmation email, got %q", subject)
	}

	res, err = h.svc.Login(ctx, LoginInput{Identifier: "alice", Password: "Bb2@bbbb"}, meta)
	if err != nil {
		t.Fatalf("login after change: %v", err)
	}
	if _, version, _ := h.tokens.Parse(res.Session.Token); version != 1 {
		t.Fatalf("expected token version 1, got %d", version)
	}
}

func TestLogin_IncorrectCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "bob", "bob@x.com", "Aa1!aaaa")
	h.markVerified(t, user.ID)

	if _, err := h.svc.Login(ctx, LoginInput{Identifier: "bob", Password: "nope"}, meta); !errors.Is(err, ErrIncorrectCredentials) {
		t.Fatalf("expected ErrIncorrectCredentials, got %v", err)
	}
	if _, err := h.svc.Login(ctx, LoginInput{Identifier: "nobody", Password: "Aa1!aaaa"}, meta); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for unknown user, got %v", err)
	}
	if _, err := h.svc.Login(ctx, LoginInput{Identifier: "bob"}, meta); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing password, got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"short username", RegisterInput{Username: "ab", Email: "ab@x.com", Password: "Aa1!aaaa"}},
		{"uppercase username", RegisterInput{Username: "Alice", Email: "a@x.com", Password: "Aa1!aaaa"}},
		{"bad charset", RegisterInput{Username: "al-ice", Email: "a@x.com", Password: "Aa1!aaaa"}},
		{"missing email", RegisterInput{Username: "alice", Password: "Aa1!aaaa"}},
		{"weak password", RegisterInput{Username: "alice", Email: "a@x.com", Password: "aaaaaaaa"}},
		{"short password", RegisterInput{Username: "alice", Email: "a@x.com", Password: "short1!"}},
		{"common password", RegisterInput{Username: "alice", Email: "a@x.com", Password: "password1234"}},
		{"honeypot", RegisterInput{Username: "alice", Email: "a@x.com", Password: "Aa1!aaaa", Honeypot: "http://spam"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Register(ctx, tc.in, meta)
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Message == "" {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if h.sender.count() != 0 {
		t.Fatalf("expected no email for rejected registrations")
	}

	user := h.register(t, "abc", "abc@x.com", "aaaaaaaaaaaa")
	if user.Username != "abc" {
		t.Fatalf("expected username abc, got %q", user.Username)
	}
	if subject, _ := h.sender.last(); subject != "Verify your email address" {
		t.Fatalf("expected verification email, got %q", subject)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice", "alice@x.com", "Aa1!aaaa")

	_, err := h.svc.Register(ctx, RegisterInput{Username: "alice2", Email: "ALICE@x.com", Password: "Aa1!aaaa"}, meta)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	_, err = h.svc.Register(ctx, RegisterInput{Username: "alice", Email: "other@x.com", Password: "Aa1!aaaa"}, meta)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for username, got %v", err)
	}
	var count int64
	if errCount := h.conn.Model(&models.User{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected one account, got %d", count)
	}
}

func TestRegister_ChallengeRejected(t *testing.T) {
	h := newHarness(t)
	h.svc.challenge = fakeChallenge{pass: false}
	_, err := h.svc.Register(context.Background(), RegisterInput{Username: "alice", Email: "a@x.com", Password: "Aa1!aaaa"}, meta)
	if !errors.Is(err, ErrChallengeFailed) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrChallengeFailed, got %v", err)
	}
}

func TestVerifyRegistration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "carol", "carol@x.com", "Aa1!aaaa")
	code := h.pendingCode(t, user.ID)

	if _, err := h.svc.VerifyRegistration(ctx, "carol@x.com", "000000x", meta); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, err := h.svc.VerifyRegistration(ctx, "nobody@x.com", code, meta); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for unknown email, got %v", err)
	}
	// A registration code is not a login code.
	if _, err := h.svc.Verify2FA(ctx, "carol@x.com", code, meta); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected registration code rejected by Verify2FA, got %v", err)
	}

	session, err := h.svc.VerifyRegistration(ctx, "carol@x.com", code, meta)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if session.Token == "" || !session.User.IsVerified {
		t.Fatalf("expected verified session")
	}
	stored := h.load(t, user.ID)
	if stored.TwoFACode != nil || !stored.IsVerified || stored.LastLogin == nil {
		t.Fatalf("expected code cleared and login stamped")
	}
	if subject, _ := h.sender.last(); subject != "New sign-in to your account" {
		t.Fatalf("expected login notice, got %q", subject)
	}
	if _, err := h.svc.VerifyRegistration(ctx, "carol@x.com", code, meta); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected already verified, got %v", err)
	}
}

func TestVerifyRegistration_Expired(t *testing.T) {
	h := newHarness(t)
	user := h.register(t, "dave", "dave@x.com", "Aa1!aaaa")
	code := h.pendingCode(t, user.ID)
	h.clock.Advance(account.RegistrationCodeTTL + time.Second)
	if _, err := h.svc.VerifyRegistration(context.Background(), "dave@x.com", code, meta); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected expired code rejected, got %v", err)
	}
}

func TestResendVerification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "erin", "erin@x.com", "Aa1!aaaa")
	first := h.pendingCode(t, user.ID)

	if err := h.svc.ResendVerification(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	h.clock.Advance(time.Minute)
	if err := h.svc.ResendVerification(ctx, "erin"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	second := h.pendingCode(t, user.ID)
	expiresAt, _ := account.CodeExpiresAt(h.load(t, user.ID))
	if !expiresAt.Equal(h.clock.Now().Add(account.RegistrationCodeTTL)) {
		t.Fatalf("expected fresh expiry, got %v", expiresAt)
	}
	if first != second {
		if _, err := h.svc.VerifyRegistration(ctx, "erin@x.com", first, meta); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("expected replaced code rejected, got %v", err)
		}
	}

	h.markVerified(t, user.ID)
	if err := h.svc.ResendVerification(ctx, "erin@x.com"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for verified account, got %v", err)
	}
}

func TestLogin_TwoFactor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "frank", "frank@x.com", "Aa1!aaaa")
	h.markVerified(t, user.ID)
	if _, err := h.svc.Toggle2FA(ctx, user.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	res, err := h.svc.Login(ctx, LoginInput{Identifier: "frank", Password: "Aa1!aaaa"}, meta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.TwoFactorRequired || res.Session != nil || res.Email != "frank@x.com" {
		t.Fatalf("expected pending second factor without a token, got %+v", res)
	}
	if subject, _ := h.sender.last(); subject != "Your login verification code" {
		t.Fatalf("expected two-factor email, got %q", subject)
	}
	code := h.pendingCode(t, user.ID)

	if _, err := h.svc.Verify2FA(ctx, "frank@x.com", "123", meta); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	session, err := h.svc.Verify2FA(ctx, "frank@x.com", code, meta)
	if err != nil {
		t.Fatalf("verify 2fa: %v", err)
	}
	if session.Token == "" {
		t.Fatalf("expected token")
	}
	if h.load(t, user.ID).TwoFACode != nil {
		t.Fatalf("expected code cleared")
	}
	if _, err := h.svc.Verify2FA(ctx, "frank@x.com", code, meta); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected used code rejected, got %v", err)
	}
}

func TestLogin_TwoFactorExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "gina", "gina@x.com", "Aa1!aaaa")
	h.markVerified(t, user.ID)
	if _, err := h.svc.Toggle2FA(ctx, user.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := h.svc.Login(ctx, LoginInput{Identifier: "gina", Password: "Aa1!aaaa"}, meta); err != nil {
		t.Fatalf("login: %v", err)
	}
	code := h.pendingCode(t, user.ID)
	h.clock.Advance(account.TwoFactorCodeTTL + time.Millisecond)
	if _, err := h.svc.Verify2FA(ctx, "gina@x.com", code, meta); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected expired code rejected, got %v", err)
	}
}

func TestLogin_TwoFactorEmailFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "hank", "hank@x.com", "Aa1!aaaa")
	h.markVerified(t, user.ID)
	if _, err := h.svc.Toggle2FA(ctx, user.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	h.sender.fail = true
	if _, err := h.svc.Login(ctx, LoginInput{Identifier: "hank", Password: "Aa1!aaaa"}, meta); !errors.Is(err, ErrDependency) {
		t.Fatalf("expected ErrDependency, got %v", err)
	}

	if _, err := h.svc.Toggle2FA(ctx, user.ID, false); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	res, err := h.svc.Login(ctx, LoginInput{Identifier: "hank", Password: "Aa1!aaaa"}, meta)
	if err != nil || res.Session == nil {
		t.Fatalf("expected login despite notice failure, got %v", err)
	}
}

var resetLinkPattern = regexp.MustCompile(`/reset-password/([A-Za-z0-9_-]+)`)

func (h *harness) resetToken(t *testing.T) string {
	t.Helper()
	_, body := h.sender.last()
	match := resetLinkPattern.FindStringSubmatch(body)
	if match == nil {
		t.Fatalf("expected reset link in %q", body)
	}
	return match[1]
}

func TestForgotAndResetPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "ivy", "ivy@x.com", "Aa1!aaaa")
	h.markVerified(t, user.ID)
	sent := h.sender.count()

	if err := h.svc.ForgotPassword(ctx, "ghost@x.com", "", meta); err != nil {
		t.Fatalf("expected nil for unknown email, got %v", err)
	}
	if h.sender.count() != sent || len(h.notifier.breaches) != 0 {
		t.Fatalf("expected no side effects for unknown email")
	}

	res, err := h.svc.Login(ctx, LoginInput{Identifier: "ivy", Password: "Aa1!aaaa"}, meta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := h.svc.ForgotPassword(ctx, "IVY@x.com", "", meta); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	if len(h.notifier.breaches) != 1 || h.notifier.breaches[0].Key != "ALERT_SENT:PASSWORD_RESET:ivy@x.com" {
		t.Fatalf("expected password reset alert, got %+v", h.notifier.breaches)
	}
	token := h.resetToken(t)
	stored := h.load(t, user.ID)
	if stored.ResetTokenDigest == nil || *stored.ResetTokenDigest == token {
		t.Fatalf("expected only the token digest stored")
	}

	if err := h.svc.ResetPassword(ctx, token, "weak"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := h.svc.ResetPassword(ctx, "not-a-token", "Cc3#cccc"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected ErrInvalidResetToken, got %v", err)
	}
	if err := h.svc.ResetPassword(ctx, "", "Cc3#cccc"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for empty token, got %v", err)
	}
	if err := h.svc.ResetPassword(ctx, token, "Cc3#cccc"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	stored = h.load(t, user.ID)
	if stored.ResetTokenDigest != nil || stored.ResetTokenExpiry != nil {
		t.Fatalf("expected reset token cleared")
	}
	if stored.PasswordResetCount != 1 || stored.TokenVersion != 1 {
		t.Fatalf("expected reset count 1 and version 1, got %d/%d", stored.PasswordResetCount, stored.TokenVersion)
	}
	if _, errAuth := h.svc.Authenticate(ctx, res.Session.Token); !errors.Is(errAuth, ErrUnauthenticated) {
		t.Fatalf("expected session revoked, got %v", errAuth)
	}
	if err := h.svc.ResetPassword(ctx, token, "Dd4$dddd"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected reused token rejected, got %v", err)
	}
	if _, err := h.svc.Login(ctx, LoginInput{Identifier: "ivy", Password: "Cc3#cccc"}, meta); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestResetPassword_Expired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "jack", "jack@x.com", "Aa1!aaaa")
	if err := h.svc.ForgotPassword(ctx, "jack@x.com", "", meta); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	token := h.resetToken(t)
	h.clock.Advance(account.ResetTokenTTL)
	if err := h.svc.ResetPassword(ctx, token, "Cc3#cccc"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
	if h.load(t, user.ID).ResetTokenDigest != nil {
		t.Fatalf("expected expired token cleared")
	}
}

func TestForgotPassword_NewTokenReplacesOld(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "kate", "kate@x.com", "Aa1!aaaa")
	if err := h.svc.ForgotPassword(ctx, "kate@x.com", "", meta); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	first := h.resetToken(t)
	if err := h.svc.ForgotPassword(ctx, "kate@x.com", "", meta); err != nil {
		t.Fatalf("forgot again: %v", err)
	}
	second := h.resetToken(t)
	if err := h.svc.ResetPassword(ctx, first, "Cc3#cccc"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected first token superseded, got %v", err)
	}
	if err := h.svc.ResetPassword(ctx, second, "Cc3#cccc"); err != nil {
		t.Fatalf("reset with second token: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "alice@x.com", "Aa1!aaaa")
	h.register(t, "bob", "bob@x.com", "Aa1!aaaa")
	h.markVerified(t, alice.ID)

	if _, err := h.svc.UpdateProfile(ctx, alice.ID, ProfileInput{Username: "bob", Email: "alice@x.com"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for username, got %v", err)
	}
	if _, err := h.svc.UpdateProfile(ctx, alice.ID, ProfileInput{Username: "alice", Email: "bob@x.com"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for email, got %v", err)
	}

	updated, err := h.svc.UpdateProfile(ctx, alice.ID, ProfileInput{Username: " Alicia ", Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if updated.Username != "alicia" || !updated.IsVerified {
		t.Fatalf("expected rename without reverification, got %+v", updated)
	}

	sent := h.sender.count()
	updated, err = h.svc.UpdateProfile(ctx, alice.ID, ProfileInput{Username: "alicia", Email: "New@X.com"})
	if err != nil {
		t.Fatalf("change email: %v", err)
	}
	if updated.Email != "new@x.com" || updated.IsVerified {
		t.Fatalf("expected email change to require verification, got %+v", updated)
	}
	if h.sender.count() != sent+1 {
		t.Fatalf("expected verification email")
	}
	code := h.pendingCode(t, alice.ID)
	if _, err := h.svc.VerifyRegistration(ctx, "new@x.com", code, meta); err != nil {
		t.Fatalf("verify new email: %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "lena", "lena@x.com", "Aa1!aaaa")
	if err := h.svc.DeleteAccount(ctx, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := h.svc.DeleteAccount(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.svc.Me(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Me, got %v", err)
	}
}

func TestExtendSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "mia", "mia@x.com", "Aa1!aaaa")
	first, err := h.svc.ExtendSession(ctx, user.ID)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	h.clock.Advance(time.Hour)
	second, err := h.svc.ExtendSession(ctx, user.ID)
	if err != nil {
		t.Fatalf("extend again: %v", err)
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Fatalf("expected later expiry")
	}
	h.clock.Advance(4 * time.Hour)
	if _, errAuth := h.svc.Authenticate(ctx, first.Token); !errors.Is(errAuth, ErrUnauthenticated) {
		t.Fatalf("expected expired token rejected, got %v", errAuth)
	}
}
