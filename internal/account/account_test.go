package account

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/computer-anything/blog-backend/internal/db"
	"github.com/computer-anything/blog-backend/internal/models"
	"gorm.io/gorm"
)

func openTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "account-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewStore(conn), conn
}

func newUser(t *testing.T, username, email string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: email}
	if err := SetPassword(user, "Aa1!aaaa"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	return user
}

func TestCredentials(t *testing.T) {
	user := newUser(t, "alice", "alice@x.com")
	if !CheckPassword(user, "Aa1!aaaa") || CheckPassword(user, "wrong") {
		t.Fatalf("unexpected password check result")
	}

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	stamp := now.UnixMilli()
	user.FailedLoginAttempts = 2
	user.LastFailedLogin = &stamp

	RecordSuccessfulLogin(user, LoginDetails{IP: "1.2.3.4", Location: "Paris, France", Browser: "Firefox", Device: "Desktop (Linux)"}, now)
	if user.FailedLoginAttempts != 0 || user.LastFailedLogin != nil {
		t.Fatalf("expected failure counter reset")
	}
	if user.LastLogin == nil || *user.LastLogin != now.UnixMilli() || user.LastLoginIP != "1.2.3.4" {
		t.Fatalf("expected audit fields stamped")
	}
}

func TestCodeLifecycle(t *testing.T) {
	user := &models.User{}
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if CodeValid(user, "123456", now) {
		t.Fatalf("expected no outstanding code to be invalid")
	}

	code, err := IssueCode(user, TwoFactorCodeTTL, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !CodeValid(user, code, now) {
		t.Fatalf("expected fresh code to be valid")
	}
	if CodeValid(user, "", now) {
		t.Fatalf("expected empty code to be invalid")
	}
	if CodeValid(user, code, now.Add(TwoFactorCodeTTL)) {
		t.Fatalf("expected code invalid exactly at expiry")
	}
	if !CodeValid(user, code, now.Add(TwoFactorCodeTTL-time.Millisecond)) {
		t.Fatalf("expected code valid just before expiry")
	}
	if user.TwoFACode == nil {
		t.Fatalf("expected expired code to remain until cleared")
	}

	second, err := IssueCode(user, RegistrationCodeTTL, now)
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if second != code && CodeValid(user, code, now) {
		t.Fatalf("expected superseded code to be invalid")
	}

	ClearCode(user)
	if CodeValid(user, second, now) {
		t.Fatalf("expected cleared code to be invalid")
	}
	if _, ok := CodeExpiresAt(user); ok {
		t.Fatalf("expected no expiry after clear")
	}
}

func TestResetTokenLifecycle(t *testing.T) {
	user := &models.User{}
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if ResetTokenValid(user, "", now) {
		t.Fatalf("expected empty token against no token to be invalid")
	}

	token, err := IssueResetToken(user, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if *user.ResetTokenDigest == token {
		t.Fatalf("expected only the digest to be stored")
	}
	if !ResetTokenValid(user, token, now.Add(59*time.Minute)) {
		t.Fatalf("expected token valid within an hour")
	}
	if ResetTokenValid(user, token, now.Add(time.Hour)) {
		t.Fatalf("expected token invalid after an hour")
	}
	if ResetTokenValid(user, "", now) {
		t.Fatalf("expected empty token invalid")
	}

	ClearResetToken(user)
	if ResetTokenValid(user, token, now) {
		t.Fatalf("expected cleared token invalid")
	}
}

func TestStore_CreateDuplicate(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, newUser(t, "alice", "alice@x.com")); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.Create(ctx, newUser(t, "alice2", "alice@x.com"))
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	usernameTaken, emailTaken, err := store.Taken(ctx, "alice", "other@x.com", 0)
	if err != nil || !usernameTaken || emailTaken {
		t.Fatalf("unexpected taken result: %v %v %v", usernameTaken, emailTaken, err)
	}
}

func TestStore_ResetTokenAndFind(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := newUser(t, "bob", "bob@x.com")
	if err := store.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	token, err := IssueResetToken(user, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if errSave := store.SaveResetToken(ctx, user); errSave != nil {
		t.Fatalf("save reset token: %v", errSave)
	}

	found, err := store.FindByResetToken(ctx, token)
	if err != nil {
		t.Fatalf("find by token: %v", err)
	}
	if found.ID != user.ID {
		t.Fatalf("unexpected account %+v", found)
	}
	if _, errEmpty := store.FindByResetToken(ctx, ""); !errors.Is(errEmpty, ErrNotFound) {
		t.Fatalf("expected empty token to find nothing, got %v", errEmpty)
	}

	if errClear := store.ClearResetToken(ctx, found.ID, "not-the-digest"); !errors.Is(errClear, ErrStale) {
		t.Fatalf("expected ErrStale for a foreign digest, got %v", errClear)
	}
	if errClear := store.ClearResetToken(ctx, found.ID, *found.ResetTokenDigest); errClear != nil {
		t.Fatalf("clear: %v", errClear)
	}
	reloaded, err := store.FindByIdentifier(ctx, "BOB@x.com")
	if err != nil {
		t.Fatalf("find by identifier: %v", err)
	}
	if reloaded.ResetTokenDigest != nil || reloaded.ResetTokenExpiry != nil {
		t.Fatalf("expected reset fields cleared in storage")
	}
	if _, errMissing := store.FindByIdentifier(ctx, "nobody"); !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errMissing)
	}
	if errMissing := store.SaveCode(ctx, &models.User{ID: 9999}); !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing row, got %v", errMissing)
	}
}

func TestStore_StaleCopyCannotUndoPasswordChange(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	user := newUser(t, "dave", "dave@x.com")
	if err := store.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	changer, _ := store.FindByID(ctx, user.ID)
	stale, _ := store.FindByID(ctx, user.ID)

	if err := SetPassword(changer, "Bb2@bbbb"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := store.SavePassword(ctx, changer, 0); err != nil {
		t.Fatalf("save password: %v", err)
	}

	// The stale copy records a failed login and a successful login afterwards.
	if err := store.RecordFailedLogin(ctx, stale.ID, now); err != nil {
		t.Fatalf("record failed login: %v", err)
	}
	RecordSuccessfulLogin(stale, LoginDetails{IP: "1.2.3.4"}, now)
	if err := store.SaveLogin(ctx, stale); err != nil {
		t.Fatalf("save login: %v", err)
	}

	reloaded, _ := store.FindByID(ctx, user.ID)
	if reloaded.TokenVersion != 1 {
		t.Fatalf("expected token version 1, got %d", reloaded.TokenVersion)
	}
	if CheckPassword(reloaded, "Aa1!aaaa") || !CheckPassword(reloaded, "Bb2@bbbb") {
		t.Fatalf("expected only the new password to work")
	}
	if reloaded.LastLoginIP != "1.2.3.4" {
		t.Fatalf("expected login audit stored, got %q", reloaded.LastLoginIP)
	}

	// A second change computed from the stale copy loses to the first one.
	if err := SetPassword(stale, "Cc3#cccc"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := store.SavePassword(ctx, stale, stale.TokenVersion); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	reloaded, _ = store.FindByID(ctx, user.ID)
	if reloaded.TokenVersion != 1 || !CheckPassword(reloaded, "Bb2@bbbb") {
		t.Fatalf("expected the first change to survive")
	}
}

func TestStore_FailedLoginsAreCountedAtomically(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	user := newUser(t, "erin", "erin@x.com")
	if err := store.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.RecordFailedLogin(ctx, user.ID, now); err != nil {
			t.Fatalf("record failed login: %v", err)
		}
	}
	reloaded, _ := store.FindByID(ctx, user.ID)
	if reloaded.FailedLoginAttempts != 3 || reloaded.LastFailedLogin == nil || *reloaded.LastFailedLogin != now.UnixMilli() {
		t.Fatalf("expected three failures stamped at now, got %d", reloaded.FailedLoginAttempts)
	}
}

func TestStore_ConsumeCodeOnce(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	user := newUser(t, "frank", "frank@x.com")
	code, err := IssueCode(user, RegistrationCodeTTL, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if errCreate := store.Create(ctx, user); errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	first, _ := store.FindByID(ctx, user.ID)
	second, _ := store.FindByID(ctx, user.ID)

	if errExpired := store.ConsumeCode(ctx, first, code, true, now.Add(RegistrationCodeTTL)); !errors.Is(errExpired, ErrStale) {
		t.Fatalf("expected expired code rejected, got %v", errExpired)
	}
	if errConsume := store.ConsumeCode(ctx, first, code, true, now); errConsume != nil {
		t.Fatalf("consume: %v", errConsume)
	}
	if !first.IsVerified || first.TwoFACode != nil {
		t.Fatalf("expected in-memory copy updated")
	}
	if errAgain := store.ConsumeCode(ctx, second, code, true, now); !errors.Is(errAgain, ErrStale) {
		t.Fatalf("expected second redemption rejected, got %v", errAgain)
	}
	reloaded, _ := store.FindByID(ctx, user.ID)
	if !reloaded.IsVerified || reloaded.TwoFACode != nil || reloaded.TwoFAExpiresAt != nil {
		t.Fatalf("expected verified account without a code")
	}
}

func TestStore_SaveProfileKeepsVerificationUnlessEmailChanged(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	user := newUser(t, "gina", "gina@x.com")
	user.IsVerified = true
	if err := store.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	stale, _ := store.FindByID(ctx, user.ID)
	stale.IsVerified = false
	stale.Username = "gina2"
	if err := store.SaveProfile(ctx, stale, false); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	reloaded, _ := store.FindByID(ctx, user.ID)
	if reloaded.Username != "gina2" || !reloaded.IsVerified {
		t.Fatalf("expected rename without touching verification, got %+v", reloaded)
	}

	other := newUser(t, "hank", "hank@x.com")
	if err := store.Create(ctx, other); err != nil {
		t.Fatalf("create: %v", err)
	}
	reloaded.Email = "hank@x.com"
	if err := store.SaveProfile(ctx, reloaded, true); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestStore_ClearExpiredResetTokens(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	expired := newUser(t, "old", "old@x.com")
	if _, err := IssueResetToken(expired, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("issue: %v", err)
	}
	fresh := newUser(t, "new", "new@x.com")
	if _, err := IssueResetToken(fresh, now); err != nil {
		t.Fatalf("issue: %v", err)
	}
	for _, u := range []*models.User{expired, fresh} {
		if err := store.Create(ctx, u); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	cleared, err := store.ClearExpiredResetTokens(ctx, now)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 cleared, got %d", cleared)
	}
	reloaded, _ := store.FindByID(ctx, fresh.ID)
	if reloaded.ResetTokenDigest == nil {
		t.Fatalf("expected fresh token kept")
	}
}

func TestStore_DeleteCascade(t *testing.T) {
	store, conn := openTestStore(t)
	ctx := context.Background()

	owner := newUser(t, "owner", "owner@x.com")
	other := newUser(t, "other", "other@x.com")
	for _, u := range []*models.User{owner, other} {
		if err := store.Create(ctx, u); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	post := models.Post{Title: "t", Content: "c", UserID: owner.ID}
	if err := conn.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	otherPost := models.Post{Title: "t2", Content: "c", UserID: other.ID}
	if err := conn.Create(&otherPost).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	rows := []any{
		&models.Vote{UserID: other.ID, PostID: post.ID, VoteType: models.VoteTypeUp},
		&models.Vote{UserID: owner.ID, PostID: otherPost.ID, VoteType: models.VoteTypeDown},
		&models.Comment{UserID: other.ID, PostID: post.ID, Content: "hi"},
		&models.Comment{UserID: owner.ID, PostID: otherPost.ID, Content: "yo"},
	}
	for _, row := range rows {
		if err := conn.Create(row).Error; err != nil {
			t.Fatalf("create row: %v", err)
		}
	}

	if err := store.Delete(ctx, owner.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var posts, votes, comments int64
	conn.Model(&models.Post{}).Count(&posts)
	conn.Model(&models.Vote{}).Count(&votes)
	conn.Model(&models.Comment{}).Count(&comments)
	if posts != 1 || votes != 0 || comments != 0 {
		t.Fatalf("expected only the other post left, got posts=%d votes=%d comments=%d", posts, votes, comments)
	}
	if err := store.Delete(ctx, owner.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStore_IncrementRateLimitViolations(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	user := newUser(t, "carol", "carol@x.com")
	if err := store.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.IncrementRateLimitViolations(ctx, user.ID); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	reloaded, _ := store.FindByID(ctx, user.ID)
	if reloaded.RateLimitViolations != 3 {
		t.Fatalf("expected 3 violations, got %d", reloaded.RateLimitViolations)
	}
}
