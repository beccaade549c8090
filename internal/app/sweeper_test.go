package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/computer-anything/blog-backend/internal/account"
	"github.com/computer-anything/blog-backend/internal/db"
	"github.com/computer-anything/blog-backend/internal/models"
)

func TestResetTokenSweeper_ClearsExpired(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "sweeper.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	store := account.NewStore(conn)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	expired := &models.User{Username: "old", Email: "old@x.com", Password: "x"}
	if _, errIssue := account.IssueResetToken(expired, now.Add(-2*account.ResetTokenTTL)); errIssue != nil {
		t.Fatalf("issue: %v", errIssue)
	}
	live := &models.User{Username: "new", Email: "new@x.com", Password: "x"}
	if _, errIssue := account.IssueResetToken(live, now); errIssue != nil {
		t.Fatalf("issue: %v", errIssue)
	}
	for _, user := range []*models.User{expired, live} {
		if errCreate := store.Create(context.Background(), user); errCreate != nil {
			t.Fatalf("create %s: %v", user.Username, errCreate)
		}
	}

	sweeper := NewResetTokenSweeper(store, time.Hour, func() time.Time { return now })
	if cleared := sweeper.sweep(context.Background()); cleared != 1 {
		t.Fatalf("expected one token cleared, got %d", cleared)
	}

	reloaded, errFind := store.FindByID(context.Background(), expired.ID)
	if errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if reloaded.ResetTokenDigest != nil || reloaded.ResetTokenExpiry != nil {
		t.Fatalf("expected expired token cleared")
	}
	reloaded, errFind = store.FindByID(context.Background(), live.ID)
	if errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if reloaded.ResetTokenDigest == nil {
		t.Fatalf("expected live token kept")
	}
}

func TestResetTokenSweeper_StopsOnCancel(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "sweeper-cancel.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	sweeper := NewResetTokenSweeper(account.NewStore(conn), time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop after cancel")
	}
}
