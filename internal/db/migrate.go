package db

import (
	"fmt"

	"github.com/computer-anything/blog-backend/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Vote{},
		&models.SecurityAlert{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if DialectName(conn) == DialectPostgres {
		return migratePostgres(conn)
	}
	return nil
}

// migratePostgres adds PostgreSQL-only indexes.
func migratePostgres(conn *gorm.DB) error {
	if errTagIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_posts_topic_tags ON posts USING GIN (topic_tags)
	`).Error; errTagIdx != nil {
		return fmt.Errorf("db: create post tag index: %w", errTagIdx)
	}
	if errResetIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_users_reset_token_expiry ON users (reset_token_expiry)
		WHERE reset_token_expiry IS NOT NULL
	`).Error; errResetIdx != nil {
		return fmt.Errorf("db: create reset expiry index: %w", errResetIdx)
	}
	return nil
}
