package models

import (
	"time"

	"gorm.io/datatypes"
)

// VoteType is the direction of a vote on a post.
type VoteType string

// VoteType constants define vote directions.
const (
	// VoteTypeUp is an upvote.
	VoteTypeUp VoteType = "upvote"
	// VoteTypeDown is a downvote.
	VoteTypeDown VoteType = "downvote"
)

// Valid reports whether v is a known vote direction.
func (v VoteType) Valid() bool {
	return v == VoteTypeUp || v == VoteTypeDown
}

// Post is a blog entry written by a user.
type Post struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Title     string         `gorm:"type:varchar(200);not null"`       // Post title.
	Content   string         `gorm:"type:text;not null"`               // Post body.
	TopicTags datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // JSON array of tag strings.

	Upvotes   int `gorm:"not null;default:0"` // Upvote counter.
	Downvotes int `gorm:"not null;default:0"` // Downvote counter.

	UserID uint64 `gorm:"not null;index"`    // Author ID.
	User   User   `gorm:"foreignKey:UserID"` // Author record.

	Comments []Comment `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"` // Post comments.
	Votes    []Vote    `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"` // Post votes.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}

// Comment is a reply attached to a post.
type Comment struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Content string `gorm:"type:text;not null"` // Comment body.

	UserID uint64 `gorm:"not null;index"`    // Author ID.
	User   User   `gorm:"foreignKey:UserID"` // Author record.

	PostID uint64 `gorm:"not null;index"`    // Parent post ID.
	Post   Post   `gorm:"foreignKey:PostID"` // Parent post record.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// Vote records a single user's vote on a post.
type Vote struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_votes_user_post"`       // Voter ID.
	PostID uint64 `gorm:"not null;uniqueIndex:idx_votes_user_post;index"` // Voted post ID.

	VoteType VoteType `gorm:"type:varchar(10);not null"` // Vote direction.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
