package blog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/computer-anything/blog-backend/internal/models"
)

// CommentView is a comment as returned to clients.
type CommentView struct {
	ID        uint64    `json:"id"`
	Content   string    `json:"content"`
	UserID    uint64    `json:"user_id"`
	Author    string    `json:"author"`
	PostID    uint64    `json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

func newCommentView(comment *models.Comment) CommentView {
	return CommentView{
		ID:        comment.ID,
		Content:   comment.Content,
		UserID:    comment.UserID,
		Author:    comment.User.Username,
		PostID:    comment.PostID,
		CreatedAt: comment.CreatedAt,
	}
}

// AddComment attaches a comment by userID to a post.
func (s *Service) AddComment(ctx context.Context, userID, postID uint64, content string) (*CommentView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("content is required")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return nil, invalid("comment must be 2,000 characters or less")
	}
	if _, errFind := s.loadPost(ctx, s.db, postID); errFind != nil {
		return nil, errFind
	}
	comment := &models.Comment{Content: content, UserID: userID, PostID: postID}
	if errCreate := s.db.WithContext(ctx).Omit("User", "Post").Create(comment).Error; errCreate != nil {
		return nil, fmt.Errorf("blog: create comment: %w", errCreate)
	}
	if errLoad := withAuthor(s.db.WithContext(ctx)).First(comment, comment.ID).Error; errLoad != nil {
		return nil, fmt.Errorf("blog: load comment: %w", errLoad)
	}
	view := newCommentView(comment)
	return &view, nil
}

// ListComments returns the comments of a post, oldest first.
func (s *Service) ListComments(ctx context.Context, postID uint64) ([]CommentView, error) {
	if _, errFind := s.loadPost(ctx, s.db, postID); errFind != nil {
		return nil, errFind
	}
	var comments []models.Comment
	errList := withAuthor(s.db.WithContext(ctx)).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&comments).Error
	if errList != nil {
		return nil, fmt.Errorf("blog: list comments: %w", errList)
	}
	out := make([]CommentView, 0, len(comments))
	for i := range comments {
		out = append(out, newCommentView(&comments[i]))
	}
	return out, nil
}

// DeleteComment removes a comment written by userID. The comment must belong to postID.
func (s *Service) DeleteComment(ctx context.Context, userID, postID, commentID uint64) error {
	var comment models.Comment
	if errFind := s.db.WithContext(ctx).First(&comment, commentID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("blog: load comment: %w", errFind)
	}
	if comment.PostID != postID {
		return invalid("comment does not belong to this post")
	}
	if comment.UserID != userID {
		return ErrForbidden
	}
	if errDelete := s.db.WithContext(ctx).Delete(&comment).Error; errDelete != nil {
		return fmt.Errorf("blog: delete comment: %w", errDelete)
	}
	return nil
}
