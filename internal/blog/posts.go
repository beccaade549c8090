// Package blog stores posts, comments and votes and answers the per-user activity queries.
package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/computer-anything/blog-backend/internal/db"
	"github.com/computer-anything/blog-backend/internal/models"
)

// Post content bounds.
const (
	MaxTitleLength   = 200
	MaxContentLength = 10000
	MaxTags          = 8
	MaxTagLength     = 30
	MaxCommentLength = 2000
)

// Service manages blog content.
type Service struct {
	db *gorm.DB
}

// NewService constructs a Service.
func NewService(conn *gorm.DB) *Service {
	return &Service{db: conn}
}

// PostInput is the editable part of a post.
type PostInput struct {
	Title     string
	Content   string
	TopicTags []string
}

// PostView is a post as returned to clients.
type PostView struct {
	ID        uint64    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	TopicTags []string  `json:"topic_tags"`
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	UserID    uint64    `json:"user_id"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newPostView(post *models.Post) PostView {
	tags := []string{}
	if len(post.TopicTags) > 0 {
		_ = json.Unmarshal(post.TopicTags, &tags)
	}
	return PostView{
		ID:        post.ID,
		Title:     post.Title,
		Content:   post.Content,
		TopicTags: tags,
		Upvotes:   post.Upvotes,
		Downvotes: post.Downvotes,
		UserID:    post.UserID,
		Author:    post.User.Username,
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	}
}

func postViews(posts []models.Post) []PostView {
	out := make([]PostView, 0, len(posts))
	for i := range posts {
		out = append(out, newPostView(&posts[i]))
	}
	return out
}

func withAuthor(tx *gorm.DB) *gorm.DB {
	return tx.Preload("User", func(q *gorm.DB) *gorm.DB {
		return q.Select("id", "username")
	})
}

// normalizePost trims fields and checks bounds.
func normalizePost(in PostInput) (PostInput, datatypes.JSON, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if in.Title == "" {
		return in, nil, invalid("title is required")
	}
	if utf8.RuneCountInString(in.Title) > MaxTitleLength {
		return in, nil, invalid("title must be 200 characters or less")
	}
	if in.Content == "" {
		return in, nil, invalid("content is required")
	}
	if utf8.RuneCountInString(in.Content) > MaxContentLength {
		return in, nil, invalid("content must be 10,000 characters or less")
	}
	if len(in.TopicTags) > MaxTags {
		return in, nil, invalid("maximum 8 tags allowed")
	}
	tags := make([]string, 0, len(in.TopicTags))
	for _, tag := range in.TopicTags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return in, nil, invalid("empty tags are not allowed")
		}
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return in, nil, invalid("each tag must be 30 characters or less")
		}
		tags = append(tags, tag)
	}
	in.TopicTags = tags
	encoded, errMarshal := json.Marshal(tags)
	if errMarshal != nil {
		return in, nil, fmt.Errorf("blog: encode tags: %w", errMarshal)
	}
	return in, datatypes.JSON(encoded), nil
}

// ListPosts returns posts newest first, optionally only those tagged tag.
func (s *Service) ListPosts(ctx context.Context, tag string) ([]PostView, error) {
	q := withAuthor(s.db.WithContext(ctx)).Order("created_at DESC").Order("id DESC")
	if tag = strings.TrimSpace(tag); tag != "" {
		q = q.Where(db.JSONArrayContainsExpr(s.db, "topic_tags"), db.JSONArrayContainsValue(s.db, tag))
	}
	var posts []models.Post
	if errFind := q.Find(&posts).Error; errFind != nil {
		return nil, fmt.Errorf("blog: list posts: %w", errFind)
	}
	return postViews(posts), nil
}

// GetPost returns a single post.
func (s *Service) GetPost(ctx context.Context, id uint64) (*PostView, error) {
	post, errFind := s.loadPost(ctx, s.db, id)
	if errFind != nil {
		return nil, errFind
	}
	view := newPostView(post)
	return &view, nil
}

// CreatePost stores a new post by userID.
func (s *Service) CreatePost(ctx context.Context, userID uint64, in PostInput) (*PostView, error) {
	in, tags, errValidate := normalizePost(in)
	if errValidate != nil {
		return nil, errValidate
	}
	post := &models.Post{Title: in.Title, Content: in.Content, TopicTags: tags, UserID: userID}
	if errCreate := s.db.WithContext(ctx).Omit("User").Create(post).Error; errCreate != nil {
		return nil, fmt.Errorf("blog: create post: %w", errCreate)
	}
	return s.GetPost(ctx, post.ID)
}

// UpdatePost replaces title, content and tags of a post owned by userID.
func (s *Service) UpdatePost(ctx context.Context, userID, postID uint64, in PostInput) (*PostView, error) {
	in, tags, errValidate := normalizePost(in)
	if errValidate != nil {
		return nil, errValidate
	}
	post, errFind := s.loadPost(ctx, s.db, postID)
	if errFind != nil {
		return nil, errFind
	}
	if post.UserID != userID {
		return nil, ErrForbidden
	}
	errUpdate := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", postID).
		Updates(map[string]any{"title": in.Title, "content": in.Content, "topic_tags": tags}).Error
	if errUpdate != nil {
		return nil, fmt.Errorf("blog: update post: %w", errUpdate)
	}
	return s.GetPost(ctx, postID)
}

// DeletePost removes a post owned by userID with its comments and votes.
func (s *Service) DeletePost(ctx context.Context, userID, postID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, errFind := s.loadPost(ctx, tx, postID)
		if errFind != nil {
			return errFind
		}
		if post.UserID != userID {
			return ErrForbidden
		}
		if errVotes := tx.Where("post_id = ?", postID).Delete(&models.Vote{}).Error; errVotes != nil {
			return fmt.Errorf("blog: delete votes: %w", errVotes)
		}
		if errComments := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; errComments != nil {
			return fmt.Errorf("blog: delete comments: %w", errComments)
		}
		if errPost := tx.Delete(&models.Post{}, postID).Error; errPost != nil {
			return fmt.Errorf("blog: delete post: %w", errPost)
		}
		return nil
	})
}

func (s *Service) loadPost(ctx context.Context, tx *gorm.DB, id uint64) (*models.Post, error) {
	var post models.Post
	if errFind := withAuthor(tx.WithContext(ctx)).First(&post, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blog: load post: %w", errFind)
	}
	return &post, nil
}
