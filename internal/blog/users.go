package blog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/computer-anything/blog-backend/internal/db"
	"github.com/computer-anything/blog-backend/internal/models"
)

// Search bounds.
const (
	MaxPage         = 10000
	MaxPerPage      = 100
	DefaultPerPage  = 20
	MaxSearchLength = 100
)

// UserSummary is a search hit.
type UserSummary struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
}

// UserPage is one page of search results.
type UserPage struct {
	Users       []UserSummary `json:"users"`
	Total       int64         `json:"total"`
	Pages       int64         `json:"pages"`
	CurrentPage int           `json:"current_page"`
}

// SearchUsers lists accounts newest first, filtered by a case-insensitive username substring.
func (s *Service) SearchUsers(ctx context.Context, page, perPage int, search string) (*UserPage, error) {
	if page < 1 || page > MaxPage {
		return nil, invalid("page must be between 1 and 10000")
	}
	if perPage < 1 || perPage > MaxPerPage {
		return nil, invalid("per page must be between 1 and 100")
	}
	if utf8.RuneCountInString(search) > MaxSearchLength {
		return nil, invalid("search query too long (max 100 characters)")
	}

	q := s.db.WithContext(ctx).Model(&models.User{})
	if search = strings.TrimSpace(search); search != "" {
		q = q.Where(db.CaseInsensitiveLikeExpr(s.db, "username"), db.ContainsPattern(s.db, search))
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, fmt.Errorf("blog: count users: %w", errCount)
	}
	var users []models.User
	errList := q.Select("id", "username").
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&users).Error
	if errList != nil {
		return nil, fmt.Errorf("blog: list users: %w", errList)
	}
	out := &UserPage{Users: make([]UserSummary, 0, len(users)), Total: total, CurrentPage: page}
	out.Pages = (total + int64(perPage) - 1) / int64(perPage)
	for _, u := range users {
		out.Users = append(out.Users, UserSummary{ID: u.ID, Username: u.Username})
	}
	return out, nil
}

// FindUser loads an account by username.
func (s *Service) FindUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	errFind := s.db.WithContext(ctx).Where("username = ?", strings.ToLower(strings.TrimSpace(username))).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blog: find user: %w", errFind)
	}
	return &user, nil
}

// PostsByUser returns the posts written by username.
func (s *Service) PostsByUser(ctx context.Context, username string) ([]PostView, error) {
	user, errFind := s.FindUser(ctx, username)
	if errFind != nil {
		return nil, errFind
	}
	var posts []models.Post
	errList := withAuthor(s.db.WithContext(ctx)).
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&posts).Error
	if errList != nil {
		return nil, fmt.Errorf("blog: list user posts: %w", errList)
	}
	return postViews(posts), nil
}

// VoteCount returns how many votes username has cast.
func (s *Service) VoteCount(ctx context.Context, username string) (int64, error) {
	return s.countFor(ctx, username, &models.Vote{})
}

// CommentCount returns how many comments username has written.
func (s *Service) CommentCount(ctx context.Context, username string) (int64, error) {
	return s.countFor(ctx, username, &models.Comment{})
}

func (s *Service) countFor(ctx context.Context, username string, model any) (int64, error) {
	user, errFind := s.FindUser(ctx, username)
	if errFind != nil {
		return 0, errFind
	}
	var count int64
	if errCount := s.db.WithContext(ctx).Model(model).Where("user_id = ?", user.ID).Count(&count).Error; errCount != nil {
		return 0, fmt.Errorf("blog: count: %w", errCount)
	}
	return count, nil
}

// VotedPost is a post with the direction of the user's vote.
type VotedPost struct {
	PostView
	UserVote models.VoteType `json:"user_vote"`
}

// VotedPosts returns the posts username has voted on, most recent vote first.
func (s *Service) VotedPosts(ctx context.Context, username string) ([]VotedPost, error) {
	user, errFind := s.FindUser(ctx, username)
	if errFind != nil {
		return nil, errFind
	}
	var votes []models.Vote
	if errVotes := s.db.WithContext(ctx).Where("user_id = ?", user.ID).Order("created_at DESC").Order("id DESC").Find(&votes).Error; errVotes != nil {
		return nil, fmt.Errorf("blog: list votes: %w", errVotes)
	}
	ids := make([]uint64, 0, len(votes))
	for _, v := range votes {
		ids = append(ids, v.PostID)
	}
	posts, errPosts := s.postsByID(ctx, ids)
	if errPosts != nil {
		return nil, errPosts
	}
	out := make([]VotedPost, 0, len(votes))
	for _, v := range votes {
		if post, ok := posts[v.PostID]; ok {
			out = append(out, VotedPost{PostView: post, UserVote: v.VoteType})
		}
	}
	return out, nil
}

// CommentPreview is the latest comment a user left on a post.
type CommentPreview struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentedPost is a post with the user's latest comment on it.
type CommentedPost struct {
	PostView
	UserComment CommentPreview `json:"user_comment"`
}

// CommentedPosts returns each post username commented on once, ordered by their latest comment.
func (s *Service) CommentedPosts(ctx context.Context, username string) ([]CommentedPost, error) {
	user, errFind := s.FindUser(ctx, username)
	if errFind != nil {
		return nil, errFind
	}
	var comments []models.Comment
	errComments := s.db.WithContext(ctx).
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&comments).Error
	if errComments != nil {
		return nil, fmt.Errorf("blog: list comments: %w", errComments)
	}
	latest := make([]models.Comment, 0, len(comments))
	seen := make(map[uint64]struct{}, len(comments))
	ids := make([]uint64, 0, len(comments))
	for _, c := range comments {
		if _, dup := seen[c.PostID]; dup {
			continue
		}
		seen[c.PostID] = struct{}{}
		latest = append(latest, c)
		ids = append(ids, c.PostID)
	}
	posts, errPosts := s.postsByID(ctx, ids)
	if errPosts != nil {
		return nil, errPosts
	}
	out := make([]CommentedPost, 0, len(latest))
	for _, c := range latest {
		if post, ok := posts[c.PostID]; ok {
			out = append(out, CommentedPost{
				PostView:    post,
				UserComment: CommentPreview{Content: c.Content, CreatedAt: c.CreatedAt},
			})
		}
	}
	return out, nil
}

func (s *Service) postsByID(ctx context.Context, ids []uint64) (map[uint64]PostView, error) {
	out := make(map[uint64]PostView, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var posts []models.Post
	if errFind := withAuthor(s.db.WithContext(ctx)).Where("id IN ?", ids).Find(&posts).Error; errFind != nil {
		return nil, fmt.Errorf("blog: load posts: %w", errFind)
	}
	for i := range posts {
		out[posts[i].ID] = newPostView(&posts[i])
	}
	return out, nil
}
