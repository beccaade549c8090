package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/computer-anything/blog-backend/internal/blog"
	"github.com/computer-anything/blog-backend/internal/models"
)

// PostHandler serves posts, votes and comments.
type PostHandler struct {
	content *blog.Service
}

// NewPostHandler constructs a PostHandler.
func NewPostHandler(content *blog.Service) *PostHandler {
	return &PostHandler{content: content}
}

type postRequest struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	TopicTags []string `json:"topic_tags"`
}

func (r postRequest) input() blog.PostInput {
	return blog.PostInput{Title: r.Title, Content: r.Content, TopicTags: r.TopicTags}
}

// List returns posts, optionally filtered by ?tag=.
func (h *PostHandler) List(c *gin.Context) {
	posts, errList := h.content.ListPosts(c.Request.Context(), c.Query("tag"))
	if errList != nil {
		writeError(c, errList)
		return
	}
	c.JSON(http.StatusOK, posts)
}

// Get returns a post.
func (h *PostHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	post, errGet := h.content.GetPost(c.Request.Context(), id)
	if errGet != nil {
		writeError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, post)
}

// Create stores a post by the signed-in user.
func (h *PostHandler) Create(c *gin.Context) {
	var body postRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	post, errCreate := h.content.CreatePost(c.Request.Context(), CurrentUserID(c), body.input())
	if errCreate != nil {
		writeError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// Update edits a post owned by the signed-in user.
func (h *PostHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body postRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	post, errUpdate := h.content.UpdatePost(c.Request.Context(), CurrentUserID(c), id, body.input())
	if errUpdate != nil {
		writeError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "post updated", "post": post})
}

// Delete removes a post owned by the signed-in user.
func (h *PostHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if errDelete := h.content.DeletePost(c.Request.Context(), CurrentUserID(c), id); errDelete != nil {
		writeError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "post deleted"})
}

// Upvote toggles an upvote.
func (h *PostHandler) Upvote(c *gin.Context) {
	h.vote(c, models.VoteTypeUp)
}

// Downvote toggles a downvote.
func (h *PostHandler) Downvote(c *gin.Context) {
	h.vote(c, models.VoteTypeDown)
}

func (h *PostHandler) vote(c *gin.Context, voteType models.VoteType) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	result, errVote := h.content.Vote(c.Request.Context(), CurrentUserID(c), id, voteType)
	if errVote != nil {
		writeError(c, errVote)
		return
	}
	c.JSON(http.StatusOK, result)
}

type commentRequest struct {
	Content string `json:"content"`
}

// AddComment comments on a post.
func (h *PostHandler) AddComment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body commentRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	comment, errAdd := h.content.AddComment(c.Request.Context(), CurrentUserID(c), id, body.Content)
	if errAdd != nil {
		writeError(c, errAdd)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// ListComments lists the comments of a post.
func (h *PostHandler) ListComments(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	comments, errList := h.content.ListComments(c.Request.Context(), id)
	if errList != nil {
		writeError(c, errList)
		return
	}
	c.JSON(http.StatusOK, comments)
}

// DeleteComment removes the signed-in user's comment.
func (h *PostHandler) DeleteComment(c *gin.Context) {
	postID, ok := parseID(c, "id")
	if !ok {
		return
	}
	commentID, ok := parseID(c, "comment_id")
	if !ok {
		return
	}
	if errDelete := h.content.DeleteComment(c.Request.Context(), CurrentUserID(c), postID, commentID); errDelete != nil {
		writeError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "comment deleted"})
}
