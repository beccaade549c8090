package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/computer-anything/blog-backend/internal/auth"
	"github.com/computer-anything/blog-backend/internal/blog"
	"github.com/computer-anything/blog-backend/internal/config"
)

// UserHandler serves profile and user activity endpoints.
type UserHandler struct {
	accounts *auth.Service
	content  *blog.Service
	cookie   config.CookieConfig
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(accounts *auth.Service, content *blog.Service, cookie config.CookieConfig) *UserHandler {
	return &UserHandler{accounts: accounts, content: content, cookie: cookie}
}

// Profile returns the signed-in account.
func (h *UserHandler) Profile(c *gin.Context) {
	user, errMe := h.accounts.Me(c.Request.Context(), CurrentUserID(c))
	if errMe != nil {
		writeError(c, errMe)
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

type updateProfileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UpdateProfile changes username or email.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var body updateProfileRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user, errUpdate := h.accounts.UpdateProfile(c.Request.Context(), CurrentUserID(c), auth.ProfileInput{
		Username: body.Username,
		Email:    body.Email,
	})
	if errUpdate != nil {
		writeError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

// DeleteProfile removes the signed-in account and its content.
func (h *UserHandler) DeleteProfile(c *gin.Context) {
	if errDelete := h.accounts.DeleteAccount(c.Request.Context(), CurrentUserID(c)); errDelete != nil {
		writeError(c, errDelete)
		return
	}
	c.SetCookie(h.cookie.Name, "", -1, "/", h.cookie.Domain, h.cookie.Secure, true)
	c.JSON(http.StatusOK, gin.H{"message": "account and all related data deleted"})
}

// Search lists users by username substring.
func (h *UserHandler) Search(c *gin.Context) {
	page, errPage := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, errPerPage := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(blog.DefaultPerPage)))
	if errPage != nil || errPerPage != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page and per_page must be integers"})
		return
	}
	result, errSearch := h.content.SearchUsers(c.Request.Context(), page, perPage, c.Query("search"))
	if errSearch != nil {
		writeError(c, errSearch)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PublicProfile returns the public part of an account.
func (h *UserHandler) PublicProfile(c *gin.Context) {
	user, errFind := h.content.FindUser(c.Request.Context(), c.Param("username"))
	if errFind != nil {
		writeError(c, errFind)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          user.ID,
		"username":    user.Username,
		"is_verified": user.IsVerified,
		"created_at":  user.CreatedAt,
	})
}

// Posts lists posts written by a user.
func (h *UserHandler) Posts(c *gin.Context) {
	posts, errList := h.content.PostsByUser(c.Request.Context(), c.Param("username"))
	if errList != nil {
		writeError(c, errList)
		return
	}
	c.JSON(http.StatusOK, posts)
}

// VoteCount returns how many votes a user has cast.
func (h *UserHandler) VoteCount(c *gin.Context) {
	count, errCount := h.content.VoteCount(c.Request.Context(), c.Param("username"))
	if errCount != nil {
		writeError(c, errCount)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// CommentCount returns how many comments a user has written.
func (h *UserHandler) CommentCount(c *gin.Context) {
	count, errCount := h.content.CommentCount(c.Request.Context(), c.Param("username"))
	if errCount != nil {
		writeError(c, errCount)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// VotedPosts lists posts a user voted on.
func (h *UserHandler) VotedPosts(c *gin.Context) {
	posts, errList := h.content.VotedPosts(c.Request.Context(), strings.TrimSpace(c.Param("username")))
	if errList != nil {
		writeError(c, errList)
		return
	}
	c.JSON(http.StatusOK, posts)
}

// CommentedPosts lists posts a user commented on with their latest comment.
func (h *UserHandler) CommentedPosts(c *gin.Context) {
	posts, errList := h.content.CommentedPosts(c.Request.Context(), strings.TrimSpace(c.Param("username")))
	if errList != nil {
		writeError(c, errList)
		return
	}
	c.JSON(http.StatusOK, posts)
}
