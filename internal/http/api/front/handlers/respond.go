package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/computer-anything/blog-backend/internal/auth"
	"github.com/computer-anything/blog-backend/internal/blog"
	"github.com/computer-anything/blog-backend/internal/models"
)

// Context keys set by the authentication middleware.
const (
	ContextUserID = "userID"
	ContextUser   = "user"
)

// CurrentUserID returns the authenticated account id.
func CurrentUserID(c *gin.Context) uint64 {
	return c.GetUint64(ContextUserID)
}

// CurrentUser returns the authenticated account, if any.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// writeError maps workflow errors onto status codes. Unexpected errors are
// logged and reported without detail.
func writeError(c *gin.Context, err error) {
	var authValidation *auth.ValidationError
	var blogValidation *blog.ValidationError
	switch {
	case errors.As(err, &authValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": authValidation.Message})
	case errors.As(err, &blogValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": blogValidation.Message})
	case errors.Is(err, auth.ErrChallengeFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "verification challenge failed, please try again"})
	case errors.Is(err, auth.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "username or email is already taken"})
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, blog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, auth.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "please verify your email before logging in"})
	case errors.Is(err, auth.ErrInvalidCode):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired code"})
	case errors.Is(err, auth.ErrInvalidResetToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired reset token"})
	case errors.Is(err, auth.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, blog.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, auth.ErrThrottled):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	case errors.Is(err, auth.ErrDependency):
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send verification code, please try again"})
	default:
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func userJSON(user *models.User) gin.H {
	return gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"email":         user.Email,
		"is_verified":   user.IsVerified,
		"twofa_enabled": user.TwoFAEnabled,
		"last_login":    user.LastLogin,
		"created_at":    user.CreatedAt,
	}
}
