// Package front serves the public blog API: accounts, profiles, posts and comments.
package front

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/computer-anything/blog-backend/internal/account"
	"github.com/computer-anything/blog-backend/internal/auth"
	"github.com/computer-anything/blog-backend/internal/blog"
	"github.com/computer-anything/blog-backend/internal/config"
	handlers "github.com/computer-anything/blog-backend/internal/http/api/front/handlers"
	"github.com/computer-anything/blog-backend/internal/ratelimit"
)

// Deps are the services behind the public API.
type Deps struct {
	DB       *gorm.DB
	Auth     *auth.Service
	Blog     *blog.Service
	Accounts *account.Store
	Limiter  *ratelimit.Manager
	Notifier auth.BreachNotifier
	Cookie   config.CookieConfig
	NowFn    func() time.Time
}

// RegisterFrontRoutes registers the public API routes, middleware, and handlers.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.Auth == nil || deps.Blog == nil {
		return
	}
	r.Use(requestIDMiddleware(), accessLogMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		if deps.DB != nil {
			sqlDB, errDB := deps.DB.DB()
			if errDB != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Cookie, deps.NowFn)
	r.POST("/register", rateLimitMiddleware(deps, ratelimit.EndpointRegister), authHandler.Register)
	r.POST("/verify-registration", rateLimitMiddleware(deps, ratelimit.EndpointVerifyRegistration), authHandler.VerifyRegistration)
	r.POST("/resend-verification", rateLimitMiddleware(deps, ratelimit.EndpointResendVerification), authHandler.ResendVerification)
	r.POST("/login", rateLimitMiddleware(deps, ratelimit.EndpointLogin), authHandler.Login)
	r.POST("/verify-2fa", rateLimitMiddleware(deps, ratelimit.EndpointVerify2FA), authHandler.Verify2FA)
	r.POST("/forgot-password", rateLimitMiddleware(deps, ratelimit.EndpointForgotPassword), authHandler.ForgotPassword)
	r.POST("/reset-password", rateLimitMiddleware(deps, ratelimit.EndpointResetPassword), authHandler.ResetPassword)

	userHandler := handlers.NewUserHandler(deps.Auth, deps.Blog, deps.Cookie)
	postHandler := handlers.NewPostHandler(deps.Blog)
	r.GET("/users/:username", userHandler.PublicProfile)
	r.GET("/users/:username/posts", userHandler.Posts)
	r.GET("/users/:username/votes/count", userHandler.VoteCount)
	r.GET("/users/:username/comments/count", userHandler.CommentCount)
	r.GET("/users/:username/voted-posts", userHandler.VotedPosts)
	r.GET("/users/:username/commented-posts", userHandler.CommentedPosts)
	r.GET("/posts", postHandler.List)
	r.GET("/posts/:id", postHandler.Get)
	r.GET("/posts/:id/comments", postHandler.ListComments)

	authed := r.Group("")
	authed.Use(userAuthMiddleware(deps.Auth, deps.Cookie.Name))

	authed.POST("/logout", authHandler.Logout)
	authed.POST("/auth/extend-session", authHandler.ExtendSession)
	authed.GET("/auth/me", authHandler.Me)
	authed.POST("/toggle-2fa", authHandler.Toggle2FA)
	authed.POST("/change-password", authHandler.ChangePassword)

	authed.GET("/profile", userHandler.Profile)
	authed.PUT("/profile", userHandler.UpdateProfile)
	authed.DELETE("/profile", userHandler.DeleteProfile)
	authed.GET("/users", userHandler.Search)

	authed.POST("/posts", postHandler.Create)
	authed.PUT("/posts/:id", postHandler.Update)
	authed.DELETE("/posts/:id", postHandler.Delete)
	authed.POST("/posts/:id/upvote", postHandler.Upvote)
	authed.POST("/posts/:id/downvote", postHandler.Downvote)
	authed.POST("/posts/:id/comments", postHandler.AddComment)
	authed.DELETE("/posts/:id/comments/:comment_id", postHandler.DeleteComment)
}
