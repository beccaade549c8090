package front

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/computer-anything/blog-backend/internal/alert"
	"github.com/computer-anything/blog-backend/internal/auth"
	handlers "github.com/computer-anything/blog-backend/internal/http/api/front/handlers"
	"github.com/computer-anything/blog-backend/internal/metrics"
)

const headerRequestID = "X-Request-ID"

// requestIDMiddleware propagates or assigns a request id.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// accessLogMiddleware logs one line per request.
func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"request_id": c.GetString("requestID"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"ip":         c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("http request")
			return
		}
		entry.Debug("http request")
	}
}

// sessionToken reads the session cookie, falling back to a bearer header.
func sessionToken(c *gin.Context, cookieName string) string {
	if raw, errCookie := c.Cookie(cookieName); errCookie == nil && strings.TrimSpace(raw) != "" {
		return strings.TrimSpace(raw)
	}
	authHeader := c.GetHeader("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return ""
	}
	return strings.TrimSpace(token)
}

// userAuthMiddleware rejects requests without a current session.
func userAuthMiddleware(svc *auth.Service, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c, cookieName)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
			return
		}
		user, errAuth := svc.Authenticate(c.Request.Context(), token)
		if errAuth != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}
		c.Set(handlers.ContextUserID, user.ID)
		c.Set(handlers.ContextUser, user)
		c.Next()
	}
}

// rateLimitMiddleware throttles endpoint per client address. A denied request
// counts against the signed-in account, if any, and raises a breach alert.
func rateLimitMiddleware(deps Deps, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Limiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		ip := c.ClientIP()
		result, errAllow := deps.Limiter.Allow(ctx, endpoint, ip)
		if errAllow != nil {
			log.WithError(errAllow).WithField("endpoint", endpoint).Warn("rate limit check failed, allowing request")
			c.Next()
			return
		}
		if result.Allowed {
			c.Next()
			return
		}

		metrics.RateLimitDenials.WithLabelValues(endpoint).Inc()
		var userEmail string
		if token := sessionToken(c, deps.Cookie.Name); token != "" {
			if user, errAuth := deps.Auth.Authenticate(ctx, token); errAuth == nil {
				userEmail = user.Email
				if deps.Accounts != nil {
					if errInc := deps.Accounts.IncrementRateLimitViolations(ctx, user.ID); errInc != nil {
						log.WithError(errInc).WithField("user_id", user.ID).Warn("record rate limit violation failed")
					}
				}
			}
		}
		log.WithFields(log.Fields{"ip": ip, "endpoint": endpoint}).Warn("rate limit exceeded")
		if deps.Notifier != nil {
			deps.Notifier.OnBreach(ctx, alert.RateLimitBreach(ip, endpoint, userEmail))
		}

		retryAfter := result.RetryAfter(deps.Limiter.Now())
		seconds := int(retryAfter / time.Second)
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many requests, please try again later",
			"retry_after": seconds,
		})
	}
}
