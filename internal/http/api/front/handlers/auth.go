package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/computer-anything/blog-backend/internal/auth"
	"github.com/computer-anything/blog-backend/internal/config"
)

// AuthHandler serves the account workflow endpoints.
type AuthHandler struct {
	svc    *auth.Service
	cookie config.CookieConfig
	nowFn  func() time.Time
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(svc *auth.Service, cookie config.CookieConfig, nowFn func() time.Time) *AuthHandler {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &AuthHandler{svc: svc, cookie: cookie, nowFn: nowFn}
}

// RequestMeta extracts the client address and user agent.
func RequestMeta(c *gin.Context) auth.RequestMeta {
	return auth.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, session *auth.Session) {
	maxAge := int(session.ExpiresAt.Sub(h.nowFn()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, session.Token, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", h.cookie.Domain, h.cookie.Secure, true)
}

func (h *AuthHandler) writeSession(c *gin.Context, session *auth.Session, message string) {
	h.setSessionCookie(c, session)
	c.JSON(http.StatusOK, gin.H{
		"message":          message,
		"user":             userJSON(session.User),
		"sessionExpiresAt": session.ExpiresAt.Unix(),
	})
}

type registerRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	TurnstileToken string `json:"turnstile_token"`
	Website        string `json:"website"`
}

// Register creates an unverified account.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	_, errRegister := h.svc.Register(c.Request.Context(), auth.RegisterInput{
		Username:       body.Username,
		Email:          body.Email,
		Password:       body.Password,
		ChallengeToken: body.TurnstileToken,
		Honeypot:       body.Website,
	}, RequestMeta(c))
	if errRegister != nil {
		writeError(c, errRegister)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "registration successful, check your email for a verification code"})
}

type codeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyRegistration confirms the email address and signs the user in.
func (h *AuthHandler) VerifyRegistration(c *gin.Context) {
	var body codeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	session, errVerify := h.svc.VerifyRegistration(c.Request.Context(), body.Email, body.Code, RequestMeta(c))
	if errVerify != nil {
		writeError(c, errVerify)
		return
	}
	h.writeSession(c, session, "email verified")
}

type resendRequest struct {
	Identifier string `json:"identifier"`
}

// ResendVerification issues a new registration code.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var body resendRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errResend := h.svc.ResendVerification(c.Request.Context(), body.Identifier); errResend != nil {
		writeError(c, errResend)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

type loginRequest struct {
	Identifier     string `json:"identifier"`
	Password       string `json:"password"`
	TurnstileToken string `json:"turnstile_token"`
}

// Login checks credentials and either starts a session or asks for the emailed code.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, errLogin := h.svc.Login(c.Request.Context(), auth.LoginInput{
		Identifier:     body.Identifier,
		Password:       body.Password,
		ChallengeToken: body.TurnstileToken,
	}, RequestMeta(c))
	if errLogin != nil {
		writeError(c, errLogin)
		return
	}
	if res.TwoFactorRequired {
		c.JSON(http.StatusOK, gin.H{
			"requires_2fa": true,
			"email":        res.Email,
			"message":      "verification code sent to your email",
		})
		return
	}
	h.writeSession(c, res.Session, "login successful")
}

// Verify2FA completes a two-factor login.
func (h *AuthHandler) Verify2FA(c *gin.Context) {
	var body codeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	session, errVerify := h.svc.Verify2FA(c.Request.Context(), body.Email, body.Code, RequestMeta(c))
	if errVerify != nil {
		writeError(c, errVerify)
		return
	}
	h.writeSession(c, session, "login successful")
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// ExtendSession reissues the session token with a fresh expiry.
func (h *AuthHandler) ExtendSession(c *gin.Context) {
	session, errExtend := h.svc.ExtendSession(c.Request.Context(), CurrentUserID(c))
	if errExtend != nil {
		writeError(c, errExtend)
		return
	}
	h.setSessionCookie(c, session)
	c.JSON(http.StatusOK, gin.H{"message": "session extended", "sessionExpiresAt": session.ExpiresAt.Unix()})
}

// Me returns the signed-in account.
func (h *AuthHandler) Me(c *gin.Context) {
	user, errMe := h.svc.Me(c.Request.Context(), CurrentUserID(c))
	if errMe != nil {
		writeError(c, errMe)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userJSON(user)})
}

type toggle2FARequest struct {
	Enable *bool `json:"enable"`
}

// Toggle2FA switches the emailed second factor.
func (h *AuthHandler) Toggle2FA(c *gin.Context) {
	var body toggle2FARequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.Enable == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enable is required"})
		return
	}
	user, errToggle := h.svc.Toggle2FA(c.Request.Context(), CurrentUserID(c), *body.Enable)
	if errToggle != nil {
		writeError(c, errToggle)
		return
	}
	c.JSON(http.StatusOK, gin.H{"twofa_enabled": user.TwoFAEnabled})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword replaces the password and ends every session.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errChange := h.svc.ChangePassword(c.Request.Context(), CurrentUserID(c), body.CurrentPassword, body.NewPassword); errChange != nil {
		writeError(c, errChange)
		return
	}
	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "password changed, please log in again"})
}

type forgotPasswordRequest struct {
	Email          string `json:"email"`
	TurnstileToken string `json:"turnstile_token"`
}

// ForgotPassword emails a reset link. The response does not reveal whether the account exists.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var body forgotPasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errForgot := h.svc.ForgotPassword(c.Request.Context(), body.Email, body.TurnstileToken, RequestMeta(c)); errForgot != nil {
		writeError(c, errForgot)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "if an account exists for that email, a reset link has been sent"})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ResetPassword consumes a reset token.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var body resetPasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errReset := h.svc.ResetPassword(c.Request.Context(), body.Token, body.NewPassword); errReset != nil {
		writeError(c, errReset)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password reset, please log in"})
}
